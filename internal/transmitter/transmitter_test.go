package transmitter

import "testing"

func TestDedupe(t *testing.T) {
	got := dedupe([]uint32{100, 100, 150, 200, 200, 200, 250})
	want := []uint32{100, 150, 200, 250}
	if len(got) != len(want) {
		t.Fatalf("dedupe() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dedupe() = %v, want %v", got, want)
		}
	}
}

func TestDedupeEmpty(t *testing.T) {
	if got := dedupe(nil); len(got) != 0 {
		t.Errorf("dedupe(nil) = %v, want empty", got)
	}
}

func TestAbsDiff(t *testing.T) {
	if absDiff(10, 20) != 10 {
		t.Error("absDiff(10, 20) should be 10")
	}
	if absDiff(20, 10) != 10 {
		t.Error("absDiff(20, 10) should be 10")
	}
	if absDiff(5, 5) != 0 {
		t.Error("absDiff(5, 5) should be 0")
	}
}

func TestSortTailFromConfigDropsLeadingImportance(t *testing.T) {
	sortBy := [][2]interface{}{
		{"importance", -1},
		{"timestamp", 1},
	}
	tail := sortTailFromConfig(sortBy)
	if len(tail) != 1 {
		t.Fatalf("expected one tiebreaker, got %d", len(tail))
	}
	if tail[0].Key != "timestamp" || tail[0].Value != 1 {
		t.Errorf("tail[0] = %+v, want {timestamp 1}", tail[0])
	}
}

func TestSortTailFromConfigOnlyLeading(t *testing.T) {
	sortBy := [][2]interface{}{{"importance", -1}}
	tail := sortTailFromConfig(sortBy)
	if len(tail) != 0 {
		t.Errorf("expected no tiebreakers, got %v", tail)
	}
}

// TestWidestGapMidpointBestFrequency is S6 from the spec: even list =
// {1500, 1520, 1700, 2200}, odd list = {1500, 1800, 2200}. Replying while
// the current slot is odd reads the even list; its widest gap is
// 1700-2200, so the picked offset is 1950.
func TestWidestGapMidpointBestFrequency(t *testing.T) {
	even := []uint32{1500, 1520, 1700, 2200}
	got := widestGapMidpoint(even)
	if got == nil {
		t.Fatal("widestGapMidpoint returned nil")
	}
	if *got != 1950 {
		t.Errorf("widestGapMidpoint(%v) = %d, want 1950", even, *got)
	}

	odd := []uint32{1500, 1800, 2200}
	got = widestGapMidpoint(odd)
	if got == nil {
		t.Fatal("widestGapMidpoint returned nil")
	}
	if *got != 2000 {
		t.Errorf("widestGapMidpoint(%v) = %d, want 2000 (widest gap 1800-2200)", odd, *got)
	}
}

func TestWidestGapMidpointFewerThanTwoObservations(t *testing.T) {
	if got := widestGapMidpoint([]uint32{1500}); got != nil {
		t.Errorf("widestGapMidpoint with one observation = %v, want nil", got)
	}
	if got := widestGapMidpoint(nil); got != nil {
		t.Errorf("widestGapMidpoint with no observations = %v, want nil", got)
	}
}

func TestWidestGapMidpointClosestToPrefersRevertTarget(t *testing.T) {
	freqs := []uint32{1500, 1520, 1700, 2200}
	// The widest-gap midpoint (1950) is far from the home frequency, so
	// reverting back toward 1510 should instead pick the 1500-1520
	// midpoint (1510) over it.
	got := widestGapMidpointClosestTo(freqs, 1510, 300, 3000)
	if got != 1510 {
		t.Errorf("widestGapMidpointClosestTo(...) = %d, want 1510", got)
	}
}

func TestWidestGapMidpointClosestToFallsBackToBandEdge(t *testing.T) {
	got := widestGapMidpointClosestTo(nil, 250, 300, 3000)
	if got != 300 {
		t.Errorf("widestGapMidpointClosestTo with no observations = %d, want band min 300", got)
	}
}
