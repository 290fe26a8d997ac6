package band

import "testing"

func TestIsEvenFT8(t *testing.T) {
	if !IsEven(FT8, 0) {
		t.Error("t=0 should be even")
	}
	if !IsEven(FT8, 14.9) {
		t.Error("t=14.9 should still be even (half=15)")
	}
	if IsEven(FT8, 15) {
		t.Error("t=15 should be odd")
	}
	if IsEven(FT8, 29.9) {
		t.Error("t=29.9 should be odd")
	}
	if !IsEven(FT8, 30) {
		t.Error("t=30 wraps to the next slot's even half")
	}
}

func TestIsEvenFT4(t *testing.T) {
	if !IsEven(FT4, 0) {
		t.Error("t=0 should be even")
	}
	if IsEven(FT4, 7.5) {
		t.Error("t=7.5 should be odd")
	}
}

func TestFreqToBand(t *testing.T) {
	cases := []struct {
		kHz  uint64
		want int
	}{
		{7074, 40},
		{14074, 20},
		{28074, 10},
		{1000000, 0}, // unallocated
	}
	for _, c := range cases {
		if got := FreqToBand(c.kHz); got != c.want {
			t.Errorf("FreqToBand(%d) = %d, want %d", c.kHz, got, c.want)
		}
	}
}
