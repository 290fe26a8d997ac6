package receiver

import (
	"os"
	"path/filepath"
	"testing"
)

func writeList(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestExceptionListsLoadAndQuery(t *testing.T) {
	dir := t.TempDir()
	callsignExc := writeList(t, dir, "callsign_exc.txt", []string{"W9ZZZ"})
	receiverExc := writeList(t, dir, "receiver_exc.txt", []string{"N0BAD"})
	validCallsign := writeList(t, dir, "valid.csv", []string{"W1ABC"})
	priority := writeList(t, dir, "priority.txt", []string{"Japan", "Germany", "Brazil"})
	vip := writeList(t, dir, "vip.txt", []string{"Japan"})

	e, err := NewExceptionLists(callsignExc, receiverExc, validCallsign, priority, vip)
	if err != nil {
		t.Fatalf("NewExceptionLists: %v", err)
	}

	if !e.IsCallsignExcepted("w9zzz") {
		t.Error("W9ZZZ should be excepted (case-insensitive)")
	}
	if !e.IsReceiverExcepted("N0BAD") {
		t.Error("N0BAD should be receiver-excepted")
	}
	if !e.IsPreValidated("W1ABC") {
		t.Error("W1ABC should be pre-validated")
	}
	if !e.IsVIP("Japan") {
		t.Error("Japan should be VIP")
	}
	if e.IsVIP("Brazil") {
		t.Error("Brazil should not be VIP")
	}

	// Japan is first in the priority list, so it should carry the largest bonus.
	if b := e.PriorityBonus("Japan"); b <= e.PriorityBonus("Germany") {
		t.Errorf("Japan bonus %f should exceed Germany bonus %f", b, e.PriorityBonus("Germany"))
	}
}

func TestExceptionListsMissingFilesAreEmpty(t *testing.T) {
	e, err := NewExceptionLists("", "", "", "", "")
	if err != nil {
		t.Fatalf("NewExceptionLists with empty paths: %v", err)
	}
	if e.IsCallsignExcepted("ANYTHING") {
		t.Error("empty list should except nothing")
	}
}

func TestAddCallsignExceptionPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "callsign_exc.txt")
	e, err := NewExceptionLists(path, "", "", "", "")
	if err != nil {
		t.Fatalf("NewExceptionLists: %v", err)
	}
	if err := e.AddCallsignException("w5xyz"); err != nil {
		t.Fatalf("AddCallsignException: %v", err)
	}
	if !e.IsCallsignExcepted("W5XYZ") {
		t.Error("exception should be recorded in-memory immediately")
	}

	e2, err := NewExceptionLists(path, "", "", "", "")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !e2.IsCallsignExcepted("W5XYZ") {
		t.Error("exception should have been persisted to disk")
	}
}
