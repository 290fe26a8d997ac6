package receiver

import (
	"testing"

	"github.com/cwsl/ft8op/internal/store"
	"github.com/cwsl/ft8op/internal/wsjtx"
)

// TestNextTxTypeCascade is S1's GRID->SNR->RSNR->R73 progression: every
// step addressed to us predicts the next step in the chain, terminating
// at R73.
func TestNextTxTypeCascade(t *testing.T) {
	l := &Loop{myCallsign: "K1ABC"}
	cases := []struct {
		in   string
		want string
	}{
		{string(wsjtx.MsgGrid), "SNR"},
		{string(wsjtx.MsgSNR), "RSNR"},
		{string(wsjtx.MsgRSNR), "R73"},
		{string(wsjtx.MsgR73), "R73"},
	}
	for _, c := range cases {
		got := l.nextTxType(&store.Candidate{To: "K1ABC", Type: c.in})
		if got != c.want {
			t.Errorf("nextTxType(%s addressed to me) = %s, want %s", c.in, got, c.want)
		}
	}
}

// TestNextTxTypeNotAddressedToMe covers the skipGrid-always-true default:
// anything not addressed to ft8op's own callsign predicts a plain SNR
// reply regardless of the decoded type.
func TestNextTxTypeNotAddressedToMe(t *testing.T) {
	l := &Loop{myCallsign: "K1ABC"}
	cand := &store.Candidate{To: "W1XYZ", Type: string(wsjtx.MsgRSNR)}
	if got := l.nextTxType(cand); got != "SNR" {
		t.Errorf("nextTxType(not addressed to me) = %s, want SNR", got)
	}
}

func TestGridImportanceHigherThanCQ(t *testing.T) {
	if got := gridImportance(true, 0.5); got != 2.0 {
		t.Errorf("gridImportance(true, 0.5) = %v, want 2.0", got)
	}
}

func TestGridImportanceDefault(t *testing.T) {
	if got := gridImportance(false, 0.5); got != 1.5 {
		t.Errorf("gridImportance(false, 0.5) = %v, want 1.5", got)
	}
}

// TestParseMessageDistinguishesFinalFromAck grounds the isFinal flag that
// onTxEnd passes to onTxR73: only a bare "73" is the final message that
// deletes the candidate; RRR/R73/RR73 are acks that keep it.
func TestParseMessageDistinguishesFinalFromAck(t *testing.T) {
	final := wsjtx.ParseMessage("F5ZZZ K1ABC 73")
	if !final.Matched || final.Type != wsjtx.MsgR73 || final.R73 != "73" {
		t.Fatalf("parse of bare 73 = %+v, want matched R73 type with R73=73", final)
	}

	ack := wsjtx.ParseMessage("F5ZZZ K1ABC RR73")
	if !ack.Matched || ack.Type != wsjtx.MsgR73 || ack.R73 == "73" {
		t.Fatalf("parse of RR73 = %+v, want matched R73 type with R73!=73", ack)
	}
}

// TestIsSameMessageDetection is the building block behind S3's spam
// cutoff: advanceTxCutoff only increments the rolling tries/inactive/
// transmit counters (instead of resetting them to 1) when ft8op
// transmitted the exact same (type, to) pair as last time.
func TestIsSameMessageDetection(t *testing.T) {
	sent := wsjtx.ParseMessage("F5ZZZ K1ABC RR73")
	previous := wsjtx.ParseMessage("F5ZZZ K1ABC RR73")
	if !(previous.Matched && sent.Type == previous.Type && sent.To == previous.To) {
		t.Error("two identical outbound messages should be detected as the same message")
	}

	progressed := wsjtx.ParseMessage("F5ZZZ K1ABC R-12")
	if previous.Matched && sent.Type == progressed.Type && sent.To == progressed.To {
		t.Error("an R-report and RR73 must not be detected as the same message")
	}
}
