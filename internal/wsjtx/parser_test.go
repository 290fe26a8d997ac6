package wsjtx

import "testing"

func TestParseMessageCascade(t *testing.T) {
	cases := []struct {
		msg      string
		wantType MessageType
	}{
		{"CQ N0CALL EM12", MsgCQ},
		{"CQ DX N0CALL EM12", MsgCQ},
		{"W1ABC N0CALL RRR", MsgR73},
		{"W1ABC N0CALL 73", MsgR73},
		{"W1ABC N0CALL R73", MsgR73},
		{"W1ABC N0CALL EM12", MsgGrid},
		{"W1ABC N0CALL -12", MsgSNR},
		{"W1ABC N0CALL R-12", MsgRSNR},
	}
	for _, c := range cases {
		p := ParseMessage(c.msg)
		if !p.Matched {
			t.Errorf("ParseMessage(%q): no match", c.msg)
			continue
		}
		if p.Type != c.wantType {
			t.Errorf("ParseMessage(%q).Type = %v, want %v", c.msg, p.Type, c.wantType)
		}
	}
}

func TestParseMessageNoMatch(t *testing.T) {
	p := ParseMessage("not a valid ft8 message at all!!")
	if p.Matched {
		t.Fatalf("expected no match, got %+v", p)
	}
}

func TestParseMessageCallsignExtraction(t *testing.T) {
	p := ParseMessage("CQ W1ABC/P EM12")
	if !p.Matched || p.Type != MsgCQ {
		t.Fatalf("expected CQ match, got %+v", p)
	}
	if p.PrefixedCallsign != "W1ABC" {
		t.Errorf("PrefixedCallsign = %q, want W1ABC", p.PrefixedCallsign)
	}
	if p.Callsign != "W1ABC/P" {
		t.Errorf("Callsign = %q, want W1ABC/P", p.Callsign)
	}
}

func TestIsValidGrid(t *testing.T) {
	if !IsValidGrid("EM12") {
		t.Error("EM12 should be a valid grid")
	}
	if IsValidGrid("EM1") {
		t.Error("EM1 should not be a valid grid")
	}
	if IsValidGrid("12EM") {
		t.Error("12EM should not be a valid grid")
	}
}
