package wsjtx

import (
	"encoding/binary"
	"testing"
)

func TestDecodeClearRoundTrip(t *testing.T) {
	enc := Encoder{ClientID: "AUTOFT"}
	// Heartbeat has no encoder (ft8op never sends one to the host), so
	// this round-trips a hand-built Clear, which exercises the same
	// header plumbing every packet shares.
	data := enc.EncodeClear(WindowBand)
	pkt, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c, ok := pkt.(*Clear)
	if !ok {
		t.Fatalf("got %T, want *Clear", pkt)
	}
	if c.ClientID != "AUTOFT" {
		t.Errorf("ClientID = %q, want AUTOFT", c.ClientID)
	}
	if c.Window != WindowBand {
		t.Errorf("Window = %d, want %d", c.Window, WindowBand)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	data := make([]byte, 12)
	_, err := DecodePacket(data)
	if err != ErrMagic {
		t.Fatalf("err = %v, want ErrMagic", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	enc := Encoder{ClientID: "X"}
	data := enc.EncodeClear(WindowBand)
	// Overwrite the type field (bytes 8..12) with something unregistered.
	data[8], data[9], data[10], data[11] = 0, 0, 0, 99
	_, err := DecodePacket(data)
	if err != ErrUnknownType {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestEncodeReplyFieldOrder(t *testing.T) {
	enc := Encoder{ClientID: "AUTOFT"}
	data := enc.EncodeReply(Reply{
		Time:           123456,
		SNR:            -12,
		DeltaTime:      0.2,
		DeltaFrequency: 1500,
		Mode:           "FT8",
		Message:        "CQ N0CALL EM12",
		NotScript:      true,
	})
	// header(4+4+4) + clientID(4+len) = 16+6 = 22 bytes before the body.
	if len(data) <= 22 {
		t.Fatalf("encoded reply too short: %d bytes", len(data))
	}
	// The body opens with Time (uint32) then SNR (int32).
	if got := binary.BigEndian.Uint32(data[22:26]); got != 123456 {
		t.Errorf("Time field = %d, want 123456", got)
	}
	if got := int32(binary.BigEndian.Uint32(data[26:30])); got != -12 {
		t.Errorf("SNR field = %d, want -12", got)
	}
}

func TestEnableTxCommandValues(t *testing.T) {
	if TxEven == TxOdd {
		t.Fatal("TxEven and TxOdd must differ")
	}
	if TxEnable == TxDisable {
		t.Fatal("TxEnable and TxDisable must differ")
	}
}
