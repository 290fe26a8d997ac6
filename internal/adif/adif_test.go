package adif

import "testing"

func TestParseHeaderAndRecords(t *testing.T) {
	data := "Generated by ft8op<ADIF_VER:5>3.1.4<PROGRAMID:5>ft8op<EOH>" +
		"<CALL:5>W1ABC<QSO_DATE:8>20260101<TIME_ON:4>1200<BAND:3>20m<MODE:3>FT8<EOR>"

	recs, headers, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if headers["PROGRAMID"] != "ft8op" {
		t.Errorf("PROGRAMID = %q, want ft8op", headers["PROGRAMID"])
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0]["CALL"] != "W1ABC" {
		t.Errorf("CALL = %q, want W1ABC", recs[0]["CALL"])
	}
	if recs[0]["BAND"] != "20m" {
		t.Errorf("BAND = %q, want 20m", recs[0]["BAND"])
	}
}

func TestParseNoHeader(t *testing.T) {
	data := "<CALL:5>W1ABC<MODE:3>FT8<EOR>"
	recs, headers, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(headers) != 0 {
		t.Errorf("expected no headers, got %v", headers)
	}
	if len(recs) != 1 || recs[0]["CALL"] != "W1ABC" {
		t.Fatalf("unexpected records: %v", recs)
	}
}

func TestParseHeaderWithoutEOH(t *testing.T) {
	data := "Generated by ft8op<ADIF_VER:5>3.1.4<PROGRAMID:5>ft8op"
	_, _, err := Parse([]byte(data))
	if err != ErrHeaderWithoutEOH {
		t.Fatalf("err = %v, want ErrHeaderWithoutEOH", err)
	}
}

func TestIsConfirmed(t *testing.T) {
	if !IsConfirmed(Record{}) {
		t.Error("default APP_QRZLOG_STATUS should be confirmed")
	}
	if IsConfirmed(Record{"APP_QRZLOG_STATUS": "U"}) {
		t.Error("unconfirmed status without LOTW should not confirm")
	}
	if !IsConfirmed(Record{"APP_QRZLOG_STATUS": "U", "LOTW_QSL_SENT": "Y", "LOTW_QSL_RCVD": "Y"}) {
		t.Error("LOTW both-Y should confirm")
	}
}

func TestNormalizeCallsign(t *testing.T) {
	if got := NormalizeCallsign("W1ABC_P"); got != "W1ABC/P" {
		t.Errorf("NormalizeCallsign = %q, want W1ABC/P", got)
	}
}

func TestQSOID(t *testing.T) {
	r := Record{"QSO_DATE": "20260101", "TIME_ON": "120000", "QSO_DATE_OFF": "20260101", "TIME_OFF": "120230"}
	if got := QSOID(r); got != "202601011200-202601011202" {
		t.Errorf("QSOID = %q", got)
	}
}

func TestStringBandToNumber(t *testing.T) {
	n, err := StringBandToNumber("20m")
	if err != nil || n != 20 {
		t.Errorf("StringBandToNumber(20m) = %d, %v", n, err)
	}
	n, err = StringBandToNumber("70cm")
	if err != nil || n != 70 {
		t.Errorf("StringBandToNumber(70cm) = %d, %v", n, err)
	}
}
