package geo

import "testing"

func TestLocatorToLatLonRoundTrip(t *testing.T) {
	lat, lon, err := LocatorToLatLon("EM12")
	if err != nil {
		t.Fatalf("LocatorToLatLon: %v", err)
	}
	loc, err := LatLonToLocator(lat, lon)
	if err != nil {
		t.Fatalf("LatLonToLocator: %v", err)
	}
	if loc != "EM12" {
		t.Errorf("round trip = %q, want EM12", loc)
	}
}

func TestIsValidLocator(t *testing.T) {
	if !IsValidLocator("FN31") {
		t.Error("FN31 should be valid")
	}
	if IsValidLocator("ZZ99") {
		t.Error("ZZ99 should be invalid (Z out of A-R field range)")
	}
	if IsValidLocator("EM1") {
		t.Error("EM1 should be invalid (wrong length)")
	}
}

func TestCTYLookupExactOverridesPrefix(t *testing.T) {
	tbl := NewTable()
	usa := &Entity{Name: "United States", DXCC: 291, PrimaryPfx: "K", Continent: "NA"}
	special := &Entity{Name: "Guantanamo Bay", DXCC: 105, PrimaryPfx: "KG4", Continent: "NA"}
	tbl.prefixes = map[string]prefixEntry{
		"K":     {prefix: "K", entity: usa},
		"KG4XX": {prefix: "KG4XX", isExact: true, entity: special},
	}

	res, ok := tbl.LookupCallsign("KG4XX")
	if !ok || res.Country != "Guantanamo Bay" {
		t.Fatalf("exact match not honored: %+v", res)
	}

	res, ok = tbl.LookupCallsign("K1ABC")
	if !ok || res.Country != "United States" {
		t.Fatalf("prefix match failed: %+v", res)
	}
}
