// Package geo resolves callsigns and grid locators to the location data
// the receiver loop needs: DXCC entity/country/continent, Maidenhead
// grid-square round tripping, and a best-effort IP geolocation used only
// for the one IP-addressed surface (the locked host address).
package geo

import (
	"fmt"
	"math"
	"strings"
)

// LatLonToLocator converts a coordinate pair to a 4-character Maidenhead
// locator, the fallback path used when a station has no explicit grid but
// its lat/long are known from a DXCC entity lookup.
func LatLonToLocator(lat, lon float64) (string, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("geo: lat/lon out of range: %f,%f", lat, lon)
	}
	lon += 180.0
	lat += 90.0

	field1 := byte(lon/20) + 'A'
	field2 := byte(lat/10) + 'A'
	lon = math.Mod(lon, 20)
	lat = math.Mod(lat, 10)
	sq1 := byte(lon/2) + '0'
	sq2 := byte(lat/1) + '0'

	return string([]byte{field1, field2, sq1, sq2}), nil
}

// LocatorToLatLon converts a 4, 6, or 8 character Maidenhead locator to the
// center point of the grid square it names.
func LocatorToLatLon(locator string) (lat, lon float64, err error) {
	locator = strings.ToUpper(locator)
	if len(locator) != 4 && len(locator) != 6 && len(locator) != 8 {
		return 0, 0, fmt.Errorf("geo: invalid locator length %d", len(locator))
	}
	if locator[0] < 'A' || locator[0] > 'R' || locator[1] < 'A' || locator[1] > 'R' {
		return 0, 0, fmt.Errorf("geo: invalid field characters in %q", locator)
	}
	if locator[2] < '0' || locator[2] > '9' || locator[3] < '0' || locator[3] > '9' {
		return 0, 0, fmt.Errorf("geo: invalid square characters in %q", locator)
	}
	if len(locator) >= 6 && (locator[4] < 'A' || locator[4] > 'X' || locator[5] < 'A' || locator[5] > 'X') {
		return 0, 0, fmt.Errorf("geo: invalid subsquare characters in %q", locator)
	}
	if len(locator) == 8 && (locator[6] < '0' || locator[6] > '9' || locator[7] < '0' || locator[7] > '9') {
		return 0, 0, fmt.Errorf("geo: invalid extended square characters in %q", locator)
	}

	lon = float64(locator[0]-'A') * 20.0
	lat = float64(locator[1]-'A') * 10.0
	lon += float64(locator[2]-'0') * 2.0
	lat += float64(locator[3]-'0') * 1.0

	if len(locator) >= 6 {
		lon += float64(locator[4]-'A') * (2.0 / 24.0)
		lat += float64(locator[5]-'A') * (1.0 / 24.0)
	}
	if len(locator) == 8 {
		lon += float64(locator[6]-'0') * (2.0 / 240.0)
		lat += float64(locator[7]-'0') * (1.0 / 240.0)
	}

	switch len(locator) {
	case 4:
		lon += 1.0
		lat += 0.5
	case 6:
		lon += 2.0 / 48.0
		lat += 1.0 / 48.0
	case 8:
		lon += 2.0 / 480.0
		lat += 1.0 / 480.0
	}

	return lat - 90.0, lon - 180.0, nil
}

// IsValidLocator reports whether LocatorToLatLon accepts s.
func IsValidLocator(s string) bool {
	_, _, err := LocatorToLatLon(s)
	return err == nil
}
