package geo

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// IPService wraps a MaxMind GeoIP2 country database for the one
// IP-addressed surface ft8op has: logging which country the locked WSJT-X
// host address geolocates to. If dbPath is empty the service is disabled
// and every lookup fails softly.
type IPService struct {
	mu      sync.RWMutex
	db      *geoip2.Reader
	enabled bool
}

// NewIPService opens dbPath, or returns a disabled service if dbPath is
// empty.
func NewIPService(dbPath string) (*IPService, error) {
	if dbPath == "" {
		return &IPService{enabled: false}, nil
	}
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geo: open geoip database %s: %w", dbPath, err)
	}
	return &IPService{db: db, enabled: true}, nil
}

// IsEnabled reports whether a database was loaded.
func (s *IPService) IsEnabled() bool {
	return s.enabled
}

// CountryForIP returns the ISO country code for ipStr, or "" if the
// service is disabled or the lookup fails.
func (s *IPService) CountryForIP(ipStr string) string {
	if !s.enabled {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, err := s.db.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (s *IPService) Close() error {
	if !s.enabled {
		return nil
	}
	return s.db.Close()
}
