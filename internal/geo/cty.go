package geo

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Entity is one DXCC entity's fixed attributes, parsed out of a CTY.DAT
// style country file.
type Entity struct {
	Name       string
	DXCC       int
	PrimaryPfx string
	Continent  string
	CQZone     int
	ITUZone    int
	Latitude   float64
	Longitude  float64
}

type prefixEntry struct {
	prefix  string
	isExact bool
	entity  *Entity
}

// Table is a loaded CTY.DAT-style prefix table: longest, most specific
// prefix wins, with an exact-match override (a "=CALL" line in the source
// file) taking priority over any prefix match.
type Table struct {
	mu       sync.RWMutex
	entities []*Entity
	prefixes map[string]prefixEntry
}

// Result is what a callsign lookup resolves to.
type Result struct {
	Country   string
	DXCC      int
	Continent string
	CQZone    int
	ITUZone   int
	Latitude  float64
	Longitude float64
}

// NewTable builds an empty table, ready for Load or direct population in
// tests.
func NewTable() *Table {
	return &Table{prefixes: make(map[string]prefixEntry)}
}

// Load parses a CTY.DAT-style file: each entity is one logical record,
// "Name: DXCC: Continent: CQZone: ITUZone: Lat: Lon: PrimaryPfx;" ended
// by lines of comma-separated prefixes terminated with ";", an exact
// match prefixed with "=" and taking priority at lookup time.
func (t *Table) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("geo: open cty file: %w", err)
	}
	defer f.Close()

	t.mu.Lock()
	defer t.mu.Unlock()

	sc := bufio.NewScanner(f)
	var cur *Entity
	var buf strings.Builder
	flush := func() error {
		if cur == nil || buf.Len() == 0 {
			return nil
		}
		body := strings.TrimRight(buf.String(), ";")
		for _, tok := range strings.Split(body, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			exact := strings.HasPrefix(tok, "=")
			pfx := strings.TrimPrefix(tok, "=")
			t.prefixes[strings.ToUpper(pfx)] = prefixEntry{prefix: pfx, isExact: exact, entity: cur}
		}
		buf.Reset()
		return nil
	}

	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			if err := flush(); err != nil {
				return err
			}
			fields := strings.Split(trimmed, ":")
			if len(fields) < 8 {
				cur = nil
				continue
			}
			dxcc, _ := strconv.Atoi(strings.TrimSpace(fields[1]))
			cq, _ := strconv.Atoi(strings.TrimSpace(fields[3]))
			itu, _ := strconv.Atoi(strings.TrimSpace(fields[4]))
			lat, _ := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64)
			lon, _ := strconv.ParseFloat(strings.TrimSpace(fields[6]), 64)
			cur = &Entity{
				Name:       strings.TrimSpace(fields[0]),
				DXCC:       dxcc,
				Continent:  strings.TrimSpace(fields[2]),
				CQZone:     cq,
				ITUZone:    itu,
				Latitude:   lat,
				Longitude:  lon,
				PrimaryPfx: strings.TrimSpace(strings.Trim(fields[7], ";")),
			}
			t.entities = append(t.entities, cur)
			buf.WriteString(strings.TrimSuffix(strings.Join(fields[8:], ":"), ""))
			continue
		}
		buf.WriteString(trimmed)
	}
	if err := flush(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("geo: scan cty file: %w", err)
	}
	return nil
}

// LookupCallsign resolves a callsign to its DXCC entity by longest-prefix
// match, exact matches always winning over a prefix match of any length.
func (t *Table) LookupCallsign(callsign string) (*Result, bool) {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.prefixes[callsign]; ok && e.isExact {
		return resultFromEntity(e.entity), true
	}

	var best *prefixEntry
	for i := len(callsign); i > 0; i-- {
		candidate := callsign[:i]
		if e, ok := t.prefixes[candidate]; ok && !e.isExact {
			if best == nil || len(e.prefix) > len(best.prefix) {
				ec := e
				best = &ec
			}
			break
		}
	}
	if best == nil {
		return nil, false
	}
	return resultFromEntity(best.entity), true
}

func resultFromEntity(e *Entity) *Result {
	return &Result{
		Country:   e.Name,
		DXCC:      e.DXCC,
		Continent: e.Continent,
		CQZone:    e.CQZone,
		ITUZone:   e.ITUZone,
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
	}
}

// Entities returns every loaded entity, sorted by name.
func (t *Table) Entities() []*Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Entity, len(t.entities))
	copy(out, t.entities)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
