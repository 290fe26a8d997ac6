// Package store wraps the MongoDB-backed candidate, message-history,
// grid-hint, and blacklist collections that back the "calls", "message",
// "grid", and "black" collections of the wsjt database.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Candidate is one row of the "calls" (live) or "message" (history)
// collection. Every write is an upsert keyed on (Callsign, Band, Mode).
type Candidate struct {
	Callsign         string  `bson:"callsign"`
	PrefixedCallsign string  `bson:"prefixed_callsign,omitempty"`
	Suffix           string  `bson:"suffix,omitempty"`
	Suffix2          string  `bson:"suffix2,omitempty"`
	Suffix3          string  `bson:"suffix3,omitempty"`
	To               string  `bson:"to,omitempty"`
	Type             string  `bson:"type"`
	Grid             string  `bson:"grid,omitempty"`
	R73              string  `bson:"R73,omitempty"`
	Extra            string  `bson:"extra,omitempty"`
	Band             int     `bson:"band"`
	Mode             string  `bson:"mode"`
	SNR              int     `bson:"SNR"`
	Time             uint32  `bson:"Time"`
	DeltaTime        float64 `bson:"DeltaTime"`
	DeltaFrequency   uint32  `bson:"DeltaFrequency"`
	Message          string  `bson:"Message"`

	Country   string `bson:"country,omitempty"`
	DXCC      int    `bson:"dxcc,omitempty"`
	Continent string `bson:"continent,omitempty"`
	State     string `bson:"state,omitempty"`
	County    string `bson:"county,omitempty"`

	Expired       bool `bson:"expired"`
	Tried         bool `bson:"tried"`
	IsReemerging  bool `bson:"isReemerging"`
	IsSpam        bool `bson:"isSpam"`
	IsEven        bool `bson:"isEven"`
	IsValid       bool `bson:"isValid"`
	SkipGrid      bool `bson:"skipGrid"`
	IsNewCallsign bool `bson:"isNewCallsign"`
	IsNewDXCC     bool `bson:"isNewDXCC"`
	IsVIPDXCC     bool `bson:"isVIPDXCC"`

	Tries                int     `bson:"tries"`
	NumInactiveBeforeCut int     `bson:"num_inactive_before_cut"`
	MaxTransmitCount     int     `bson:"max_transmit_count"`
	NextTx               string  `bson:"nextTx"`
	Importance           float64 `bson:"importance"`
	Timestamp            float64 `bson:"timestamp"`
}

// GridHint is one row of the "grid" collection.
type GridHint struct {
	Callsign string `bson:"callsign"`
	Grid     string `bson:"grid"`
}

// BlacklistEntry is one row of the "black" collection: a confirmed or
// self-tracked completed contact that must never be re-admitted via CQ.
type BlacklistEntry struct {
	Callsign   string  `bson:"callsign"`
	Band       int     `bson:"band"`
	Mode       string  `bson:"mode"`
	QSOID      string  `bson:"QSOID,omitempty"`
	Confirmed  bool    `bson:"confirmed"`
	FromScript bool    `bson:"fromScript"`
	LogScript  bool    `bson:"logScript,omitempty"`
	Country    string  `bson:"country,omitempty"`
	DXCC       int     `bson:"dxcc,omitempty"`
	Continent  string  `bson:"continent,omitempty"`
	Grid       string  `bson:"grid,omitempty"`
	State      string  `bson:"state,omitempty"`
	County     string  `bson:"county,omitempty"`
	Timestamp  float64 `bson:"timestamp"`
}

// Store is the document-store handle for all four collections.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	Calls     *mongo.Collection
	Message   *mongo.Collection
	Grid      *mongo.Collection
	Blacklist *mongo.Collection
}

// Open connects to MongoDB and selects the "wsjt" database. blacklistName
// lets the blacklist collection be namespaced per operator username, the
// way the Python original uses db[f'black_{QRZ_USERNAME}'].
func Open(ctx context.Context, host string, port int, blacklistName string) (*Store, error) {
	if blacklistName == "" {
		blacklistName = "black"
	}
	uri := fmt.Sprintf("mongodb://%s:%d", host, port)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	db := client.Database("wsjt")
	return &Store{
		client:    client,
		db:        db,
		Calls:     db.Collection("calls"),
		Message:   db.Collection("message"),
		Grid:      db.Collection("grid"),
		Blacklist: db.Collection(blacklistName),
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func candidateKey(callsign string, band int, mode string) bson.M {
	return bson.M{"callsign": callsign, "band": band, "mode": mode}
}

// FindAndDeleteCandidate fetches and removes the (callsign,band,mode)
// candidate row, if any. The receiver does this on every decode so the
// freshly completed record always replaces it, never duplicates it.
func (s *Store) FindAndDeleteCandidate(ctx context.Context, callsign string, band int, mode string) (*Candidate, error) {
	var c Candidate
	err := s.Calls.FindOneAndDelete(ctx, candidateKey(callsign, band, mode)).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find-and-delete candidate: %w", err)
	}
	return &c, nil
}

// FindCandidate fetches the (callsign,band,mode) candidate without removing
// it.
func (s *Store) FindCandidate(ctx context.Context, callsign string, band int, mode string) (*Candidate, error) {
	var c Candidate
	err := s.Calls.FindOne(ctx, candidateKey(callsign, band, mode)).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find candidate: %w", err)
	}
	return &c, nil
}

// UpsertCandidate writes c keyed on (Callsign, Band, Mode), enforcing the
// candidate-uniqueness invariant.
func (s *Store) UpsertCandidate(ctx context.Context, c *Candidate) error {
	_, err := s.Calls.UpdateOne(ctx,
		candidateKey(c.Callsign, c.Band, c.Mode),
		bson.M{"$set": c},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: upsert candidate: %w", err)
	}
	return nil
}

// DeleteCandidate removes the (callsign,band,mode) row if it exists and
// returns it, for logging purposes.
func (s *Store) DeleteCandidate(ctx context.Context, callsign string, band int, mode string) (*Candidate, error) {
	return s.FindAndDeleteCandidate(ctx, callsign, band, mode)
}

// SetCandidateFields applies a partial $set update to one candidate,
// without needing the full record round-tripped through the caller.
func (s *Store) SetCandidateFields(ctx context.Context, callsign string, band int, mode string, fields bson.M) error {
	_, err := s.Calls.UpdateOne(ctx, candidateKey(callsign, band, mode), bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("store: set candidate fields: %w", err)
	}
	return nil
}

// BestCandidate runs the transmitter's selection query: the top-ranked,
// untried, unexpired, unspammed candidate for (band,mode), optionally
// pinned to one slot parity. sortTail is appended after the implicit
// importance-descending prefix the Python original always prepends.
func (s *Store) BestCandidate(ctx context.Context, band int, mode string, isEven *bool, sortTail bson.D) (*Candidate, error) {
	filter := bson.M{
		"band":    band,
		"mode":    mode,
		"expired": false,
		"tried":   false,
		"isSpam":  false,
	}
	if isEven != nil {
		filter["isEven"] = *isEven
	}
	sort := append(bson.D{{Key: "importance", Value: -1}}, sortTail...)
	opts := options.FindOne().SetSort(sort)

	var c Candidate
	err := s.Calls.FindOne(ctx, filter, opts).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: best candidate: %w", err)
	}
	return &c, nil
}

// SweepExpired marks every candidate older than cutoff (and below the
// importance floor) as expired, per EXPIRED_TIME.
func (s *Store) SweepExpired(ctx context.Context, cutoff float64) error {
	_, err := s.Calls.UpdateMany(ctx,
		bson.M{"timestamp": bson.M{"$lte": cutoff}, "importance": bson.M{"$lt": 2}},
		bson.M{"$set": bson.M{"expired": true}},
	)
	if err != nil {
		return fmt.Errorf("store: sweep expired: %w", err)
	}
	return nil
}

// ReleaseSpam un-marks every spam candidate older than cutoff, per
// RELEASE_FROM_SPAM_TIME.
func (s *Store) ReleaseSpam(ctx context.Context, cutoff float64) error {
	_, err := s.Calls.UpdateMany(ctx,
		bson.M{"timestamp": bson.M{"$lte": cutoff}, "isSpam": true},
		bson.M{"$set": bson.M{"isSpam": false}},
	)
	if err != nil {
		return fmt.Errorf("store: release spam: %w", err)
	}
	return nil
}

// DeleteBandMode wipes every candidate and message-history row for one
// (band,mode) pair, used on the receiver's band/mode-change sweep.
func (s *Store) DeleteBandMode(ctx context.Context, band int, mode string) error {
	if _, err := s.Calls.DeleteMany(ctx, bson.M{"band": band, "mode": mode}); err != nil {
		return fmt.Errorf("store: delete calls for band/mode: %w", err)
	}
	if _, err := s.Message.DeleteMany(ctx, bson.M{"band": band, "mode": mode}); err != nil {
		return fmt.Errorf("store: delete message history for band/mode: %w", err)
	}
	return nil
}

// DeleteMode wipes every candidate and message-history row for one mode
// across all bands, used on a mode change.
func (s *Store) DeleteMode(ctx context.Context, mode string) error {
	if _, err := s.Calls.DeleteMany(ctx, bson.M{"mode": mode}); err != nil {
		return fmt.Errorf("store: delete calls for mode: %w", err)
	}
	if _, err := s.Message.DeleteMany(ctx, bson.M{"mode": mode}); err != nil {
		return fmt.Errorf("store: delete message history for mode: %w", err)
	}
	return nil
}

// DrainAll empties the calls and message-history collections, the
// operator-interrupt and fatal-error cleanup path.
func (s *Store) DrainAll(ctx context.Context) error {
	if _, err := s.Calls.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("store: drain calls: %w", err)
	}
	if _, err := s.Message.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("store: drain message history: %w", err)
	}
	return nil
}

// UpsertMessageHistory records the latest decode for (callsign,band,mode)
// unconditionally, even for decodes later rejected by the admission
// filters.
func (s *Store) UpsertMessageHistory(ctx context.Context, c *Candidate) error {
	_, err := s.Message.UpdateOne(ctx,
		candidateKey(c.Callsign, c.Band, c.Mode),
		bson.M{"$set": c},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: upsert message history: %w", err)
	}
	return nil
}

// FindMessageHistory fetches the last known decode for (callsign,band,mode)
// without deleting it; used as the final fallback when completing a new
// decode's grid/country fields.
func (s *Store) FindMessageHistory(ctx context.Context, callsign string, band int, mode string) (*Candidate, error) {
	var c Candidate
	err := s.Message.FindOne(ctx, candidateKey(callsign, band, mode)).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find message history: %w", err)
	}
	return &c, nil
}

// GridForCallsign returns the grid hint recorded for callsign, if any.
func (s *Store) GridForCallsign(ctx context.Context, callsign string) (string, bool, error) {
	var g GridHint
	err := s.Grid.FindOne(ctx, bson.M{"callsign": callsign}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: grid lookup: %w", err)
	}
	return g.Grid, true, nil
}

// SetGridHint upserts a callsign's most recently heard grid.
func (s *Store) SetGridHint(ctx context.Context, callsign, grid string) error {
	_, err := s.Grid.UpdateOne(ctx,
		bson.M{"callsign": callsign},
		bson.M{"$set": bson.M{"callsign": callsign, "grid": grid}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: set grid hint: %w", err)
	}
	return nil
}

// IsNewCallsign reports whether (callsign,band,mode) has no blacklist row.
func (s *Store) IsNewCallsign(ctx context.Context, callsign string, band int, mode string) (bool, error) {
	n, err := s.Blacklist.CountDocuments(ctx, candidateKey(callsign, band, mode))
	if err != nil {
		return false, fmt.Errorf("store: is-new-callsign: %w", err)
	}
	return n == 0, nil
}

// IsNewDXCC reports whether a DXCC entity has no blacklist row for
// (band,mode).
func (s *Store) IsNewDXCC(ctx context.Context, dxcc int, band int, mode string) (bool, error) {
	n, err := s.Blacklist.CountDocuments(ctx, bson.M{"dxcc": dxcc, "band": band, "mode": mode})
	if err != nil {
		return false, fmt.Errorf("store: is-new-dxcc: %w", err)
	}
	return n == 0, nil
}

// GridWorked reports whether a grid has already been confirmed for
// (band,mode), used by the new-grid admission check.
func (s *Store) GridWorked(ctx context.Context, grid string, band int, mode string) (bool, error) {
	n, err := s.Blacklist.CountDocuments(ctx, bson.M{"grid": grid, "band": band, "mode": mode})
	if err != nil {
		return false, fmt.Errorf("store: grid-worked: %w", err)
	}
	return n > 0, nil
}

// FindBlacklistLogScript fetches the logScript:true blacklist row for
// (callsign,band,mode), used to decide whether an R73 completion is the
// first for that contact.
func (s *Store) FindBlacklistLogScript(ctx context.Context, callsign string, band int, mode string) (*BlacklistEntry, error) {
	filter := bson.M{"callsign": callsign, "band": band, "mode": mode, "logScript": true}
	var b BlacklistEntry
	err := s.Blacklist.FindOne(ctx, filter).Decode(&b)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find blacklist logScript row: %w", err)
	}
	return &b, nil
}

// InsertBlacklist adds a new completed-contact row.
func (s *Store) InsertBlacklist(ctx context.Context, b *BlacklistEntry) error {
	_, err := s.Blacklist.InsertOne(ctx, b)
	if err != nil {
		return fmt.Errorf("store: insert blacklist: %w", err)
	}
	return nil
}

// UpsertBlacklist upserts a blacklist row keyed on (callsign,band,QSOID),
// the ADIF-ingest key.
func (s *Store) UpsertBlacklist(ctx context.Context, b *BlacklistEntry) error {
	_, err := s.Blacklist.UpdateOne(ctx,
		bson.M{"callsign": b.Callsign, "band": b.Band, "QSOID": b.QSOID},
		bson.M{"$set": b},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("store: upsert blacklist: %w", err)
	}
	return nil
}

// SetQSOID fills in the host-confirmed QSOID for the matching logScript
// row once WSJT-X itself reports the QSO as logged.
func (s *Store) SetQSOID(ctx context.Context, callsign string, band int, mode string, qsoID string) error {
	filter := bson.M{"callsign": callsign, "band": band, "mode": mode, "logScript": true}
	_, err := s.Blacklist.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"QSOID": qsoID}})
	if err != nil {
		return fmt.Errorf("store: set QSOID: %w", err)
	}
	return nil
}

// AdoptStaleLogScriptEntries clears the logScript flag on every row older
// than olderThan, run once at receiver startup: a row this old is adopted as
// authoritative rather than still being tracked by this process.
func (s *Store) AdoptStaleLogScriptEntries(ctx context.Context, olderThan time.Time) error {
	cutoff := float64(olderThan.Unix())
	_, err := s.Blacklist.UpdateMany(ctx,
		bson.M{"logScript": true, "timestamp": bson.M{"$lte": cutoff}},
		bson.M{"$unset": bson.M{"logScript": ""}},
	)
	if err != nil {
		return fmt.Errorf("store: adopt stale logScript entries: %w", err)
	}
	return nil
}

// DeleteUnconfirmed drops every self-reported (not yet QSL-confirmed)
// blacklist row, the WORK_ON_UNCONFIRMED_QSO "rework" sweep.
func (s *Store) DeleteUnconfirmed(ctx context.Context) error {
	_, err := s.Blacklist.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"confirmed": false},
		bson.M{"fromScript": true},
	}})
	if err != nil {
		return fmt.Errorf("store: delete unconfirmed: %w", err)
	}
	return nil
}
