// Package state is the Redis-backed key/value store shared between the
// receiver and transmitter loops. It is their only coordination surface:
// neither process holds shared memory, so every fact one loop needs from
// the other -- the locked host IP, the current band/mode, the half-slot
// parity, the transmit-phase flags -- passes through here.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Keys used in the shared namespace. Booleans are stored as "1"/"" the way
// the Python original encodes them, so a missing key and an explicit false
// both read back as the zero value.
const (
	keyMyCallsign     = "my_callsign"
	keyMyGrid         = "my_grid"
	keyDXCallsign     = "dx_callsign"
	keyDXGrid         = "dx_grid"
	keyTxEnabled      = "tx_enabled"
	keyDecoding       = "decoding"
	keyTXDF           = "txdf"
	keyRXDF           = "rxdf"
	keyTxEven         = "tx_even"
	keyBand           = "band"
	keyMode           = "mode"
	keyTransmitting   = "transmitting"
	keyClosed         = "closed"
	keyReceiverUp     = "receiver_started"
	keyTransmitterUp  = "transmitter_started"
	keyTransmitPhase  = "transmit_phase"
	keyCurrentCall    = "current_callsign"
	keyCurrentTx      = "current_tx"
	keyLastTx         = "last_tx"
	keyLastTxMsg      = "last_tx_msg"
	keyStatesDone     = "states_completed"
	keyIP             = "ip"
	keyPort           = "port"
	keyTries          = "tries"
	keyInactiveCount  = "inactive_count"
	keyTransmitCount  = "transmit_counter"
	keyEnableTxCount  = "enable_transmit_counter"
	keyNumDisableTx   = "num_disable_transmit"
	keySortBy         = "sort_by"
	keyInitialFreq    = "initial_frequency"
	keyMaxTriesChFreq = "max_tries_change_freq"
	keyNewGrid        = "new_grid"
	keyNewDXCC        = "new_dxcc"
	keyMinDB          = "min_db"
	keyInactiveBefore = "num_inactive_before_cut"
	keyTriesCallBusy  = "num_tries_call_busy"
	keyOddFreqs       = "odd_frequencies"
	keyEvenFreqs      = "even_frequencies"
)

// Store is the typed wrapper around one Redis database.
type Store struct {
	rdb *redis.Client
}

// Open connects to the shared Redis instance.
func Open(host string, port int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// FlushAll clears the entire database, run once at receiver startup.
func (s *Store) FlushAll(ctx context.Context) error {
	return s.rdb.FlushDB(ctx).Err()
}

func boolToRedis(b bool) string {
	if b {
		return "1"
	}
	return ""
}

func (s *Store) getBool(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: get %s: %w", key, err)
	}
	return v == "1", nil
}

func (s *Store) setBool(ctx context.Context, key string, v bool) error {
	return s.rdb.Set(ctx, key, boolToRedis(v), 0).Err()
}

func (s *Store) getString(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("state: get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) setString(ctx context.Context, key, v string) error {
	return s.rdb.Set(ctx, key, v, 0).Err()
}

func (s *Store) getInt(ctx context.Context, key string) (int, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("state: get %s: %w", key, err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("state: parse int %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) setInt(ctx context.Context, key string, v int) error {
	return s.rdb.Set(ctx, key, strconv.Itoa(v), 0).Err()
}

func (s *Store) getFloat(ctx context.Context, key string) (float64, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("state: get %s: %w", key, err)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("state: parse float %s: %w", key, err)
	}
	return f, nil
}

func (s *Store) setFloat(ctx context.Context, key string, v float64) error {
	return s.rdb.Set(ctx, key, strconv.FormatFloat(v, 'f', -1, 64), 0).Err()
}

// Simple scalar accessors, one pair per field the two loops share.

func (s *Store) MyCallsign(ctx context.Context) (string, error) { return s.getString(ctx, keyMyCallsign) }
func (s *Store) SetMyCallsign(ctx context.Context, v string) error {
	return s.setString(ctx, keyMyCallsign, v)
}

func (s *Store) MyGrid(ctx context.Context) (string, error) { return s.getString(ctx, keyMyGrid) }
func (s *Store) SetMyGrid(ctx context.Context, v string) error {
	return s.setString(ctx, keyMyGrid, v)
}

func (s *Store) DXCallsign(ctx context.Context) (string, error) { return s.getString(ctx, keyDXCallsign) }
func (s *Store) SetDXCallsign(ctx context.Context, v string) error {
	return s.setString(ctx, keyDXCallsign, v)
}

func (s *Store) DXGrid(ctx context.Context) (string, error) { return s.getString(ctx, keyDXGrid) }
func (s *Store) SetDXGrid(ctx context.Context, v string) error {
	return s.setString(ctx, keyDXGrid, v)
}

func (s *Store) TxEnabled(ctx context.Context) (bool, error) { return s.getBool(ctx, keyTxEnabled) }
func (s *Store) SetTxEnabled(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyTxEnabled, v)
}

func (s *Store) Decoding(ctx context.Context) (bool, error) { return s.getBool(ctx, keyDecoding) }
func (s *Store) SetDecoding(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyDecoding, v)
}

func (s *Store) TXDF(ctx context.Context) (int, error) { return s.getInt(ctx, keyTXDF) }
func (s *Store) SetTXDF(ctx context.Context, v int) error {
	return s.setInt(ctx, keyTXDF, v)
}

func (s *Store) RXDF(ctx context.Context) (int, error) { return s.getInt(ctx, keyRXDF) }
func (s *Store) SetRXDF(ctx context.Context, v int) error {
	return s.setInt(ctx, keyRXDF, v)
}

func (s *Store) TxEven(ctx context.Context) (bool, error) { return s.getBool(ctx, keyTxEven) }
func (s *Store) SetTxEven(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyTxEven, v)
}

func (s *Store) Band(ctx context.Context) (int, error) { return s.getInt(ctx, keyBand) }
func (s *Store) SetBand(ctx context.Context, v int) error {
	return s.setInt(ctx, keyBand, v)
}

func (s *Store) Mode(ctx context.Context) (string, error) { return s.getString(ctx, keyMode) }
func (s *Store) SetMode(ctx context.Context, v string) error {
	return s.setString(ctx, keyMode, v)
}

func (s *Store) Transmitting(ctx context.Context) (bool, error) { return s.getBool(ctx, keyTransmitting) }
func (s *Store) SetTransmitting(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyTransmitting, v)
}

func (s *Store) Closed(ctx context.Context) (bool, error) { return s.getBool(ctx, keyClosed) }
func (s *Store) SetClosed(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyClosed, v)
}

func (s *Store) ReceiverStarted(ctx context.Context) (bool, error) { return s.getBool(ctx, keyReceiverUp) }
func (s *Store) SetReceiverStarted(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyReceiverUp, v)
}

func (s *Store) TransmitterStarted(ctx context.Context) (bool, error) {
	return s.getBool(ctx, keyTransmitterUp)
}
func (s *Store) SetTransmitterStarted(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyTransmitterUp, v)
}

func (s *Store) TransmitPhase(ctx context.Context) (bool, error) { return s.getBool(ctx, keyTransmitPhase) }
func (s *Store) SetTransmitPhase(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyTransmitPhase, v)
}

func (s *Store) CurrentCallsign(ctx context.Context) (string, error) {
	return s.getString(ctx, keyCurrentCall)
}
func (s *Store) SetCurrentCallsign(ctx context.Context, v string) error {
	return s.setString(ctx, keyCurrentCall, v)
}

func (s *Store) CurrentTx(ctx context.Context) (string, error) { return s.getString(ctx, keyCurrentTx) }
func (s *Store) SetCurrentTx(ctx context.Context, v string) error {
	return s.setString(ctx, keyCurrentTx, v)
}

func (s *Store) LastTx(ctx context.Context) (string, error) { return s.getString(ctx, keyLastTx) }
func (s *Store) SetLastTx(ctx context.Context, v string) error {
	return s.setString(ctx, keyLastTx, v)
}

func (s *Store) StatesCompleted(ctx context.Context) (bool, error) { return s.getBool(ctx, keyStatesDone) }
func (s *Store) SetStatesCompleted(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyStatesDone, v)
}

func (s *Store) IP(ctx context.Context) (string, error) { return s.getString(ctx, keyIP) }
func (s *Store) SetIP(ctx context.Context, v string) error {
	return s.setString(ctx, keyIP, v)
}

func (s *Store) Port(ctx context.Context) (int, error) { return s.getInt(ctx, keyPort) }
func (s *Store) SetPort(ctx context.Context, v int) error {
	return s.setInt(ctx, keyPort, v)
}

// LastTxMsg is the full text of the last WSJT-X-reported outbound message
// (Status.LastTxMsg), distinct from LastTx/SetLastTx which caches the
// candidate's nextTx type for the frequency revert-back decision.
func (s *Store) LastTxMsg(ctx context.Context) (string, error) { return s.getString(ctx, keyLastTxMsg) }
func (s *Store) SetLastTxMsg(ctx context.Context, v string) error {
	return s.setString(ctx, keyLastTxMsg, v)
}

func (s *Store) Tries(ctx context.Context) (int, error) { return s.getInt(ctx, keyTries) }
func (s *Store) SetTries(ctx context.Context, v int) error {
	return s.setInt(ctx, keyTries, v)
}

func (s *Store) InactiveCount(ctx context.Context) (int, error) { return s.getInt(ctx, keyInactiveCount) }
func (s *Store) SetInactiveCount(ctx context.Context, v int) error {
	return s.setInt(ctx, keyInactiveCount, v)
}

func (s *Store) TransmitCounter(ctx context.Context) (int, error) { return s.getInt(ctx, keyTransmitCount) }
func (s *Store) SetTransmitCounter(ctx context.Context, v int) error {
	return s.setInt(ctx, keyTransmitCount, v)
}

func (s *Store) EnableTransmitCounter(ctx context.Context) (int, error) {
	return s.getInt(ctx, keyEnableTxCount)
}
func (s *Store) SetEnableTransmitCounter(ctx context.Context, v int) error {
	return s.setInt(ctx, keyEnableTxCount, v)
}

func (s *Store) NumDisableTransmit(ctx context.Context) (int, error) { return s.getInt(ctx, keyNumDisableTx) }
func (s *Store) SetNumDisableTransmit(ctx context.Context, v int) error {
	return s.setInt(ctx, keyNumDisableTx, v)
}

func (s *Store) InitialFrequency(ctx context.Context) (int, error) { return s.getInt(ctx, keyInitialFreq) }
func (s *Store) SetInitialFrequency(ctx context.Context, v int) error {
	return s.setInt(ctx, keyInitialFreq, v)
}

func (s *Store) MaxTriesChangeFrequency(ctx context.Context) (int, error) {
	return s.getInt(ctx, keyMaxTriesChFreq)
}
func (s *Store) SetMaxTriesChangeFrequency(ctx context.Context, v int) error {
	return s.setInt(ctx, keyMaxTriesChFreq, v)
}

func (s *Store) NewGrid(ctx context.Context) (bool, error) { return s.getBool(ctx, keyNewGrid) }
func (s *Store) SetNewGrid(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyNewGrid, v)
}

func (s *Store) NewDXCC(ctx context.Context) (bool, error) { return s.getBool(ctx, keyNewDXCC) }
func (s *Store) SetNewDXCC(ctx context.Context, v bool) error {
	return s.setBool(ctx, keyNewDXCC, v)
}

func (s *Store) MinDB(ctx context.Context) (int, error) { return s.getInt(ctx, keyMinDB) }
func (s *Store) SetMinDB(ctx context.Context, v int) error {
	return s.setInt(ctx, keyMinDB, v)
}

func (s *Store) NumInactiveBeforeCut(ctx context.Context) (int, error) {
	return s.getInt(ctx, keyInactiveBefore)
}
func (s *Store) SetNumInactiveBeforeCut(ctx context.Context, v int) error {
	return s.setInt(ctx, keyInactiveBefore, v)
}

func (s *Store) NumTriesCallBusy(ctx context.Context) (int, error) { return s.getInt(ctx, keyTriesCallBusy) }
func (s *Store) SetNumTriesCallBusy(ctx context.Context, v int) error {
	return s.setInt(ctx, keyTriesCallBusy, v)
}

// SortBy is stored JSON-encoded since it is a list of (field, direction)
// pairs, not a scalar. The list is stored exactly as written; nothing
// here prepends ['importance', -1].
func (s *Store) SortBy(ctx context.Context) ([][2]interface{}, error) {
	raw, err := s.getString(ctx, keySortBy)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return [][2]interface{}{{"importance", -1}}, nil
	}
	var out [][2]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("state: parse sort_by: %w", err)
	}
	return out, nil
}

func (s *Store) SetSortBy(ctx context.Context, v [][2]interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode sort_by: %w", err)
	}
	return s.setString(ctx, keySortBy, string(data))
}

// FrequencyObservation is one DeltaFrequency sample recorded during a
// half-slot, keyed by the parity it was observed on.
type FrequencyObservation struct {
	Frequency uint32
}

func (s *Store) freqKey(even bool) string {
	if even {
		return keyEvenFreqs
	}
	return keyOddFreqs
}

// ResetFrequencies replaces one parity's observed-frequency list with the
// [min,max] bookend pair, run on every tx-end sweep.
func (s *Store) ResetFrequencies(ctx context.Context, even bool, min, max uint32) error {
	key := s.freqKey(even)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("state: reset %s: %w", key, err)
	}
	return s.rdb.RPush(ctx, key, min, max).Err()
}

// AppendFrequency records one more observed DeltaFrequency on the given
// parity's list.
func (s *Store) AppendFrequency(ctx context.Context, even bool, freq uint32) error {
	return s.rdb.RPush(ctx, s.freqKey(even), freq).Err()
}

// Frequencies returns every observed DeltaFrequency for one parity.
func (s *Store) Frequencies(ctx context.Context, even bool) ([]uint32, error) {
	vals, err := s.rdb.LRange(ctx, s.freqKey(even), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("state: read frequencies: %w", err)
	}
	out := make([]uint32, 0, len(vals))
	for _, v := range vals {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("state: parse frequency %q: %w", v, err)
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

// ChangeStatesFields is a batched set of the fields the receiver's Status
// handler updates together in one pipeline, matching states.py's
// change_states(**kwargs).
type ChangeStatesFields struct {
	MyCallsign *string
	MyGrid     *string
	DXCallsign *string
	DXGrid     *string
	TxEnabled  *bool
	Decoding   *bool
	TXDF       *int
	RXDF       *int
	TxEven     *bool
	Band       *int
	Mode       *string
}

// ChangeStates applies every non-nil field in one pipelined round trip.
func (s *Store) ChangeStates(ctx context.Context, f ChangeStatesFields) error {
	pipe := s.rdb.Pipeline()
	if f.MyCallsign != nil {
		pipe.Set(ctx, keyMyCallsign, *f.MyCallsign, 0)
	}
	if f.MyGrid != nil {
		pipe.Set(ctx, keyMyGrid, *f.MyGrid, 0)
	}
	if f.DXCallsign != nil {
		pipe.Set(ctx, keyDXCallsign, *f.DXCallsign, 0)
	}
	if f.DXGrid != nil {
		pipe.Set(ctx, keyDXGrid, *f.DXGrid, 0)
	}
	if f.TxEnabled != nil {
		pipe.Set(ctx, keyTxEnabled, boolToRedis(*f.TxEnabled), 0)
	}
	if f.Decoding != nil {
		pipe.Set(ctx, keyDecoding, boolToRedis(*f.Decoding), 0)
	}
	if f.TXDF != nil {
		pipe.Set(ctx, keyTXDF, strconv.Itoa(*f.TXDF), 0)
	}
	if f.RXDF != nil {
		pipe.Set(ctx, keyRXDF, strconv.Itoa(*f.RXDF), 0)
	}
	if f.TxEven != nil {
		pipe.Set(ctx, keyTxEven, boolToRedis(*f.TxEven), 0)
	}
	if f.Band != nil {
		pipe.Set(ctx, keyBand, strconv.Itoa(*f.Band), 0)
	}
	if f.Mode != nil {
		pipe.Set(ctx, keyMode, *f.Mode, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state: change_states: %w", err)
	}
	return nil
}

// TransmitBatch is the set of fields the transmitter loop reads together
// on every tick.
type TransmitBatch struct {
	Band                 int
	Mode                 string
	Tries                int
	TransmitCounter      int
	MaxTriesChangeFreq   int
	CurrentCallsign      string
	LastTxType           string
}

// ReadTransmitBatch fetches every field the transmitter needs for one tick,
// one key at a time.
func (s *Store) ReadTransmitBatch(ctx context.Context) (TransmitBatch, error) {
	var b TransmitBatch
	var err error
	if b.Band, err = s.Band(ctx); err != nil {
		return b, err
	}
	if b.Mode, err = s.Mode(ctx); err != nil {
		return b, err
	}
	if b.Tries, err = s.Tries(ctx); err != nil {
		return b, err
	}
	if b.TransmitCounter, err = s.TransmitCounter(ctx); err != nil {
		return b, err
	}
	if b.MaxTriesChangeFreq, err = s.MaxTriesChangeFrequency(ctx); err != nil {
		return b, err
	}
	if b.CurrentCallsign, err = s.CurrentCallsign(ctx); err != nil {
		return b, err
	}
	if b.LastTxType, err = s.LastTx(ctx); err != nil {
		return b, err
	}
	return b, nil
}
