// Package transmitter implements the half-slot-aligned busy-wait loop
// that picks the best candidate the receiver has surfaced and schedules
// the next outbound reply. It shares no memory with the receiver: every
// fact it needs comes from the Redis-backed state.Store and the
// Mongo-backed store.Store.
package transmitter

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/cwsl/ft8op/internal/band"
	"github.com/cwsl/ft8op/internal/config"
	"github.com/cwsl/ft8op/internal/metrics"
	"github.com/cwsl/ft8op/internal/state"
	"github.com/cwsl/ft8op/internal/store"
	"github.com/cwsl/ft8op/internal/wsjtx"
)

// Loop is the transmitter's dependency bundle.
type Loop struct {
	Config    *config.Config
	State     *state.Store
	Store     *store.Store
	Commander *state.Commander
	Metrics   *metrics.Metrics

	// isEven locks the half-slot parity ft8op is currently scheduling a
	// reply for; nil between transmissions, matching the Python
	// original's module-level IS_EVEN global.
	isEven *bool
}

// NewLoop builds a transmitter loop bound to its dependencies.
func NewLoop(cfg *config.Config, st *state.Store, doc *store.Store, cmd *state.Commander, m *metrics.Metrics) *Loop {
	return &Loop{Config: cfg, State: st, Store: doc, Commander: cmd, Metrics: m}
}

// Init seeds the transmitter-only policy knobs into the shared store and
// marks the transmitter as started, which the receiver's tx-end
// bookkeeping checks before advancing its counters.
func (l *Loop) Init(ctx context.Context) error {
	if err := l.State.SetSortBy(ctx, l.Config.Policy.SortBy); err != nil {
		return err
	}
	if err := l.State.SetInitialFrequency(ctx, int(l.Config.Policy.InitialFrequency)); err != nil {
		return err
	}
	if err := l.State.SetMaxTriesChangeFrequency(ctx, l.Config.Policy.MaxTriesChangeFrequency); err != nil {
		return err
	}
	return l.State.SetTransmitterStarted(ctx, true)
}

// Run busy-waits for the receiver to come up, then loops forever until
// ctx is cancelled or the shared store reports a close/stop condition.
func (l *Loop) Run(ctx context.Context) error {
	for {
		started, err := l.State.ReceiverStarted(ctx)
		if err != nil {
			return err
		}
		if started {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		closed, err := l.State.Closed(ctx)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
		started, err := l.State.ReceiverStarted(ctx)
		if err != nil {
			return err
		}
		if !started {
			return fmt.Errorf("transmitter: receiver stopped")
		}

		now := float64(time.Now().UnixNano()) / 1e9
		// Half-slot alignment is hard-coded to FT8's cadence regardless of
		// the active mode, the same simplification the Python original
		// makes in its busy-wait gate.
		ft8Half := band.TimingTable[band.FT8].Half
		if math.Mod(now, ft8Half) < ft8Half-0.2 {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		if err := l.tick(ctx, now); err != nil {
			return err
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// tick is one transmitter decision point: finish a pending transmit
// phase, or else pick and schedule the next reply.
func (l *Loop) tick(ctx context.Context, now float64) error {
	phase, err := l.State.TransmitPhase(ctx)
	if err != nil {
		return err
	}
	if phase {
		if err := l.Commander.EnableMonitoring(); err != nil {
			return err
		}
		if err := l.State.SetTransmitPhase(ctx, false); err != nil {
			return err
		}
		time.Sleep(500 * time.Millisecond)
		return nil
	}

	batch, err := l.State.ReadTransmitBatch(ctx)
	if err != nil {
		return err
	}
	if batch.Mode == "" {
		return nil
	}

	cand, err := l.Store.BestCandidate(ctx, batch.Band, batch.Mode, l.isEven, sortTailFromConfig(l.Config.Policy.SortBy))
	if err != nil {
		return err
	}

	if cand == nil {
		l.isEven = nil
		if err := l.State.SetCurrentCallsign(ctx, ""); err != nil {
			return err
		}
		if err := l.State.SetEnableTransmitCounter(ctx, 0); err != nil {
			return err
		}
		ip, err := l.State.IP(ctx)
		if err != nil {
			return err
		}
		if ip != "" && l.Commander != nil {
			if err := l.Commander.DisableTransmit(ctx); err != nil {
				return err
			}
			if err := l.Commander.ClearMessage(); err != nil {
				return err
			}
			if err := l.Commander.EnableMonitoring(); err != nil {
				return err
			}
		}
		return nil
	}

	mode := band.Mode(batch.Mode)
	messageEven := cand.IsEven
	currentEven := band.IsEven(mode, now)
	if messageEven != currentEven {
		return nil // wrong parity this tick, wait for the matching half-slot
	}
	l.isEven = &messageEven

	var renewFrequency, revertBack bool
	if batch.MaxTriesChangeFreq != 0 {
		renewFrequency = batch.Tries%batch.MaxTriesChangeFreq == 0
	} else {
		renewFrequency = batch.LastTxType == cand.NextTx
		revertBack = batch.CurrentCallsign != cand.Callsign
	}

	if err := l.reply(ctx, cand, messageEven, renewFrequency, revertBack); err != nil {
		return err
	}
	l.Metrics.TransmissionsSent.WithLabelValues(fmt.Sprint(batch.Band), batch.Mode, cand.NextTx).Inc()

	half := band.TimingTable[mode].Half
	time.Sleep(time.Duration(half/2*1000) * time.Millisecond)
	return nil
}

// reply schedules the next outbound transmission, following the
// frequency-renewal/revert-back decision already made by tick and the
// opposite-parity frequency-list rule: a reply scheduled for the odd
// half-slot reads the even list's observed frequencies and vice versa.
func (l *Loop) reply(ctx context.Context, cand *store.Candidate, txEven, renewFrequency, revertBack bool) error {
	var best *uint32
	var err error
	switch {
	case revertBack:
		best, err = l.bestCloseFrequency(ctx, txEven)
	case renewFrequency:
		best, err = l.bestFrequency(ctx, txEven)
	}
	if err != nil {
		return err
	}

	if err := l.State.SetCurrentCallsign(ctx, cand.Callsign); err != nil {
		return err
	}

	msg := wsjtx.Reply{
		Time:           cand.Time,
		SNR:            int32(cand.SNR),
		DeltaTime:      cand.DeltaTime,
		DeltaFrequency: cand.DeltaFrequency,
		Mode:           cand.Mode,
		Message:        cand.Message,
		NotScript:      false,
	}
	if err := l.Commander.Reply(ctx, msg, best, txEven); err != nil {
		return err
	}
	if err := l.State.SetTransmitPhase(ctx, true); err != nil {
		return err
	}
	if err := l.State.SetLastTx(ctx, cand.NextTx); err != nil {
		return err
	}
	log.Printf("transmitter: replying to %s with %s", cand.Callsign, cand.NextTx)
	return nil
}

// bestFrequency picks the midpoint of the widest gap between consecutive
// observed frequencies on the opposite parity's list, the policy used
// whenever a fresh clear offset is wanted.
func (l *Loop) bestFrequency(ctx context.Context, txEven bool) (*uint32, error) {
	freqs, err := l.observedFrequencies(ctx, txEven)
	if err != nil {
		return nil, err
	}
	return widestGapMidpoint(freqs), nil
}

// widestGapMidpoint is the pure "fresh clear offset" selection: the
// midpoint of the widest gap between consecutive sorted, deduplicated
// observed frequencies. Returns nil when fewer than two observations exist.
func widestGapMidpoint(freqs []uint32) *uint32 {
	if len(freqs) < 2 {
		return nil
	}
	var bestGap int64 = -1
	var bestMid uint32
	for i := 1; i < len(freqs); i++ {
		gap := int64(freqs[i]) - int64(freqs[i-1])
		if gap > bestGap {
			bestGap = gap
			bestMid = uint32((int64(freqs[i]) + int64(freqs[i-1])) / 2)
		}
	}
	return &bestMid
}

// bestCloseFrequency picks the consecutive-pair midpoint closest to the
// configured initial frequency, the "revert back toward home" policy used
// when switching to a brand-new callsign.
func (l *Loop) bestCloseFrequency(ctx context.Context, txEven bool) (*uint32, error) {
	freqs, err := l.observedFrequencies(ctx, txEven)
	if err != nil {
		return nil, err
	}
	initial, err := l.State.InitialFrequency(ctx)
	if err != nil {
		return nil, err
	}
	mid := widestGapMidpointClosestTo(freqs, initial, l.Config.Policy.MinFrequency, l.Config.Policy.MaxFrequency)
	return &mid, nil
}

// widestGapMidpointClosestTo is the pure "revert back toward home" pick:
// among MinFrequency, MaxFrequency, and the midpoint of every pair of
// consecutive sorted, deduplicated observed frequencies, the one nearest
// initial.
func widestGapMidpointClosestTo(freqs []uint32, initial int, minFrequency, maxFrequency uint32) uint32 {
	curBest := minFrequency
	if absDiff(initial, int(maxFrequency)) < absDiff(initial, int(minFrequency)) {
		curBest = maxFrequency
	}
	curMin := absDiff(initial, int(curBest))

	for i := 1; i < len(freqs); i++ {
		mid := uint32((int64(freqs[i]) + int64(freqs[i-1])) / 2)
		d := absDiff(initial, int(mid))
		if d < curMin {
			curMin = d
			curBest = mid
		}
	}
	return curBest
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func (l *Loop) observedFrequencies(ctx context.Context, txEven bool) ([]uint32, error) {
	// Replying on an odd half-slot reads the even list's observations and
	// vice versa: the opposite parity is what ft8op itself was listening
	// on while scheduling this reply.
	freqs, err := l.State.Frequencies(ctx, !txEven)
	if err != nil {
		return nil, err
	}
	sort.Slice(freqs, func(i, j int) bool { return freqs[i] < freqs[j] })
	return dedupe(freqs), nil
}

func dedupe(in []uint32) []uint32 {
	out := in[:0]
	var last uint32
	first := true
	for _, v := range in {
		if first || v != last {
			out = append(out, v)
			last = v
			first = false
		}
	}
	return out
}

// sortTailFromConfig translates the configured sortby list into a bson.D,
// dropping the leading ["importance", -1] entry that store.BestCandidate
// already applies unconditionally ahead of any tiebreaker.
func sortTailFromConfig(sortBy [][2]interface{}) bson.D {
	var tail bson.D
	for i, pair := range sortBy {
		key, _ := pair[0].(string)
		if key == "" || (i == 0 && key == "importance") {
			continue
		}
		val := 1
		switch v := pair[1].(type) {
		case float64:
			val = int(v)
		case int:
			val = v
		case int64:
			val = int(v)
		}
		tail = append(tail, bson.E{Key: key, Value: val})
	}
	return tail
}
