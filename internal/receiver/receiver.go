// Package receiver implements the half of ft8op that listens to the
// WSJT-X UDP feed, classifies every decode, and maintains the shared
// candidate pool the transmitter loop works from. It never transmits
// itself; its only outbound traffic is the handful of host commands that
// keep WSJT-X's own state (frequency bookkeeping, monitoring) aligned
// with what it just observed.
package receiver

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	goversion "github.com/hashicorp/go-version"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cwsl/ft8op/internal/adif"
	"github.com/cwsl/ft8op/internal/band"
	"github.com/cwsl/ft8op/internal/config"
	"github.com/cwsl/ft8op/internal/geo"
	"github.com/cwsl/ft8op/internal/metrics"
	"github.com/cwsl/ft8op/internal/state"
	"github.com/cwsl/ft8op/internal/store"
	"github.com/cwsl/ft8op/internal/wsjtx"
)

// minWSJTXVersion is the oldest WSJT-X release ft8op is tested against.
// Older hosts are still accepted; the mismatch is only logged, never
// treated as fatal, the same tolerant posture the teacher takes toward
// client version skew.
var minWSJTXVersion = goversion.Must(goversion.NewVersion("2.5.0"))

// Loop is the receiver's dependency bundle: shared KV store, document
// store, geo lookups, operator exception lists, and metrics. One Loop
// handles every packet from the locked host address.
type Loop struct {
	Config     *config.Config
	State      *state.Store
	Store      *store.Store
	CTY        *geo.Table
	Geo        *geo.IPService
	Exceptions *ExceptionLists
	Metrics    *metrics.Metrics
	Commander  *state.Commander

	myCallsign string

	// lockedAddr is the first-observed WSJT-X UDP source address. Once
	// set, every packet from any other address is dropped for the
	// process lifetime, mirroring the Python original's IP_LOCK list.
	lockedAddr *net.UDPAddr
}

// NewLoop builds a receiver loop bound to its dependencies.
func NewLoop(cfg *config.Config, st *state.Store, doc *store.Store, cty *geo.Table, exc *ExceptionLists, m *metrics.Metrics) *Loop {
	return &Loop{Config: cfg, State: st, Store: doc, CTY: cty, Exceptions: exc, Metrics: m}
}

// Init seeds policy knobs into the shared store and performs the one-time
// startup sweeps: flush the database, adopt stale in-flight logScript
// rows as authoritative, and optionally rework unconfirmed QSOs.
func (l *Loop) Init(ctx context.Context) error {
	if err := l.State.FlushAll(ctx); err != nil {
		return err
	}
	p := l.Config.Policy
	if err := l.State.SetNewGrid(ctx, p.NewGrid); err != nil {
		return err
	}
	if err := l.State.SetNewDXCC(ctx, p.NewDXCC); err != nil {
		return err
	}
	if err := l.State.SetMinDB(ctx, p.MinDB); err != nil {
		return err
	}
	if err := l.State.SetNumInactiveBeforeCut(ctx, p.NumInactiveBeforeCut); err != nil {
		return err
	}
	if err := l.State.SetNumTriesCallBusy(ctx, p.NumTriesCallBusy); err != nil {
		return err
	}
	if err := l.State.SetNumDisableTransmit(ctx, p.NumDisableTransmit); err != nil {
		return err
	}

	if err := l.Store.AdoptStaleLogScriptEntries(ctx, time.Now().Add(-15*time.Minute)); err != nil {
		return err
	}
	if p.WorkOnUnconfirmedQSO {
		if err := l.Store.DeleteUnconfirmed(ctx); err != nil {
			return err
		}
	}

	return l.State.SetReceiverStarted(ctx, true)
}

// HandlePacket dispatches one decoded packet to its handler. Unknown
// payload types are logged and dropped, never treated as fatal: a single
// malformed or unrecognized datagram must not take the loop down.
func (l *Loop) HandlePacket(ctx context.Context, pkt interface{}, from *net.UDPAddr) error {
	if from != nil {
		locked, err := l.checkIPLock(ctx, from)
		if err != nil {
			return err
		}
		if !locked {
			return nil
		}
	}

	switch p := pkt.(type) {
	case *wsjtx.Heartbeat:
		return l.handleHeartbeat(ctx, p, from)
	case *wsjtx.Status:
		return l.handleStatus(ctx, p)
	case *wsjtx.Decode:
		return l.handleDecode(ctx, p)
	case *wsjtx.LoggedADIF:
		return l.handleLoggedADIF(ctx, p)
	case *wsjtx.Close:
		return l.State.SetClosed(ctx, true)
	default:
		log.Printf("receiver: dropping unhandled packet type %T", pkt)
		return nil
	}
}

// checkIPLock adopts the first-observed source address as the locked WSJT-X
// host and rejects every other sender from then on. On the locking packet
// itself it also seeds the first-contact policy: enable monitoring, retune
// the TX offset to the midpoint of the [min, max] frequency window, and
// turn on the RR73 shortcut, the same sequence
// the Python original runs the instant IP_LOCK is set.
func (l *Loop) checkIPLock(ctx context.Context, from *net.UDPAddr) (bool, error) {
	if l.lockedAddr != nil {
		return l.lockedAddr.IP.Equal(from.IP) && l.lockedAddr.Port == from.Port, nil
	}

	l.lockedAddr = from
	if err := l.State.SetIP(ctx, from.IP.String()); err != nil {
		return false, err
	}
	if err := l.State.SetPort(ctx, from.Port); err != nil {
		return false, err
	}
	log.Printf("receiver: locked to host %s", from)

	if l.Commander != nil {
		if err := l.Commander.EnableMonitoring(); err != nil {
			return false, err
		}
		mid := (l.Config.Policy.MaxFrequency + l.Config.Policy.MinFrequency) / 2
		if err := l.Commander.ChangeFrequency(ctx, mid); err != nil {
			return false, err
		}
		if err := l.Commander.EnableRR73(); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (l *Loop) handleHeartbeat(ctx context.Context, p *wsjtx.Heartbeat, from *net.UDPAddr) error {
	l.Metrics.HeartbeatsReceived.Inc()
	if v, err := goversion.NewVersion(p.Version); err == nil && v.LessThan(minWSJTXVersion) {
		log.Printf("receiver: WSJT-X %s is older than the tested minimum %s", v, minWSJTXVersion)
	}
	if err := l.Exceptions.Reload(); err != nil {
		log.Printf("receiver: reload exception lists: %v", err)
	}
	if l.Geo != nil && l.Geo.IsEnabled() && from != nil {
		if country := l.Geo.CountryForIP(from.IP.String()); country != "" {
			log.Printf("receiver: heartbeat from %s (%s)", from, country)
			return l.State.SetClosed(ctx, false)
		}
	}
	log.Printf("receiver: heartbeat from %s", from)
	return l.State.SetClosed(ctx, false)
}

// handleStatus updates the shared snapshot of WSJT-X's own state and runs
// the tx-start/tx-end/band-change/mode-change sweeps.
func (l *Loop) handleStatus(ctx context.Context, p *wsjtx.Status) error {
	prevTransmitting, err := l.State.Transmitting(ctx)
	if err != nil {
		return err
	}
	prevBand, err := l.State.Band(ctx)
	if err != nil {
		return err
	}
	prevMode, err := l.State.Mode(ctx)
	if err != nil {
		return err
	}

	currentBand := band.FreqToBand(p.Frequency / 1000)
	currentMode := p.Mode

	fields := state.ChangeStatesFields{
		MyGrid:    &p.DeGrid,
		DXGrid:    &p.DXGrid,
		TxEnabled: &p.TXEnabled,
		Decoding:  &p.Decoding,
		TxEven:    &p.TxEven,
	}
	if p.DeCall != "" {
		fields.MyCallsign = &p.DeCall
		l.myCallsign = p.DeCall
	}
	if p.DXCall != "" {
		fields.DXCallsign = &p.DXCall
	}
	txdf := int(p.TXdf)
	rxdf := int(p.RXdf)
	fields.TXDF = &txdf
	fields.RXDF = &rxdf
	if err := l.State.ChangeStates(ctx, fields); err != nil {
		return err
	}

	isTransmitting := p.Transmitting && !prevTransmitting
	isDoneTransmitting := !p.Transmitting && prevTransmitting
	isChangingBand := prevBand != 0 && prevBand != currentBand
	isChangingMode := prevMode != "" && prevMode != currentMode
	if err := l.State.SetTransmitting(ctx, p.Transmitting); err != nil {
		return err
	}

	if isTransmitting {
		log.Printf("receiver: tx start on %s/%d", currentMode, currentBand)
	}

	if isDoneTransmitting {
		if err := l.onTxEnd(ctx, currentBand, currentMode, p.LastTxMsg); err != nil {
			return err
		}
	}

	if isChangingBand {
		if err := l.Store.DeleteBandMode(ctx, prevBand, prevMode); err != nil {
			return err
		}
	}
	if isChangingMode {
		if err := l.Store.DeleteMode(ctx, prevMode); err != nil {
			return err
		}
	}

	if err := l.State.SetBand(ctx, currentBand); err != nil {
		return err
	}
	if err := l.State.SetMode(ctx, currentMode); err != nil {
		return err
	}
	return l.State.SetStatesCompleted(ctx, true)
}

// onTxEnd runs every time WSJT-X finishes a transmission: it ages out
// expired/spammed candidates, resets frequency tracking for the next
// half-slot, and -- keyed off WHAT FT8OP ITSELF JUST SENT (lastTxMsg, the
// host's own Status.LastTxMsg) -- advances the tries/inactive_count/
// transmit_counter cutoff bookkeeping and the log/blacklist handoff for a
// completed QSO. None of this is driven by what the other station sent;
// the message we transmitted is the only trustworthy signal that a
// scheduled reply actually went out.
func (l *Loop) onTxEnd(ctx context.Context, currentBand int, currentMode string, lastTxMsg string) error {
	now := float64(time.Now().Unix())
	p := l.Config.Policy
	half := band.TimingTable[band.Mode(currentMode)].Half

	if err := l.Store.SweepExpired(ctx, now-p.ExpiredTime+half+2); err != nil {
		return err
	}
	if err := l.Store.ReleaseSpam(ctx, now-p.ReleaseFromSpamTime+half+2); err != nil {
		return err
	}
	if err := l.Exceptions.Reload(); err != nil {
		return err
	}
	if err := l.State.ResetFrequencies(ctx, true, p.MinFrequency, p.MaxFrequency); err != nil {
		return err
	}
	if err := l.State.ResetFrequencies(ctx, false, p.MinFrequency, p.MaxFrequency); err != nil {
		return err
	}

	previousTxMsg, err := l.State.LastTxMsg(ctx)
	if err != nil {
		return err
	}
	if err := l.State.SetLastTxMsg(ctx, lastTxMsg); err != nil {
		return err
	}

	sent := wsjtx.ParseMessage(lastTxMsg)
	previous := wsjtx.ParseMessage(previousTxMsg)

	if err := l.State.SetCurrentCallsign(ctx, sent.To); err != nil {
		return err
	}

	transmitterStarted, err := l.State.TransmitterStarted(ctx)
	if err != nil {
		return err
	}

	if sent.Matched {
		isSameMessage := previous.Matched && sent.Type == previous.Type && sent.To == previous.To
		if err := l.advanceTxCutoff(ctx, currentBand, currentMode, sent, isSameMessage, transmitterStarted); err != nil {
			return err
		}
		if sent.Type == string(wsjtx.MsgR73) {
			isFinal := !(transmitterStarted && sent.R73 != "73")
			if err := l.onTxR73(ctx, currentBand, currentMode, sent, isFinal); err != nil {
				return err
			}
		}
	}

	numDisable, err := l.State.NumDisableTransmit(ctx)
	if err != nil {
		return err
	}
	if numDisable > 0 && transmitterStarted {
		counter, err := l.State.EnableTransmitCounter(ctx)
		if err != nil {
			return err
		}
		counter = (counter + 1) % numDisable
		if err := l.State.SetEnableTransmitCounter(ctx, counter); err != nil {
			return err
		}
		if counter == 0 && l.Commander != nil {
			if err := l.Commander.DisableTransmit(ctx); err != nil {
				return err
			}
		}
		if l.Commander != nil {
			if err := l.Commander.EnableMonitoring(); err != nil {
				return err
			}
		}
	}
	return nil
}

// advanceTxCutoff updates the rolling tries/inactive_count/transmit_counter
// triple and applies the tried/expired/isSpam cutoffs against the target
// candidate's own configured budget, once ft8op has actually transmitted
// the nextTx step that candidate was waiting on. The cutoffs are checked
// in that order and only the first one that fires is applied.
func (l *Loop) advanceTxCutoff(ctx context.Context, currentBand int, currentMode string, sent wsjtx.Parsed, isSameMessage, transmitterStarted bool) error {
	if !transmitterStarted {
		if err := l.State.SetTries(ctx, 0); err != nil {
			return err
		}
		if err := l.State.SetInactiveCount(ctx, 0); err != nil {
			return err
		}
		return l.State.SetTransmitCounter(ctx, 0)
	}

	tries, inactiveCount, transmitCounter := 1, 1, 1
	if isSameMessage {
		var err error
		if tries, err = l.State.Tries(ctx); err != nil {
			return err
		}
		if inactiveCount, err = l.State.InactiveCount(ctx); err != nil {
			return err
		}
		if transmitCounter, err = l.State.TransmitCounter(ctx); err != nil {
			return err
		}
		tries++
		inactiveCount++
		transmitCounter++
	}

	var cand *store.Candidate
	if sent.Type != string(wsjtx.MsgCQ) && sent.To != "" {
		var err error
		cand, err = l.Store.FindCandidate(ctx, sent.To, currentBand, currentMode)
		if err != nil {
			return err
		}
	}

	nextTx := "R73"
	maxTries := l.Config.Policy.MaxTries
	maxTransmitCount := 2 * l.Config.Policy.MaxTries
	numInactiveBeforeCut := l.Config.Policy.NumInactiveBeforeCut
	if cand != nil {
		nextTx = cand.NextTx
		maxTries = cand.Tries
		maxTransmitCount = cand.MaxTransmitCount
		numInactiveBeforeCut = cand.NumInactiveBeforeCut
	}

	if nextTx == sent.Type {
		if tries >= maxTries {
			tries, inactiveCount = 0, 0
			if cand != nil {
				if err := l.Store.SetCandidateFields(ctx, sent.To, currentBand, currentMode, bson.M{"tried": true}); err != nil {
					return err
				}
				log.Printf("receiver: %s max tried at %d attempts", sent.To, maxTries)
			}
		} else if numInactiveBeforeCut > 0 && inactiveCount > numInactiveBeforeCut {
			tries, inactiveCount = 0, 0
			if cand != nil {
				if err := l.Store.SetCandidateFields(ctx, sent.To, currentBand, currentMode, bson.M{"expired": true}); err != nil {
					return err
				}
				log.Printf("receiver: %s expired after %d inactive replies", sent.To, numInactiveBeforeCut)
			}
		} else if transmitCounter >= maxTransmitCount {
			tries, inactiveCount, transmitCounter = 0, 0, 0
			if cand != nil {
				if err := l.Store.SetCandidateFields(ctx, sent.To, currentBand, currentMode, bson.M{"tried": true, "isSpam": true}); err != nil {
					return err
				}
				log.Printf("receiver: %s looping after %d transmissions, marking spam", sent.To, maxTransmitCount)
			}
		}
	}

	if err := l.State.SetTries(ctx, tries); err != nil {
		return err
	}
	if err := l.State.SetInactiveCount(ctx, inactiveCount); err != nil {
		return err
	}
	return l.State.SetTransmitCounter(ctx, transmitCounter)
}

// onTxR73 runs the log/blacklist handoff for OUR OWN outbound R73 message
// (RRR, R73, RR73 or a bare 73): the first such message for a contact logs
// it and inserts its logScript blacklist row. isFinal (a bare "73")
// decides what happens to the candidate: a final 73 deletes it, an
// RRR/R73/RR73 ack keeps it with isNewCallsign/isNewDXCC cleared. This is
// the only place a completed QSO gets logged: a decoded 73 from the other
// station is not enough, since ft8op might still be mid-retransmission of
// an earlier step when that decode arrives.
func (l *Loop) onTxR73(ctx context.Context, currentBand int, currentMode string, sent wsjtx.Parsed, isFinal bool) error {
	cand, err := l.Store.FindCandidate(ctx, sent.To, currentBand, currentMode)
	if err != nil {
		return err
	}

	if !isFinal {
		if cand != nil {
			if err := l.Store.SetCandidateFields(ctx, sent.To, currentBand, currentMode, bson.M{"isNewCallsign": false, "isNewDXCC": false}); err != nil {
				return err
			}
		}
	} else if _, err := l.Store.DeleteCandidate(ctx, sent.To, currentBand, currentMode); err != nil {
		return err
	}

	existing, err := l.Store.FindBlacklistLogScript(ctx, sent.To, currentBand, currentMode)
	if err != nil {
		return err
	}
	if existing != nil {
		l.Metrics.QSOsCompleted.WithLabelValues(fmt.Sprint(currentBand), currentMode).Inc()
		return nil
	}

	if l.Commander != nil {
		if err := l.Commander.LogQSO(ctx, sent.To); err != nil {
			return err
		}
	}

	country, dxcc, continent, grid := "", 0, "", ""
	if cand != nil {
		country, dxcc, continent, grid = cand.Country, cand.DXCC, cand.Continent, cand.Grid
	}
	if country == "" {
		if res, ok := l.CTY.LookupCallsign(sent.To); ok {
			country, dxcc, continent = res.Country, res.DXCC, res.Continent
		}
	}
	if grid == "" {
		if g, ok, err := l.Store.GridForCallsign(ctx, sent.To); err == nil && ok {
			grid = g
		}
	}

	entry := &store.BlacklistEntry{
		Callsign:   sent.To,
		Band:       currentBand,
		Mode:       currentMode,
		Confirmed:  true,
		FromScript: true,
		LogScript:  true,
		Country:    country,
		DXCC:       dxcc,
		Continent:  continent,
		Grid:       grid,
		Timestamp:  float64(time.Now().Unix()),
	}
	if err := l.Store.InsertBlacklist(ctx, entry); err != nil {
		return err
	}
	l.Metrics.QSOsCompleted.WithLabelValues(fmt.Sprint(currentBand), currentMode).Inc()
	return nil
}

// handleDecode classifies one decoded message and applies the admission
// pipeline: message-history bookkeeping always happens; candidate
// admission happens only when the message passes every gate for its type.
func (l *Loop) handleDecode(ctx context.Context, p *wsjtx.Decode) error {
	statesCompleted, err := l.State.StatesCompleted(ctx)
	if err != nil {
		return err
	}
	if !statesCompleted {
		return nil
	}

	currentBand, err := l.State.Band(ctx)
	if err != nil {
		return err
	}
	currentMode, err := l.State.Mode(ctx)
	if err != nil {
		return err
	}

	if p.DeltaFrequency >= l.Config.Policy.MinFrequency && p.DeltaFrequency <= l.Config.Policy.MaxFrequency {
		even := band.IsEven(band.Mode(currentMode), float64(p.Time)/1000)
		if err := l.State.AppendFrequency(ctx, even, p.DeltaFrequency); err != nil {
			return err
		}
	}

	parsed := wsjtx.ParseMessage(p.Message)
	if !parsed.Matched {
		log.Printf("receiver: dropping unparsed decode %q", p.Message)
		return nil
	}

	l.Metrics.DecodesTotal.WithLabelValues(fmt.Sprint(currentBand), currentMode, string(parsed.Type)).Inc()

	latest, err := l.Store.FindAndDeleteCandidate(ctx, parsed.Callsign, currentBand, currentMode)
	if err != nil {
		return err
	}
	if latest == nil {
		if hist, err := l.Store.FindMessageHistory(ctx, parsed.Callsign, currentBand, currentMode); err == nil {
			latest = hist
		}
	}

	cand, err := l.completeCandidate(ctx, parsed, p, currentBand, currentMode, latest)
	if err != nil {
		return err
	}

	if err := l.Store.UpsertMessageHistory(ctx, cand); err != nil {
		return err
	}

	if l.Exceptions.IsCallsignExcepted(cand.Callsign) {
		l.Metrics.CandidatesRejected.WithLabelValues(fmt.Sprint(currentBand), currentMode, "callsign_exception").Inc()
		return nil
	}
	if cand.Country == "" {
		l.Metrics.CandidatesRejected.WithLabelValues(fmt.Sprint(currentBand), currentMode, "no_country").Inc()
		return nil
	}

	if cand.IsVIPDXCC {
		cand.Tries = l.Config.Policy.MaxTriesVIP
		cand.MaxTransmitCount = 2 * l.Config.Policy.MaxTriesVIP
		cand.NumInactiveBeforeCut = l.Config.Policy.NumInactiveBeforeCutVIP
	}

	currentCallsign, err := l.State.CurrentCallsign(ctx)
	if err != nil {
		return err
	}
	if cand.NumInactiveBeforeCut > 0 && cand.Callsign == currentCallsign {
		if err := l.State.SetInactiveCount(ctx, 0); err != nil {
			return err
		}
	}

	return l.admit(ctx, parsed, cand, latest, currentBand, currentMode)
}

// completeCandidate merges location/grid data into the raw decode and
// fills in every computed field the admission pipeline and the
// transmitter loop both depend on.
func (l *Loop) completeCandidate(ctx context.Context, parsed wsjtx.Parsed, p *wsjtx.Decode, bandTag int, mode string, latest *store.Candidate) (*store.Candidate, error) {
	c := &store.Candidate{
		Callsign:         parsed.Callsign,
		PrefixedCallsign: parsed.PrefixedCallsign,
		Suffix:           parsed.Suffix,
		Suffix2:          parsed.Suffix2,
		Suffix3:          parsed.Suffix3,
		To:               parsed.To,
		Type:             string(parsed.Type),
		Grid:             parsed.Grid,
		R73:              parsed.R73,
		Extra:            parsed.Extra,
		Band:             bandTag,
		Mode:             mode,
		SNR:              int(p.SNR),
		Time:             p.Time,
		DeltaTime:        p.DeltaTime,
		DeltaFrequency:   p.DeltaFrequency,
		Message:          p.Message,
		Expired:          false,
		Tried:            false,
		IsReemerging:     false,
		IsSpam:           false,
		SkipGrid:         true,
		Timestamp:        float64(time.Now().Unix()),
	}
	if parsed.HasSNR {
		c.SNR = parsed.SNR
	}

	c.IsEven = band.IsEven(band.Mode(mode), float64(p.Time)/1000)

	country, dxcc, continent := "", 0, ""
	if latest != nil && latest.Country != "" {
		country, dxcc, continent = latest.Country, latest.DXCC, latest.Continent
	} else if res, ok := l.CTY.LookupCallsign(c.Callsign); ok {
		country, dxcc, continent = res.Country, res.DXCC, res.Continent
	}
	c.Country, c.DXCC, c.Continent = country, dxcc, continent

	grid := parsed.Grid
	if grid == "" && latest != nil {
		grid = latest.Grid
	}
	if grid == "" {
		if g, ok, err := l.Store.GridForCallsign(ctx, c.Callsign); err == nil && ok {
			grid = g
		}
	}
	c.Grid = grid
	if grid != "" {
		if err := l.Store.SetGridHint(ctx, c.Callsign, grid); err != nil {
			return nil, err
		}
	}
	if c.Grid == "" {
		if res, ok := l.CTY.LookupCallsign(c.Callsign); ok {
			if g, err := geo.LatLonToLocator(res.Latitude, res.Longitude); err == nil {
				c.Grid = g
			}
		}
	}

	if latest != nil {
		c.IsValid = latest.IsValid
	}

	c.NextTx = l.nextTxType(c)

	if latest != nil {
		c.IsNewCallsign = latest.IsNewCallsign
		c.IsNewDXCC = latest.IsNewDXCC
	} else {
		isNewCall, err := l.Store.IsNewCallsign(ctx, c.Callsign, bandTag, mode)
		if err != nil {
			return nil, err
		}
		c.IsNewCallsign = isNewCall
		isNewDXCC, err := l.Store.IsNewDXCC(ctx, dxcc, bandTag, mode)
		if err != nil {
			return nil, err
		}
		c.IsNewDXCC = isNewDXCC
	}

	c.IsVIPDXCC = l.Exceptions.IsVIP(country)
	c.Tries = l.Config.Policy.MaxTries
	c.MaxTransmitCount = 2 * l.Config.Policy.MaxTries
	c.NumInactiveBeforeCut = l.Config.Policy.NumInactiveBeforeCut

	return c, nil
}

// nextTxType predicts the next message type ft8op would send in reply,
// the GRID->SNR->RSNR->R73 chain applying only when the decode is
// addressed to ft8op's own callsign; every other case predicts SNR
// because skipGrid is always true.
func (l *Loop) nextTxType(c *store.Candidate) string {
	if c.To != l.myCallsign {
		return "SNR"
	}
	switch c.Type {
	case string(wsjtx.MsgGrid):
		return "SNR"
	case string(wsjtx.MsgSNR):
		return "RSNR"
	case string(wsjtx.MsgRSNR):
		return "R73"
	case string(wsjtx.MsgR73):
		return "R73"
	default:
		return "SNR"
	}
}

// admit applies the per-type admission gates and, if they pass, upserts
// the candidate into the live pool.
func (l *Loop) admit(ctx context.Context, parsed wsjtx.Parsed, c *store.Candidate, latest *store.Candidate, bandTag int, mode string) error {
	bonus := l.Exceptions.PriorityBonus(c.Country)

	// "already talking with me" / "already spammed" guard, shared by every
	// not-addressed-to-me path (CQ, R73-to-other, GRID-else, SNR-else,
	// RSNR-else) and by CQ's own re-admission check.
	restoreInProgress := func() (bool, error) {
		if latest == nil {
			return false, nil
		}
		if latest.To == l.myCallsign && latest.R73 != "73" {
			if latest.Tried && latest.NextTx == "R73" {
				return true, nil // drop entirely, nothing to restore
			}
			if !(latest.Tried && latest.IsReemerging) {
				restored := *latest
				if latest.Tried {
					restored.Expired = false
					restored.Tried = false
					restored.Timestamp = float64(time.Now().Unix())
					restored.IsReemerging = true
				}
				if err := l.Store.UpsertCandidate(ctx, &restored); err != nil {
					return true, err
				}
			}
			return true, nil
		}
		if latest.IsSpam && latest.NextTx == c.NextTx {
			if err := l.Store.UpsertCandidate(ctx, latest); err != nil {
				return true, err
			}
			return true, nil
		}
		return false, nil
	}

	switch parsed.Type {
	case wsjtx.MsgCQ:
		if c.Grid != "" {
			if err := l.Store.SetGridHint(ctx, c.Callsign, c.Grid); err != nil {
				return err
			}
		}
		handled, err := restoreInProgress()
		if err != nil || handled {
			return err
		}
		ok, err := l.filterCQ(ctx, c, bandTag, mode)
		if err != nil {
			return err
		}
		if !ok {
			l.Metrics.CandidatesRejected.WithLabelValues(fmt.Sprint(bandTag), mode, "filter_cq").Inc()
			return nil
		}
		if l.Config.Policy.ValidateCallsign && !l.validateCallsign(c.Callsign) {
			l.Metrics.CandidatesRejected.WithLabelValues(fmt.Sprint(bandTag), mode, "invalid_callsign").Inc()
			return nil
		}
		c.Importance = 1 + bonus
		return l.upsertAdmitted(ctx, c, bandTag, mode)

	case wsjtx.MsgR73:
		if c.To == l.myCallsign {
			if c.R73 == "73" {
				// A decoded final 73 addressed to us is not the trigger
				// for logging or blacklisting: that handoff only runs in
				// onTxEnd, gated on ft8op's own outbound R73, since we
				// might still be retransmitting an earlier step when
				// this decode arrives.
				return nil
			}
			c.Importance = 4 + bonus
			if latest != nil && latest.NextTx == c.NextTx {
				c.IsSpam = latest.IsSpam
			}
			return l.upsertAdmitted(ctx, c, bandTag, mode)
		}
		handled, err := restoreInProgress()
		if err != nil || handled {
			return err
		}
		ok, err := l.filterCQ(ctx, c, bandTag, mode)
		if err != nil || !ok {
			return err
		}
		if l.Config.Policy.ValidateCallsign && !l.validateCallsign(c.Callsign) {
			return nil
		}
		c.Importance = 1 + bonus
		return l.upsertAdmitted(ctx, c, bandTag, mode)

	case wsjtx.MsgGrid:
		if c.Grid != "" {
			if err := l.Store.SetGridHint(ctx, c.Callsign, c.Grid); err != nil {
				return err
			}
		}
		if c.To == l.myCallsign {
			c.Importance = 1 + bonus
			if latest != nil && latest.NextTx == c.NextTx {
				c.IsSpam = latest.IsSpam
			}
			return l.upsertAdmitted(ctx, c, bandTag, mode)
		}
		if handled, err := restoreInProgress(); err != nil || handled {
			return err
		}
		return l.admitAddressedToOther(ctx, c, latest, bandTag, mode, bonus, gridImportance(l.Config.Policy.GridHigherThanCQ, bonus), l.Config.Policy.NumTriesCallBusy)

	case wsjtx.MsgSNR:
		if c.To == l.myCallsign {
			c.Importance = 2 + bonus
			if latest != nil && latest.NextTx == c.NextTx {
				c.IsSpam = latest.IsSpam
			}
			return l.upsertAdmitted(ctx, c, bandTag, mode)
		}
		if handled, err := restoreInProgress(); err != nil || handled {
			return err
		}
		return l.admitAddressedToOther(ctx, c, latest, bandTag, mode, bonus, 1+bonus, l.Config.Policy.NumTriesCallBusy)

	case wsjtx.MsgRSNR:
		if c.To == l.myCallsign {
			c.Importance = 3 + bonus
			if latest != nil && latest.NextTx == c.NextTx {
				c.IsSpam = latest.IsSpam
			}
			return l.upsertAdmitted(ctx, c, bandTag, mode)
		}
		if handled, err := restoreInProgress(); err != nil || handled {
			return err
		}
		return l.admitAddressedToOther(ctx, c, latest, bandTag, mode, bonus, 1+bonus, l.Config.Policy.NumTriesCallBusy)
	}
	return nil
}

func gridImportance(gridHigherThanCQ bool, bonus float64) float64 {
	if gridHigherThanCQ {
		return 1.5 + bonus
	}
	return 1 + bonus
}

// admitAddressedToOther is the shared not-addressed-to-me admission path
// for GRID/SNR/RSNR decodes: requires the addressee not be on the
// receiver-exception list and enough "call busy" tries configured, then
// applies the same filter_cq/validate_callsign gates as CQ.
func (l *Loop) admitAddressedToOther(ctx context.Context, c *store.Candidate, latest *store.Candidate, bandTag int, mode string, bonus, importance float64, triesCallBusy int) error {
	if triesCallBusy <= 0 {
		return nil
	}
	if l.Exceptions.IsReceiverExcepted(c.To) {
		return nil
	}
	ok, err := l.filterCQ(ctx, c, bandTag, mode)
	if err != nil || !ok {
		return err
	}
	if l.Config.Policy.ValidateCallsign && !l.validateCallsign(c.Callsign) {
		return nil
	}
	c.Importance = importance
	c.Tries = triesCallBusy
	if l.Exceptions.IsVIP(c.Country) {
		c.Tries = l.Config.Policy.NumTriesCallBusyVIP
	}
	if latest != nil {
		c.Tried = latest.Tried
		if latest.NextTx == c.NextTx {
			c.IsSpam = latest.IsSpam
		}
	}
	return l.upsertAdmitted(ctx, c, bandTag, mode)
}

func (l *Loop) upsertAdmitted(ctx context.Context, c *store.Candidate, bandTag int, mode string) error {
	if err := l.Store.UpsertCandidate(ctx, c); err != nil {
		return err
	}
	l.Metrics.CandidatesAdmitted.WithLabelValues(fmt.Sprint(bandTag), mode).Inc()
	l.Metrics.LastDecodeTimestamp.WithLabelValues(fmt.Sprint(bandTag), mode).Set(c.Timestamp)
	return nil
}

// filterCQ applies the admission gate shared by CQ and every
// not-addressed-to-me message type: reject callsigns already worked on
// this band/mode, weak signals, excepted DXCC entities, and messages with
// an extra CQ token from outside Oceania, then require at least one of
// new-grid, new-DXCC, or new-callsign.
func (l *Loop) filterCQ(ctx context.Context, c *store.Candidate, bandTag int, mode string) (bool, error) {
	if !c.IsNewCallsign {
		return false, nil
	}
	minDB, err := l.State.MinDB(ctx)
	if err != nil {
		return false, err
	}
	if c.SNR < minDB {
		return false, nil
	}
	for _, excepted := range l.Config.Policy.DXCCException {
		if excepted == c.Country {
			return false, nil
		}
	}
	if c.Extra != "" && c.Continent != "OC" {
		return false, nil
	}

	newGrid, err := l.State.NewGrid(ctx)
	if err != nil {
		return false, err
	}
	newDXCC, err := l.State.NewDXCC(ctx)
	if err != nil {
		return false, err
	}

	if newGrid && c.Grid != "" {
		worked, err := l.Store.GridWorked(ctx, c.Grid, bandTag, mode)
		if err != nil {
			return false, err
		}
		if !worked {
			return true, nil
		}
	}
	if newDXCC && c.IsNewDXCC {
		return true, nil
	}
	return c.IsNewCallsign, nil
}

// validateCallsign checks the pre-validated list before falling back to
// treating an unrecognized callsign as invalid. A real lookup service
// (QRZ or similar) is out of scope here: the operator-maintained list is
// the sole source of truth, matching ft8op's offline-friendly posture.
func (l *Loop) validateCallsign(callsign string) bool {
	if l.Exceptions.IsPreValidated(callsign) {
		return true
	}
	if err := l.Exceptions.AddCallsignException(callsign); err != nil {
		log.Printf("receiver: persist callsign exception for %s: %v", callsign, err)
	}
	return false
}

// handleLoggedADIF ingests one host-logged QSO notification, updating the
// matching logScript blacklist row with the host-confirmed QSOID.
func (l *Loop) handleLoggedADIF(ctx context.Context, p *wsjtx.LoggedADIF) error {
	recs, _, err := adif.Parse([]byte(p.ADIF))
	if err != nil {
		log.Printf("receiver: parse LoggedADIF payload: %v", err)
		return nil
	}
	if len(recs) == 0 {
		return nil
	}
	rec := recs[0]
	callsign := adif.NormalizeCallsign(rec["CALL"])
	bandTag, mode := 0, ""
	if b, err := l.State.Band(ctx); err == nil {
		bandTag = b
	}
	if m, err := l.State.Mode(ctx); err == nil {
		mode = m
	}
	qsoID := adif.QSOID(rec)
	log.Printf("receiver: LoggedADIF for %s band=%d mode=%s qsoid=%s", callsign, bandTag, mode, qsoID)
	return l.Store.SetQSOID(ctx, callsign, bandTag, mode, qsoID)
}

// IngestADIFStartup parses a full logbook export (QRZ or a local file) and
// upserts every FT8/FT4 QSO as a blacklist row, run once at startup.
// Unconfirmed QSOs are skipped when WorkOnUnconfirmedQSO is set and kept
// (with Confirmed false) otherwise.
func (l *Loop) IngestADIFStartup(ctx context.Context, data []byte) error {
	recs, _, err := adif.Parse(data)
	if err != nil {
		return fmt.Errorf("receiver: parse startup ADIF: %w", err)
	}
	for _, rec := range recs {
		if rec["MODE"] != "FT8" && rec["MODE"] != "FT4" {
			continue
		}
		confirmed := adif.IsConfirmed(rec)
		if l.Config.Policy.WorkOnUnconfirmedQSO && !confirmed {
			continue
		}
		bandTag := 0
		if freq, err := parseFreqKHz(rec["FREQ"]); err == nil {
			bandTag = band.FreqToBand(freq)
		} else if n, err := adif.StringBandToNumber(rec["BAND"]); err == nil {
			bandTag = n
		}
		entry := &store.BlacklistEntry{
			Callsign:   adif.NormalizeCallsign(rec["CALL"]),
			Band:       bandTag,
			Mode:       rec["MODE"],
			QSOID:      adif.QSOID(rec),
			Confirmed:  confirmed,
			FromScript: false,
			Grid:       rec["GRIDSQUARE"],
			Country:    rec["COUNTRY"],
			Timestamp:  float64(time.Now().Unix()),
		}
		if err := l.Store.UpsertBlacklist(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func parseFreqKHz(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("receiver: empty frequency")
	}
	var mhz float64
	if _, err := fmt.Sscanf(s, "%f", &mhz); err != nil {
		return 0, err
	}
	return uint64(mhz * 1000), nil
}
