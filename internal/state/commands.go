package state

import (
	"context"
	"fmt"
	"net"

	"github.com/cwsl/ft8op/internal/wsjtx"
)

// Commander sends the outbound WSJT-X UDP commands and keeps the shared
// Store's flags in sync with what was just sent, mirroring the
// states.py command methods (halt_transmit, enable_monitoring, reply, ...)
// that bundle a socket write with a state update in one call.
type Commander struct {
	store *Store
	enc   wsjtx.Encoder
	conn  *net.UDPConn
	addr  *net.UDPAddr
}

// NewCommander builds a Commander bound to the locked host address.
func NewCommander(store *Store, enc wsjtx.Encoder, conn *net.UDPConn, addr *net.UDPAddr) *Commander {
	return &Commander{store: store, enc: enc, conn: conn, addr: addr}
}

func (c *Commander) send(data []byte) error {
	_, err := c.conn.WriteToUDP(data, c.addr)
	if err != nil {
		return fmt.Errorf("state: send to %s: %w", c.addr, err)
	}
	return nil
}

// HaltTransmit sends a HaltTx command and clears the transmitting flag.
// mode follows wsjtx.HaltTx semantics: false halts immediately, true
// finishes the current sequence first.
func (c *Commander) HaltTransmit(ctx context.Context, mode bool) error {
	if err := c.send(c.enc.EncodeHaltTx(mode)); err != nil {
		return err
	}
	return c.store.SetTransmitting(ctx, false)
}

// ClearWindow clears one of the host's decode windows.
func (c *Commander) ClearWindow(window uint8) error {
	return c.send(c.enc.EncodeClear(window))
}

// EnableMonitoring re-enables RX decoding without touching TX state.
func (c *Commander) EnableMonitoring() error {
	return c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxEnableMonitoring}))
}

// EnableRR73 turns on the RR73 shortcut (the first reply doubles as a
// signal report and a roger), sent once on first IP-lock alongside
// EnableMonitoring and the initial retune.
func (c *Commander) EnableRR73() error {
	return c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxEnableMonitoring, UseRR73: true}))
}

// EnableTransmit flips the host into transmit-enabled mode and records it.
func (c *Commander) EnableTransmit(ctx context.Context) error {
	if err := c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxEnable})); err != nil {
		return err
	}
	return c.store.SetTxEnabled(ctx, true)
}

// DisableTransmit flips the host out of transmit-enabled mode and records
// it.
func (c *Commander) DisableTransmit(ctx context.Context) error {
	if err := c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxDisable})); err != nil {
		return err
	}
	return c.store.SetTxEnabled(ctx, false)
}

// EnableGridTx tells the host to include the grid square in its next
// auto-generated transmission instead of skipping straight to a signal
// report.
func (c *Commander) EnableGridTx() error {
	return c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxSetFreqOrGrid, SkipGrid: false}))
}

// DisableGridTx tells the host to skip the grid-square exchange step, the
// ft8op default (states.py's skipGrid is always true).
func (c *Commander) DisableGridTx() error {
	return c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxSetFreqOrGrid, SkipGrid: true}))
}

// ChangeFrequency retunes the TX offset, keeping the skip-grid policy
// ft8op always runs with.
func (c *Commander) ChangeFrequency(ctx context.Context, deltaFreq uint32) error {
	if err := c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxSetFreqOrGrid, SkipGrid: true, Offset: deltaFreq})); err != nil {
		return err
	}
	return c.store.SetTXDF(ctx, int(deltaFreq))
}

// ChangeBand tells the host to switch to a new band and records it.
func (c *Commander) ChangeBand(ctx context.Context, band int) error {
	if err := c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxChangeBand})); err != nil {
		return err
	}
	return c.store.SetBand(ctx, band)
}

// ChangeTransmitSequence flips which half-slot parity ft8op transmits on.
func (c *Commander) ChangeTransmitSequence(ctx context.Context, even bool) error {
	idx := wsjtx.TxOdd
	if even {
		idx = wsjtx.TxEven
	}
	if err := c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: idx})); err != nil {
		return err
	}
	return c.store.SetTxEven(ctx, even)
}

// Reply schedules the next outbound transmission: it retunes to
// bestFrequency (when non-nil; nil means "keep the current offset"),
// flips parity only when the cached tx_even differs from what's wanted,
// and enqueues the message text built from the candidate record,
// mirroring states.py's reply().
func (c *Commander) Reply(ctx context.Context, msg wsjtx.Reply, bestFrequency *uint32, txEven bool) error {
	if bestFrequency != nil {
		msg.DeltaFrequency = *bestFrequency
		if err := c.ChangeFrequency(ctx, *bestFrequency); err != nil {
			return err
		}
	}
	current, err := c.store.TxEven(ctx)
	if err != nil {
		return err
	}
	if current != txEven {
		if err := c.ChangeTransmitSequence(ctx, txEven); err != nil {
			return err
		}
	}
	return c.send(c.enc.EncodeReply(msg))
}

// LogQSO tells the host to log the just-completed QSO itself: WSJT-X logs
// whatever is in its message box when it receives NewTxMsgIdx TxLogQSO,
// the same command the "Log QSO" button sends.
func (c *Commander) LogQSO(ctx context.Context, callsign string) error {
	if err := c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxLogQSO})); err != nil {
		return err
	}
	return c.store.SetLastTx(ctx, callsign)
}

// ClearMessage empties the host's outgoing message box.
func (c *Commander) ClearMessage() error {
	return c.send(c.enc.EncodeEnableTx(wsjtx.EnableTx{NewTxMsgIdx: wsjtx.TxClearMessage}))
}

// Close tells the host ft8op is shutting down.
func (c *Commander) Close() error {
	return c.send(c.enc.EncodeClose())
}
