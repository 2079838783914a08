package iec104

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Default window/timer values from the configuration options table.
const (
	DefaultK  = 12
	DefaultW  = 8
	DefaultT0 = 30 * time.Second
	DefaultT1 = 15 * time.Second
	DefaultT2 = 10 * time.Second
	DefaultT3 = 20 * time.Second

	defaultPollInterval = 2 * time.Second
	seqMask             = 0x7FFF
)

// State is the connection/data-transfer state machine of §4.3.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAwaitingStartCon
	StateActive
	StateAwaitingStopCon
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	case StateAwaitingStartCon:
		return "AwaitingStartCon"
	case StateActive:
		return "Active"
	case StateAwaitingStopCon:
		return "AwaitingStopCon"
	default:
		return "?"
	}
}

// EngineConfig carries the per-session tunables of the options table in §6.
type EngineConfig struct {
	K, W           int
	T0, T1, T2, T3 time.Duration

	// PollInterval bounds how long the receive loop blocks between checks
	// of its stop signal; it does not affect protocol behavior.
	PollInterval time.Duration
}

// DefaultEngineConfig returns the documented option defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		K: DefaultK, W: DefaultW,
		T0: DefaultT0, T1: DefaultT1, T2: DefaultT2, T3: DefaultT3,
		PollInterval: defaultPollInterval,
	}
}

type pendingU struct {
	expect UFunction
	done   chan error
}

// Engine is the protocol state machine of C3: sequence numbers, the k/w
// window, the four timers, the STARTDT/STOPDT/TESTFR handshakes and I/S/U
// dispatch. All mutable protocol state is guarded by mu — the "single lock"
// alternative to a mailbox task that §5 explicitly allows.
type Engine struct {
	cfg       EngineConfig
	transport *Transport
	lg        *logrus.Logger

	mu                sync.Mutex
	state             State
	vs, vr            uint16
	unackSent         int
	unackRecv         int
	timers            *timerSet
	pendingU          *pendingU
	queue             *asduQueue
	disconnectReason  error

	stopCh chan struct{}
	loopWG sync.WaitGroup
}

// NewEngine constructs an Engine bound to transport. Connect must still be
// called to bring the transport and receive/timer loops up.
func NewEngine(transport *Transport, cfg EngineConfig, lg *logrus.Logger) *Engine {
	if lg == nil {
		lg = defaultLogger
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Engine{
		cfg:       cfg,
		transport: transport,
		lg:        lg,
		timers:    newTimerSet(cfg.T0, cfg.T1, cfg.T2, cfg.T3),
		queue:     newASDUQueue(defaultQueueBound),
	}
}

// Connect dials the peer within t0 and starts the receive and timer loops.
// State becomes Connected on success; the caller still owns calling
// StartDataTransfer to reach Active.
func (e *Engine) Connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.T0)
	defer cancel()
	if err := e.transport.Connect(dialCtx); err != nil {
		return err
	}

	e.mu.Lock()
	e.state = StateConnected
	e.vs, e.vr = 0, 0
	e.unackSent, e.unackRecv = 0, 0
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	e.loopWG.Add(2)
	go e.receiveLoop(stopCh)
	go e.timerLoop(stopCh)
	return nil
}

// State reports the current connection state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// QueueOverflows reports how many received ASDUs have been dropped because
// the inbound queue was full (§5 backpressure policy).
func (e *Engine) QueueOverflows() uint64 {
	return e.queue.overflows()
}

// DequeueASDUs atomically drains the received-ASDU queue in on-wire order.
func (e *Engine) DequeueASDUs() []*ASDU {
	return e.queue.drain()
}

// StartDataTransfer sends STARTDT_act and blocks for STARTDT_con within t1.
func (e *Engine) StartDataTransfer() error {
	return e.runUHandshake(StateConnected, StateAwaitingStartCon, UStartDTAct, UStartDTCon)
}

// StopDataTransfer sends STOPDT_act and blocks for STOPDT_con within t1.
func (e *Engine) StopDataTransfer() error {
	return e.runUHandshake(StateActive, StateAwaitingStopCon, UStopDTAct, UStopDTCon)
}

// SendTestFrame sends TESTFR_act and blocks for TESTFR_con within t1. Unlike
// Start/Stop it does not change state; it may only be called in Active. The
// idle-t3 probe (onT3Fire) sends its own TESTFR_act without going through
// this method.
func (e *Engine) SendTestFrame() error {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return ErrNotActive
	}
	done := make(chan error, 1)
	e.pendingU = &pendingU{expect: UTestFRCon, done: done}
	e.timers.arm(timerT1)
	e.mu.Unlock()

	if err := e.transport.SendFrame(newUFrame(UTestFRAct)); err != nil {
		return err
	}
	return <-done
}

func (e *Engine) runUHandshake(from, awaiting State, act, con UFunction) error {
	e.mu.Lock()
	if e.state != from {
		e.mu.Unlock()
		return ErrNotActive
	}
	done := make(chan error, 1)
	e.pendingU = &pendingU{expect: con, done: done}
	e.state = awaiting
	e.timers.arm(timerT1)
	e.mu.Unlock()

	if err := e.transport.SendFrame(newUFrame(act)); err != nil {
		return err
	}
	return <-done
}

// SendIFrame assigns N(S)/N(R), emits an I-frame carrying asduBody, and
// tracks it as unacknowledged. Returns ErrNotActive outside Active and
// ErrWindowFull when unack_sent has reached k.
func (e *Engine) SendIFrame(asduBody []byte) error {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return ErrNotActive
	}
	if e.unackSent >= e.cfg.K {
		e.mu.Unlock()
		return ErrWindowFull
	}
	sendSN := e.vs
	e.vs = advanceSeq(e.vs)
	e.unackSent++
	e.unackRecv = 0
	e.timers.stop(timerT2)
	if !e.timers.active(timerT1) {
		e.timers.arm(timerT1)
	}
	recvSN := e.vr
	e.mu.Unlock()

	return e.transport.SendFrame(newIFrame(sendSN, recvSN, asduBody))
}

func advanceSeq(n uint16) uint16 { return (n + 1) & seqMask }

// distance computes (a-b) mod 32768.
func seqDistance(a, b uint16) uint16 { return (a - b) & seqMask }

// receiveLoop is the dedicated task of §4.3/§5: it blocks on Transport and
// feeds every frame through handleFrame, never on application callbacks.
func (e *Engine) receiveLoop(stopCh chan struct{}) {
	defer e.loopWG.Done()
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		f, err := e.transport.RecvFrame(e.cfg.PollInterval)
		if err != nil {
			apiErr, ok := err.(*Error)
			if ok {
				switch apiErr.Code {
				case CodeReadTimeout:
					continue // poll timeout, re-check stopCh
				case CodeBadLength, CodeUnknownFormat, CodeMalformedSFrame, CodeUnknownUFunction:
					// The whole frame was consumed, so the stream is still
					// aligned: drop it and keep the session up.
					e.lg.WithError(err).Warn("dropping malformed frame")
					continue
				}
			}
			e.fatal(err)
			return
		}
		e.handleFrame(f)
	}
}

// timerLoop selects over the three live protocol timers; t0 is handled by
// Connect's context deadline and never appears here.
func (e *Engine) timerLoop(stopCh chan struct{}) {
	defer e.loopWG.Done()
	for {
		e.mu.Lock()
		c1 := e.timers.channel(timerT1)
		c2 := e.timers.channel(timerT2)
		c3 := e.timers.channel(timerT3)
		e.mu.Unlock()

		select {
		case <-stopCh:
			return
		case <-c1:
			e.onT1Fire()
		case <-c2:
			e.onT2Fire()
		case <-c3:
			e.onT3Fire()
		case <-time.After(e.cfg.PollInterval):
			// Re-read the channels: a timer may have been (re)armed since
			// the snapshot above.
		}
	}
}

func (e *Engine) onT1Fire() {
	e.lg.Warn("t1 expired: outstanding acknowledgment never arrived")
	e.fatal(ErrT1Timeout)
}

func (e *Engine) onT2Fire() {
	e.mu.Lock()
	e.timers.stop(timerT2) // fired: no longer live, so the next I-frame re-arms it
	if e.state != StateActive {
		e.mu.Unlock()
		return
	}
	recvSN := e.vr
	e.unackRecv = 0
	e.mu.Unlock()
	if err := e.transport.SendFrame(newSFrame(recvSN)); err != nil {
		e.lg.WithError(err).Warn("t2 ack send failed")
	}
}

func (e *Engine) onT3Fire() {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return
	}
	// Register the expected confirmation the same way SendTestFrame does, so
	// handleULocked recognizes the reply and stops t1; otherwise this
	// self-initiated probe's TESTFR_con would fall into the "unexpected
	// u-frame" branch and t1 would fire, disconnecting an otherwise healthy
	// link.
	e.pendingU = &pendingU{expect: UTestFRCon, done: make(chan error, 1)}
	e.timers.arm(timerT1)
	e.mu.Unlock()
	if err := e.transport.SendFrame(newUFrame(UTestFRAct)); err != nil {
		e.lg.WithError(err).Warn("idle testfr send failed")
	}
}

// handleFrame implements the inbound-handling table of §4.3.
func (e *Engine) handleFrame(f Frame) {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.timers.arm(timerT3)
	}

	switch f.Format {
	case FormatU:
		e.handleULocked(f)
		e.mu.Unlock()

	case FormatS:
		if err := e.applyAckLocked(f.RecvSN); err != nil {
			e.mu.Unlock()
			e.fatal(err)
			return
		}
		e.mu.Unlock()

	case FormatI:
		if f.SendSN != e.vr {
			e.mu.Unlock()
			e.lg.WithField("frame", f.String()).Error("sequence violation")
			e.fatal(ErrSequenceError)
			return
		}
		e.vr = advanceSeq(e.vr)
		if err := e.applyAckLocked(f.RecvSN); err != nil {
			e.mu.Unlock()
			e.fatal(err)
			return
		}
		e.unackRecv++
		needAck := e.unackRecv >= e.cfg.W
		var recvSN uint16
		if needAck {
			recvSN = e.vr
			e.unackRecv = 0
			e.timers.stop(timerT2)
		} else if !e.timers.active(timerT2) {
			e.timers.arm(timerT2)
		}
		e.mu.Unlock()

		if needAck {
			if err := e.transport.SendFrame(newSFrame(recvSN)); err != nil {
				e.lg.WithError(err).Warn("ack send failed")
			}
		}

		asdu, err := DecodeASDU(f.ASDU)
		if err != nil {
			e.lg.WithError(err).Warn("dropping malformed asdu")
			return
		}
		e.queue.push(asdu)

	default:
		e.mu.Unlock()
	}
}

// handleULocked handles one U-frame; caller holds mu.
func (e *Engine) handleULocked(f Frame) {
	switch f.UFunc {
	case UStartDTAct:
		e.state = StateActive
		go e.reply(newUFrame(UStartDTCon))

	case UStopDTAct:
		e.state = StateConnected
		go e.reply(newUFrame(UStopDTCon))

	case UTestFRAct:
		go e.reply(newUFrame(UTestFRCon))

	case UStartDTCon, UStopDTCon, UTestFRCon:
		if e.pendingU != nil && e.pendingU.expect == f.UFunc {
			e.timers.stop(timerT1)
			switch f.UFunc {
			case UStartDTCon:
				e.state = StateActive
				e.timers.arm(timerT3)
			case UStopDTCon:
				e.state = StateConnected
			}
			e.pendingU.done <- nil
			e.pendingU = nil
		} else {
			e.lg.WithField("func", f.UFunc).Warn("unexpected u-frame confirmation")
		}

	default:
		e.lg.WithField("func", f.UFunc).Warn("unhandled u-function")
	}
}

func (e *Engine) reply(f Frame) {
	if err := e.transport.SendFrame(f); err != nil {
		e.lg.WithError(err).Warn("u-frame reply failed")
	}
}

// applyAckLocked implements the corrected acked-frames arithmetic of the
// Open Questions note: the naive `N(R) - V_S` only works unmodulo'd; the
// right quantity is the distance from the oldest unacknowledged N(S) to the
// peer's N(R), which must not exceed unack_sent.
func (e *Engine) applyAckLocked(nr uint16) error {
	if e.unackSent == 0 {
		return nil
	}
	oldestUnacked := (e.vs - uint16(e.unackSent)) & seqMask
	acked := seqDistance(nr, oldestUnacked)
	if int(acked) > e.unackSent {
		return newErr(CodeSequenceError, "N(R)=%d acks %d frames, only %d outstanding", nr, acked, e.unackSent)
	}
	e.unackSent -= int(acked)
	if e.unackSent == 0 {
		e.timers.stop(timerT1)
	}
	return nil
}

// fatal drives the engine to Disconnected, draining any pending handshake
// and disarming every timer. err is the triggering cause (SequenceError,
// T1Timeout, or a transport Disconnected).
func (e *Engine) fatal(err error) {
	e.mu.Lock()
	if e.state == StateDisconnected {
		e.mu.Unlock()
		return
	}
	e.state = StateDisconnected
	e.disconnectReason = err
	e.timers.stopAll()
	if e.pendingU != nil {
		e.pendingU.done <- err
		e.pendingU = nil
	}
	stopCh := e.stopCh
	e.mu.Unlock()

	e.lg.WithError(err).Error("session disconnected")
	_ = e.transport.Close()
	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
}

// Disconnect is the caller-initiated counterpart to fatal: it tears the
// session down through the same path, recording ErrDisconnected as the
// disconnect reason.
func (e *Engine) Disconnect() {
	e.fatal(ErrDisconnected)
}

// DisconnectReason returns the error that most recently drove the engine to
// Disconnected, or nil if it has never disconnected.
func (e *Engine) DisconnectReason() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnectReason
}
