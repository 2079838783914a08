package iec104

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// Qualifier-of-interrogation codes (§6/§9): Station requests everything;
// Group1..16 request one of the sixteen interrogation groups.
const (
	QOIStation = 20
	QOIGroup1  = 21
)

// SessionConfig is the per-session option set of §6's configuration table.
type SessionConfig struct {
	Address       string // host:port, default port 2404
	CommonAddress uint16 // default CA for the station; SendInterrogation/SendCommand take their CA as an argument and do not read it
	TLSConfig     *tls.Config

	K, W           int
	T0, T1, T2, T3 time.Duration

	// ReadTimeout holds the options-table deadline for blocking API calls
	// (default 10s). The Session does not apply it: StartDataTransfer,
	// StopDataTransfer and SendTestFrame wait for their confirmation until T1
	// expires.
	ReadTimeout time.Duration

	Logger *logrus.Logger
}

// DefaultSessionConfig fills in every option default from §6.
func DefaultSessionConfig(address string) SessionConfig {
	return SessionConfig{
		Address:       address,
		CommonAddress: 1,
		K:             DefaultK, W: DefaultW,
		T0: DefaultT0, T1: DefaultT1, T2: DefaultT2, T3: DefaultT3,
		ReadTimeout: 10 * time.Second,
	}
}

// Session is the thin, caller-facing façade of C4: it owns one Transport and
// one Engine and exposes the connect/start/stop/send/dequeue surface. All
// mutating operations ultimately serialize through the Engine's lock, so
// V_S/V_R and the outbound socket never interleave across callers.
type Session struct {
	cfg    SessionConfig
	lg     *logrus.Logger
	engine *Engine
}

// NewSession constructs a Session; Connect still needs to be called.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger
	}
	transport := NewTransport(TransportConfig{
		Address:   cfg.Address,
		TLSConfig: cfg.TLSConfig,
		Logger:    cfg.Logger,
	})
	engine := NewEngine(transport, EngineConfig{
		K: cfg.K, W: cfg.W,
		T0: cfg.T0, T1: cfg.T1, T2: cfg.T2, T3: cfg.T3,
	}, cfg.Logger)
	return &Session{cfg: cfg, lg: cfg.Logger, engine: engine}
}

// Connect dials the peer and brings the engine's background loops up.
func (s *Session) Connect(ctx context.Context) error {
	return s.engine.Connect(ctx)
}

// StartDataTransfer performs the STARTDT handshake.
func (s *Session) StartDataTransfer() error {
	return s.engine.StartDataTransfer()
}

// StopDataTransfer performs the STOPDT handshake.
func (s *Session) StopDataTransfer() error {
	return s.engine.StopDataTransfer()
}

// SendTestFrame sends an idle-liveness probe and waits for its confirmation.
func (s *Session) SendTestFrame() error {
	return s.engine.SendTestFrame()
}

// Disconnect tears the session down without surfacing an error.
func (s *Session) Disconnect() {
	s.engine.Disconnect()
}

// State reports the engine's current connection state.
func (s *Session) State() State {
	return s.engine.State()
}

// DequeueReceivedASDUs atomically drains the inbound queue in on-wire order.
func (s *Session) DequeueReceivedASDUs() []*ASDU {
	return s.engine.DequeueASDUs()
}

// QueueOverflows reports how many received ASDUs were dropped for capacity.
func (s *Session) QueueOverflows() uint64 {
	return s.engine.QueueOverflows()
}

// SendInterrogation builds a TypeID=100, COT=6 (activation) ASDU addressed
// to ca with IOA=0 and qoi in the data byte, per §4.4.
func (s *Session) SendInterrogation(ca uint16, qoi uint8) error {
	asdu := &ASDU{
		TypeID: CInterrogation,
		Cause:  CauseActivation,
		CA:     ca,
		Objects: []InformationObject{
			{IOA: 0, Qualifier: qoi, Value: QualifierValue(qoi)},
		},
	}
	return s.sendASDU(asdu)
}

// SendCounterInterrogation is SendInterrogation's C_CI_NA_1 counterpart.
func (s *Session) SendCounterInterrogation(ca uint16, qcc uint8) error {
	asdu := &ASDU{
		TypeID: CCounterInterr,
		Cause:  CauseActivation,
		CA:     ca,
		Objects: []InformationObject{
			{IOA: 0, Qualifier: qcc, Value: QualifierValue(qcc)},
		},
	}
	return s.sendASDU(asdu)
}

// SendCommand builds and sends the appropriate command ASDU for typeID. When
// selectFlag is true, the S/E bit of the qualifier is set and the engine
// does not track the pairing — per the Design Note, the caller is expected
// to send the matching execute (selectFlag=false) itself.
func (s *Session) SendCommand(ca uint16, ioa uint32, typeID TypeID, value Value, selectFlag bool) error {
	if typeID.IsMonitoring() {
		return ErrTagReadOnly
	}
	qualifier := byte(0)
	if selectFlag {
		qualifier |= selectExecuteBit
	}
	asdu := &ASDU{
		TypeID: typeID,
		Cause:  CauseActivation,
		CA:     ca,
		Objects: []InformationObject{
			{IOA: ioa, Value: value, Qualifier: qualifier},
		},
	}
	return s.sendASDU(asdu)
}

// SendSelect and SendExecute are ergonomic wrappers over SendCommand's
// select-flag parameter for the common select-before-execute sequence used
// by double/single commands requiring confirmation-before-action.
func (s *Session) SendSelect(ca uint16, ioa uint32, typeID TypeID, value Value) error {
	return s.SendCommand(ca, ioa, typeID, value, true)
}

func (s *Session) SendExecute(ca uint16, ioa uint32, typeID TypeID, value Value) error {
	return s.SendCommand(ca, ioa, typeID, value, false)
}

// SelectThenExecute issues the select then the execute command back to
// back. This is purely a caller convenience built on the two required
// SendCommand calls — the engine itself never tracks the pairing (§9(c)).
func (s *Session) SelectThenExecute(ca uint16, ioa uint32, typeID TypeID, value Value) error {
	if err := s.SendSelect(ca, ioa, typeID, value); err != nil {
		return err
	}
	return s.SendExecute(ca, ioa, typeID, value)
}

// Stats is a snapshot of session-level counters exposed for monitoring.
type Stats struct {
	State          State
	QueueOverflows uint64
}

// Stats returns a snapshot of the session's current counters.
func (s *Session) Stats() Stats {
	return Stats{State: s.State(), QueueOverflows: s.QueueOverflows()}
}

// selectExecuteBit is bit 7 of the command qualifier octet (§9 Open
// Questions (c)): set means Select, clear means Execute; COT stays
// Activation either way.
const selectExecuteBit = 0x80

func (s *Session) sendASDU(a *ASDU) error {
	body, err := EncodeASDU(a)
	if err != nil {
		return err
	}
	return s.engine.SendIFrame(body)
}

// IsCommandRejected reports whether a received ASDU is a negative
// activation confirmation — the CommandRejected outcome of §7's propagation
// policy. Callers correlate it to a prior SendCommand by TypeID/CA/IOA.
func IsCommandRejected(a *ASDU) bool {
	return a.Neg && a.Cause == CauseActivationConfirm
}

// CommandTermination reports whether a received ASDU is the activation
// termination closing out a single- or double-command select/execute
// sequence, returning errSingleCmdTerm/errDoubleCmdTerm (test with
// IsErrSingleCmdTerm/IsErrDoubleCmdTerm) so a caller's select-loop can match
// on it the same way it matches IsCommandRejected. Returns nil for anything
// else, including activation terminations of other command types.
func CommandTermination(a *ASDU) error {
	if a.Neg || a.Cause != CauseActivationTermination {
		return nil
	}
	switch a.TypeID {
	case CSingleCmd:
		return errSingleCmdTerm{}
	case CDoubleCmd:
		return errDoubleCmdTerm{}
	default:
		return nil
	}
}
