package iec104

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultReconnectBackoff and DefaultMaxReconnectBackoff bound the
// supervisor's exponential backoff (§9 Reconnect supervision).
const (
	DefaultReconnectBackoff    = 5 * time.Second
	DefaultMaxReconnectBackoff = 30 * time.Second
)

// SupervisorConfig tunes the reconnect loop. Adapted from the teacher's
// ClientOption auto-reconnect rule (retries/interval), generalized into
// exponential backoff per the Design Note's supervisor sketch.
type SupervisorConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts caps consecutive attempts that fail to reach Active; the
	// count resets after each successful start. 0 means unlimited.
	MaxAttempts int
}

// DefaultSupervisorConfig returns the documented backoff defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{InitialBackoff: DefaultReconnectBackoff, MaxBackoff: DefaultMaxReconnectBackoff}
}

// Supervisor drives a Session through repeated connect/start/run/disconnect
// cycles: `while !shutdown { connect_and_run(); sleep(backoff) }` from §9,
// with exponential backoff capped at MaxBackoff. Each cycle constructs a
// fresh Session — sequence numbers reset on every reconnect, never reused
// across instances.
type Supervisor struct {
	cfg       SupervisorConfig
	newSession func() *Session
	lg        *logrus.Logger

	stopCh chan struct{}
}

// NewSupervisor constructs a Supervisor that builds a new Session from
// newSession on every reconnect attempt.
func NewSupervisor(newSession func() *Session, cfg SupervisorConfig, lg *logrus.Logger) *Supervisor {
	if lg == nil {
		lg = defaultLogger
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = DefaultReconnectBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = DefaultMaxReconnectBackoff
	}
	return &Supervisor{cfg: cfg, newSession: newSession, lg: lg, stopCh: make(chan struct{})}
}

// Stop signals the supervisor loop to exit after its current cycle.
func (s *Supervisor) Stop() {
	close(s.stopCh)
}

// Run blocks, cycling connect/start/wait-for-disconnect/backoff until Stop
// is called or MaxAttempts is exhausted. onActive, if non-nil, is called
// with each freshly Active session so the caller can attach a scheduler.
func (s *Supervisor) Run(ctx context.Context, onActive func(*Session)) {
	backoff := s.cfg.InitialBackoff
	attempts := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		if s.cfg.MaxAttempts > 0 && attempts >= s.cfg.MaxAttempts {
			s.lg.Warn("supervisor: max reconnect attempts reached")
			return
		}
		attempts++

		sess := s.newSession()
		if err := sess.Connect(ctx); err != nil {
			s.lg.WithError(err).Warn("supervisor: connect failed")
			if !s.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}
		if err := sess.StartDataTransfer(); err != nil {
			s.lg.WithError(err).Warn("supervisor: start data transfer failed")
			sess.Disconnect()
			if !s.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}

		backoff = s.cfg.InitialBackoff // reset on a clean start
		attempts = 0
		if onActive != nil {
			onActive(sess)
		}
		s.waitForDisconnect(sess)

		if !s.sleepBackoff(ctx, &backoff) {
			return
		}
	}
}

func (s *Supervisor) waitForDisconnect(sess *Session) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			sess.Disconnect()
			return
		case <-ticker.C:
			if sess.State() == StateDisconnected {
				return
			}
		}
	}
}

func (s *Supervisor) sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > s.cfg.MaxBackoff {
		*backoff = s.cfg.MaxBackoff
	}
	return true
}
