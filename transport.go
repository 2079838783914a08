package iec104

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// TransportConfig configures the TCP (or TLS) connection underlying a
// Session. Zero values pick the library defaults noted per field.
type TransportConfig struct {
	Address   string      // host:port of the controlled station
	TLSConfig *tls.Config // nil dials plain TCP
	DialTimeout time.Duration // default 30s

	// KeepaliveIdle, KeepaliveInterval and KeepaliveCount tune the kernel's
	// TCP keepalive probe schedule so a silent substation link is detected
	// faster than the OS default (often ~2 hours). Zero disables the
	// corresponding tuning call and leaves the OS default in force.
	KeepaliveIdle     time.Duration
	KeepaliveInterval time.Duration
	KeepaliveCount    int

	Logger *logrus.Logger
}

func (c *TransportConfig) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return defaultLogger
}

// Transport owns the raw byte stream: dialing, Nagle/keepalive tuning, and
// framing one APDU at a time off the wire. It knows nothing about sequence
// numbers, timers or ASDU contents — that is the Engine's job.
type Transport struct {
	cfg  TransportConfig
	lg   *logrus.Logger
	mu   sync.Mutex
	conn net.Conn
}

// NewTransport constructs a Transport. Connect must be called before use.
func NewTransport(cfg TransportConfig) *Transport {
	return &Transport{cfg: cfg, lg: cfg.logger()}
}

// Connect dials the controlled station, disables Nagle's algorithm (I3's
// latency requirement) and, when configured, tunes kernel keepalive probing.
func (t *Transport) Connect(ctx context.Context) error {
	timeout := t.cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if t.cfg.TLSConfig != nil {
		tlsDialer := tls.Dialer{NetDialer: &dialer, Config: t.cfg.TLSConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", t.cfg.Address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", t.cfg.Address)
	}
	if err != nil {
		if ctx.Err() != nil {
			return newErr(CodeConnectTimeout, "%s: %v", t.cfg.Address, err)
		}
		return newErr(CodeConnectRefused, "%s: %v", t.cfg.Address, err)
	}

	if tcp := underlyingTCPConn(conn); tcp != nil {
		if err := tcp.SetNoDelay(true); err != nil {
			t.lg.WithError(err).Warn("disable nagle failed")
		}
		if err := t.tuneKeepalive(tcp); err != nil {
			t.lg.WithError(err).Warn("tune keepalive failed")
		}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.lg.WithField("address", t.cfg.Address).Info("transport connected")
	return nil
}

// underlyingTCPConn unwraps a *tls.Conn down to the *net.TCPConn so socket
// options can be tuned regardless of whether TLS is in use.
func underlyingTCPConn(conn net.Conn) *net.TCPConn {
	type netConner interface {
		NetConn() net.Conn
	}
	if tlsConn, ok := conn.(netConner); ok {
		conn = tlsConn.NetConn()
	}
	tcp, _ := conn.(*net.TCPConn)
	return tcp
}

// tuneKeepalive enables TCP keepalive and, where configured, overrides the
// kernel's idle/interval/count schedule via setsockopt. This is grounded in
// the socket-tuning style used elsewhere in the pack for long-lived
// industrial links, where the OS default keepalive schedule is far too slow
// to notice a dead RTU.
func (t *Transport) tuneKeepalive(tcp *net.TCPConn) error {
	if err := tcp.SetKeepAlive(true); err != nil {
		return err
	}
	if t.cfg.KeepaliveIdle == 0 && t.cfg.KeepaliveInterval == 0 && t.cfg.KeepaliveCount == 0 {
		return nil
	}

	raw, err := tcp.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		if t.cfg.KeepaliveIdle > 0 {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(t.cfg.KeepaliveIdle.Seconds()))
			if sockErr != nil {
				return
			}
		}
		if t.cfg.KeepaliveInterval > 0 {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(t.cfg.KeepaliveInterval.Seconds()))
			if sockErr != nil {
				return
			}
		}
		if t.cfg.KeepaliveCount > 0 {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, t.cfg.KeepaliveCount)
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// Close shuts down the connection. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Connected reports whether Connect has succeeded and Close has not since
// been called.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Available reports whether at least one byte can be read right now without
// blocking, peeking the socket buffer via MSG_PEEK so nothing is consumed —
// the same SyscallConn idiom tuneKeepalive already uses for socket-option
// tuning, applied here to a non-blocking read instead of a setsockopt call.
// Connections that don't unwrap to a *net.TCPConn (shouldn't occur outside
// tests) conservatively report unavailable.
func (t *Transport) Available() bool {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return false
	}
	tcp := underlyingTCPConn(conn)
	if tcp == nil {
		return false
	}

	raw, err := tcp.SyscallConn()
	if err != nil {
		return false
	}

	var n int
	var pollErr error
	ctrlErr := raw.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		received, _, errno := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		if errno != nil {
			if errno != unix.EAGAIN && errno != unix.EWOULDBLOCK {
				pollErr = errno
			}
			return true
		}
		n = received
		return true
	})
	if ctrlErr != nil || pollErr != nil {
		return false
	}
	return n > 0
}

// SendFrame encodes and writes one APDU.
func (t *Transport) SendFrame(f Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return newErr(CodeDisconnected, "send on closed transport")
	}
	data := EncodeFrame(f)
	if _, err := conn.Write(data); err != nil {
		return newErr(CodeWriteError, "%v", err)
	}
	t.lg.WithField("frame", f.String()).Debug("sent")
	return nil
}

// RecvFrame blocks for exactly one complete APDU: the 2-octet header, then
// its ℓ-octet body. deadline, if non-zero, bounds the whole read.
func (t *Transport) RecvFrame(deadline time.Duration) (Frame, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return Frame{}, newErr(CodeDisconnected, "recv on closed transport")
	}

	if deadline > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(deadline))
		defer conn.SetReadDeadline(time.Time{})
	}

	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return Frame{}, classifyReadErr(err)
	}
	if header[0] != startByte {
		return Frame{}, newErr(CodeBadStartByte, "got 0x%02x", header[0])
	}
	l := int(header[1])
	body := make([]byte, l)
	if l > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			return Frame{}, classifyReadErr(err)
		}
	}

	full := make([]byte, 0, 2+l)
	full = append(full, header...)
	full = append(full, body...)
	f, err := DecodeFrame(full)
	if err != nil {
		return Frame{}, err
	}
	t.lg.WithField("frame", f.String()).Debug("received")
	return f, nil
}

// classifyReadErr distinguishes an expected poll-interval timeout
// (CodeReadTimeout, which receiveLoop swallows and retries on) from every
// other read failure (CodeDisconnected/CodeReadError, which receiveLoop
// treats as fatal) — a plain read error must never be mistaken for a
// timeout, or a dead connection never transitions to Disconnected.
func classifyReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return newErr(CodeDisconnected, "%v", err)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return newErr(CodeReadTimeout, "read timed out: %v", err)
	}
	return newErr(CodeReadError, "%v", err)
}
