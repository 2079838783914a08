// Package mockstation is test-only infrastructure: a minimal controlled
// station (outstation) that speaks just enough APCI to drive the client
// engine through its handshakes and feed it scripted ASDUs. The server
// (outstation) role is an explicit non-goal of the public API — this is not
// one, it exists solely so engine and session tests can exercise real TCP
// framing instead of mocking Transport away.
//
// Adapted from the teacher's Server/Conn listener-accept shape; unlike the
// teacher's stub (whose serve loop was an empty TODO), Conn here actually
// answers U-frames and can emit scripted I-frames.
package mockstation

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/scada-io/iec104"
)

// Station is a single-peer TCP listener for test fixtures.
type Station struct {
	listener net.Listener
	lg       *logrus.Logger
}

// Listen opens a TCP listener on address ("127.0.0.1:0" picks a free port).
func Listen(address string) (*Station, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &Station{listener: l, lg: logrus.StandardLogger()}, nil
}

// Addr returns the listener's bound address, useful after ":0" picked a
// free port.
func (s *Station) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting connections.
func (s *Station) Close() error {
	return s.listener.Close()
}

// Accept blocks for the next incoming connection.
func (s *Station) Accept() (*Conn, error) {
	c, err := s.listener.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{conn: c}, nil
}

// Conn is one accepted peer connection, speaking raw APCI frames.
type Conn struct {
	conn net.Conn
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RecvFrame reads one complete APDU.
func (c *Conn) RecvFrame() (iec104.Frame, error) {
	header := make([]byte, 2)
	if _, err := readFull(c.conn, header); err != nil {
		return iec104.Frame{}, err
	}
	l := int(header[1])
	body := make([]byte, l)
	if l > 0 {
		if _, err := readFull(c.conn, body); err != nil {
			return iec104.Frame{}, err
		}
	}
	full := append(header, body...)
	return iec104.DecodeFrame(full)
}

// SendFrame writes one complete APDU.
func (c *Conn) SendFrame(f iec104.Frame) error {
	_, err := c.conn.Write(iec104.EncodeFrame(f))
	return err
}

// ExpectStartDT reads the next frame, requires it to be STARTDT_act, and
// replies with STARTDT_con.
func (c *Conn) ExpectStartDT() error {
	return c.expectUAndReply(0x07, 0x0B)
}

// ExpectStopDT reads the next frame, requires it to be STOPDT_act, and
// replies with STOPDT_con.
func (c *Conn) ExpectStopDT() error {
	return c.expectUAndReply(0x13, 0x23)
}

func (c *Conn) expectUAndReply(wantAct, sendCon byte) error {
	f, err := c.RecvFrame()
	if err != nil {
		return err
	}
	if f.Format != iec104.FormatU || byte(f.UFunc) != wantAct {
		return errUnexpectedFrame(f)
	}
	return c.SendFrame(iec104.Frame{Format: iec104.FormatU, UFunc: iec104.UFunction(sendCon)})
}

// SendI encodes asdu and sends it as an I-frame with the given sequence
// numbers.
func (c *Conn) SendI(sendSN, recvSN uint16, asdu *iec104.ASDU) error {
	body, err := iec104.EncodeASDU(asdu)
	if err != nil {
		return err
	}
	f := iec104.Frame{Format: iec104.FormatI, SendSN: sendSN, RecvSN: recvSN, ASDU: body}
	return c.SendFrame(f)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type errUnexpectedFrame iec104.Frame

func (e errUnexpectedFrame) Error() string {
	return "mockstation: unexpected frame " + iec104.Frame(e).String()
}
