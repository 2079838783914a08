package iec104_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scada-io/iec104"
	"github.com/scada-io/iec104/internal/mockstation"
)

func startStation(t *testing.T) *mockstation.Station {
	t.Helper()
	st, err := mockstation.Listen("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, addr string) *iec104.Engine {
	t.Helper()
	transport := iec104.NewTransport(iec104.TransportConfig{Address: addr, DialTimeout: time.Second})
	cfg := iec104.DefaultEngineConfig()
	cfg.T1 = 2 * time.Second
	cfg.T2 = 500 * time.Millisecond
	cfg.T3 = 50 * time.Millisecond
	cfg.PollInterval = 50 * time.Millisecond
	eng := iec104.NewEngine(transport, cfg, nil)
	t.Cleanup(eng.Disconnect)
	return eng
}

func TestEngineStartDataTransferHandshake(t *testing.T) {
	st := startStation(t)
	eng := newTestEngine(t, st.Addr())

	serverDone := make(chan error, 1)
	go func() {
		conn, err := st.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		defer conn.Close()
		serverDone <- conn.ExpectStartDT()
	}()

	require.NoError(t, eng.Connect(context.Background()))
	require.NoError(t, eng.StartDataTransfer())
	assert.Equal(t, iec104.StateActive, eng.State())
	require.NoError(t, <-serverDone)
}

func TestEngineSendIFrameRejectedWhenNotActive(t *testing.T) {
	st := startStation(t)
	eng := newTestEngine(t, st.Addr())

	go func() {
		conn, err := st.Accept()
		if err == nil {
			defer conn.Close()
		}
	}()

	require.NoError(t, eng.Connect(context.Background()))
	err := eng.SendIFrame([]byte{1, 2, 3})
	assert.ErrorIs(t, err, iec104.ErrNotActive)
}

func TestEngineSequenceViolationIsFatal(t *testing.T) {
	st := startStation(t)
	eng := newTestEngine(t, st.Addr())

	ready := make(chan struct{})
	go func() {
		conn, err := st.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.ExpectStartDT(); err != nil {
			return
		}
		close(ready)
		// Send an I-frame with the wrong N(S) — client expects 0, this sends 5.
		asdu := &iec104.ASDU{
			TypeID:  iec104.MSingle,
			Cause:   iec104.CauseSpontaneous,
			CA:      1,
			Objects: []iec104.InformationObject{{IOA: 1, Value: iec104.BoolValue(true)}},
		}
		_ = conn.SendI(5, 0, asdu)
	}()

	require.NoError(t, eng.Connect(context.Background()))
	require.NoError(t, eng.StartDataTransfer())
	<-ready

	require.Eventually(t, func() bool {
		return eng.State() == iec104.StateDisconnected
	}, 2*time.Second, 20*time.Millisecond)
	assert.ErrorIs(t, eng.DisconnectReason(), iec104.ErrSequenceError)
}

// newWindowTestEngine builds an Engine with a small k so the window-full
// path can be exercised without sending a dozen frames.
func newWindowTestEngine(t *testing.T, addr string, k int) *iec104.Engine {
	t.Helper()
	transport := iec104.NewTransport(iec104.TransportConfig{Address: addr, DialTimeout: time.Second})
	cfg := iec104.DefaultEngineConfig()
	cfg.K = k
	cfg.T1 = 2 * time.Second
	cfg.T2 = 500 * time.Millisecond
	cfg.T3 = 50 * time.Millisecond
	cfg.PollInterval = 50 * time.Millisecond
	eng := iec104.NewEngine(transport, cfg, nil)
	t.Cleanup(eng.Disconnect)
	return eng
}

func sampleASDU(ioa uint32) *iec104.ASDU {
	return &iec104.ASDU{
		TypeID:  iec104.MSingle,
		Cause:   iec104.CauseSpontaneous,
		CA:      1,
		Objects: []iec104.InformationObject{{IOA: ioa, Value: iec104.BoolValue(true)}},
	}
}

func TestEngineWindowFullUnblocksOnAck(t *testing.T) {
	st := startStation(t)
	const k = 2
	eng := newWindowTestEngine(t, st.Addr(), k)

	connCh := make(chan *mockstation.Conn, 1)
	go func() {
		conn, err := st.Accept()
		if err != nil {
			return
		}
		if err := conn.ExpectStartDT(); err != nil {
			conn.Close()
			return
		}
		connCh <- conn
	}()

	require.NoError(t, eng.Connect(context.Background()))
	require.NoError(t, eng.StartDataTransfer())
	conn := <-connCh
	defer conn.Close()

	body, err := iec104.EncodeASDU(sampleASDU(1))
	require.NoError(t, err)

	for i := 0; i < k; i++ {
		require.NoError(t, eng.SendIFrame(body))
	}
	// k frames outstanding and unacknowledged: the window is now full.
	assert.ErrorIs(t, eng.SendIFrame(body), iec104.ErrWindowFull)

	// The peer drains the k queued I-frames and acks all of them with one
	// S-frame; the window must open back up.
	for i := 0; i < k; i++ {
		_, err := conn.RecvFrame()
		require.NoError(t, err)
	}
	require.NoError(t, conn.SendFrame(iec104.Frame{Format: iec104.FormatS, RecvSN: uint16(k)}))

	require.Eventually(t, func() bool {
		return eng.SendIFrame(body) == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEngineT1TimeoutForcesDisconnect(t *testing.T) {
	st := startStation(t)
	transport := iec104.NewTransport(iec104.TransportConfig{Address: st.Addr(), DialTimeout: time.Second})
	cfg := iec104.DefaultEngineConfig()
	cfg.T1 = 200 * time.Millisecond
	cfg.T2 = 500 * time.Millisecond
	cfg.T3 = 50 * time.Second // keep idle-testfr out of the way
	cfg.PollInterval = 50 * time.Millisecond
	eng := iec104.NewEngine(transport, cfg, nil)
	t.Cleanup(eng.Disconnect)

	go func() {
		conn, err := st.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.ExpectStartDT(); err != nil {
			return
		}
		// Never acknowledge anything sent; block until the client tears the
		// connection down on its own T1 timeout.
		for {
			if _, err := conn.RecvFrame(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, eng.Connect(context.Background()))
	require.NoError(t, eng.StartDataTransfer())

	body, err := iec104.EncodeASDU(sampleASDU(1))
	require.NoError(t, err)
	require.NoError(t, eng.SendIFrame(body))

	require.Eventually(t, func() bool {
		return eng.State() == iec104.StateDisconnected
	}, 2*time.Second, 20*time.Millisecond)
	assert.ErrorIs(t, eng.DisconnectReason(), iec104.ErrT1Timeout)
}

func TestEngineSendsTestFROnIdle(t *testing.T) {
	st := startStation(t)
	transport := iec104.NewTransport(iec104.TransportConfig{Address: st.Addr(), DialTimeout: time.Second})
	cfg := iec104.DefaultEngineConfig()
	cfg.T1 = 2 * time.Second
	cfg.T2 = 500 * time.Millisecond
	cfg.T3 = 100 * time.Millisecond
	cfg.PollInterval = 20 * time.Millisecond
	eng := iec104.NewEngine(transport, cfg, nil)
	t.Cleanup(eng.Disconnect)

	testfr := make(chan struct{}, 1)
	go func() {
		conn, err := st.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.ExpectStartDT(); err != nil {
			return
		}
		f, err := conn.RecvFrame()
		if err != nil || f.Format != iec104.FormatU || f.UFunc != iec104.UTestFRAct {
			return
		}
		_ = conn.SendFrame(iec104.Frame{Format: iec104.FormatU, UFunc: iec104.UTestFRCon})
		testfr <- struct{}{}
	}()

	require.NoError(t, eng.Connect(context.Background()))
	require.NoError(t, eng.StartDataTransfer())

	select {
	case <-testfr:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for idle TESTFR_act")
	}
	// The round trip must not have torn the session down.
	assert.Equal(t, iec104.StateActive, eng.State())
}

func TestEngineReceivesAndQueuesASDU(t *testing.T) {
	st := startStation(t)
	eng := newTestEngine(t, st.Addr())

	go func() {
		conn, err := st.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := conn.ExpectStartDT(); err != nil {
			return
		}
		asdu := &iec104.ASDU{
			TypeID:  iec104.MSingle,
			Cause:   iec104.CauseSpontaneous,
			CA:      1,
			Objects: []iec104.InformationObject{{IOA: 7, Value: iec104.BoolValue(true)}},
		}
		_ = conn.SendI(0, 0, asdu)
	}()

	require.NoError(t, eng.Connect(context.Background()))
	require.NoError(t, eng.StartDataTransfer())

	var got []*iec104.ASDU
	require.Eventually(t, func() bool {
		got = eng.DequeueASDUs()
		return len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, iec104.MSingle, got[0].TypeID)
	assert.EqualValues(t, 7, got[0].Objects[0].IOA)
}
