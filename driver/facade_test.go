package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scada-io/iec104"
	"github.com/scada-io/iec104/scheduler"
)

func TestFacadeRegisterDeviceRejectsDuplicateName(t *testing.T) {
	f := NewFacade(nil)
	cfg := DeviceConfig{Name: "rtu1", IP: "127.0.0.1", Port: 2404, CommonAddress: 1}
	require.NoError(t, f.RegisterDevice(cfg))
	assert.Error(t, f.RegisterDevice(cfg))
}

func TestFacadeRegisterTagAndReadBeforeConnectIsStale(t *testing.T) {
	f := NewFacade(nil)
	require.NoError(t, f.RegisterDevice(DeviceConfig{
		Name: "rtu1", IP: "127.0.0.1", Port: 2404, CommonAddress: 1,
		Blocks: []scheduler.Config{{CA: 1, QOI: scheduler.InterrogationStation, Period: time.Minute, Enabled: true}},
	}))
	require.NoError(t, f.RegisterTag("breaker1", "1.100.1"))

	_, err := f.ReadTag("breaker1")
	assert.ErrorIs(t, err, iec104.ErrStale)
}

func TestFacadeReadUnknownTagIsTagNotFound(t *testing.T) {
	f := NewFacade(nil)
	_, err := f.ReadTag("nope")
	assert.ErrorIs(t, err, iec104.ErrTagNotFound)
}

func TestFacadeWriteMonitoringTagIsReadOnly(t *testing.T) {
	f := NewFacade(nil)
	require.NoError(t, f.RegisterDevice(DeviceConfig{Name: "rtu1", IP: "127.0.0.1", Port: 2404, CommonAddress: 1}))
	require.NoError(t, f.RegisterTag("breaker1", "1.100.1")) // TypeID 1 = M_SP_NA_1, monitoring

	err := f.WriteTag("breaker1", iec104.BoolValue(true))
	assert.ErrorIs(t, err, iec104.ErrTagReadOnly)
}

func TestFacadeWriteTagUnknownDeviceIsNoSession(t *testing.T) {
	f := NewFacade(nil)
	require.NoError(t, f.RegisterTag("breaker1", "1.100.45")) // TypeID 45 = C_SC_NA_1, a command type

	err := f.WriteTag("breaker1", iec104.BoolValue(true))
	assert.ErrorIs(t, err, iec104.ErrNoSession)
}

func TestFacadeConnectUnknownDeviceIsNoSession(t *testing.T) {
	f := NewFacade(nil)
	err := f.Connect(context.Background(), "nope")
	assert.ErrorIs(t, err, iec104.ErrNoSession)
}

func TestFacadeRoutesTagByBlockCANotJustDeviceDefault(t *testing.T) {
	f := NewFacade(nil)
	require.NoError(t, f.RegisterDevice(DeviceConfig{
		Name: "rtu1", IP: "127.0.0.1", Port: 2404, CommonAddress: 1,
		Blocks: []scheduler.Config{
			{CA: 1, QOI: scheduler.InterrogationStation, Period: time.Minute, Enabled: true},
			{CA: 2, QOI: scheduler.InterrogationStation, Period: time.Minute, Enabled: true},
		},
	}))
	require.NoError(t, f.RegisterTag("breaker2", "2.100.1"))

	// CA=2 is only reachable through this device's second block, not its
	// default CommonAddress=1; routing must still find the device rather
	// than reporting ErrNoSession.
	_, err := f.ReadTag("breaker2")
	assert.ErrorIs(t, err, iec104.ErrStale)
}
