package hardware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/kiosk-devices/internal/config"
	apperrors "github.com/wfunc/kiosk-devices/internal/errors"
)

func simConfig() config.SerialConfig {
	return config.SerialConfig{
		Driver:        DriverSim,
		ReadTimeout:   20 * time.Millisecond,
		FrameInterval: time.Millisecond,
		Printer: config.PrinterConfig{
			DeviceConfig: config.DeviceConfig{Enabled: true, Port: "/dev/ttyUSB0", AutoOpen: true},
			Model:        string(DeviceTGP58),
		},
		Deposit:   config.DeviceConfig{Enabled: true, Port: "/dev/ttyUSB1", AutoOpen: true},
		Dispenser: config.DeviceConfig{Enabled: true, Port: "/dev/ttyUSB2", AutoOpen: true},
	}
}

func newSimManager(t *testing.T, cfg config.SerialConfig) *Manager {
	t.Helper()
	sim := NewSimulator()
	sim.NoteInterval = 20 * time.Millisecond
	sim.DispenseDelay = 10 * time.Millisecond

	m, err := NewManagerWithOpener(cfg, sim, testOptions()...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop() })
	return m
}

func TestManagerStartOpensDevices(t *testing.T) {
	m := newSimManager(t, simConfig())
	assert.True(t, m.IsRunning())

	snaps := m.Snapshots()
	require.NotNil(t, snaps.Printer)
	require.NotNil(t, snaps.Deposit)
	require.NotNil(t, snaps.Dispenser)
	assert.Equal(t, StatusConnected, snaps.Printer.Connection)
	assert.Equal(t, StatusConnected, snaps.Deposit.Connection)
	assert.Equal(t, StatusConnected, snaps.Dispenser.Connection)

	s, err := m.Session(RoleDeposit)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, s.Line().ReadTimeout)

	// 模拟器应答默认排版
	assert.Eventually(t, func() bool {
		snap := m.Snapshots().Printer
		return snap.Acks >= 1
	}, waitFor, tick)

	require.Error(t, m.Start(context.Background()))
}

func TestManagerDepositFlowWithSimulator(t *testing.T) {
	m := newSimManager(t, simConfig())
	deposit, err := m.Deposit()
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return deposit.Snapshot().Monitoring }, waitFor, tick)
	assert.Eventually(t, func() bool { return deposit.Snapshot().Phase == DepositPending }, 2*waitFor, tick)

	pending := deposit.Snapshot().CurrentAmount
	require.NoError(t, deposit.ConfirmDeposit())
	snap := deposit.Snapshot()
	assert.GreaterOrEqual(t, snap.TotalAmount, pending)
	assert.Contains(t, []int{100, 200, 500, 1000}, pending)
}

func TestManagerDispenseWithSimulator(t *testing.T) {
	m := newSimManager(t, simConfig())
	dispenser, err := m.Dispenser()
	require.NoError(t, err)

	require.NoError(t, dispenser.Dispense(100))
	assert.Eventually(t, func() bool {
		snap := dispenser.Snapshot()
		return snap.Phase == DispenserIdle && snap.TotalDispensed == 100
	}, waitFor, tick)

	require.NoError(t, dispenser.RequestCount())
	assert.Eventually(t, func() bool { return dispenser.Snapshot().TotalDispensed == 100 }, waitFor, tick)
}

func TestManagerEvents(t *testing.T) {
	cfg := simConfig()
	cfg.Deposit.AutoOpen = false
	cfg.Printer.Enabled = false
	cfg.Dispenser.Enabled = false

	sim := NewSimulator()
	m, err := NewManagerWithOpener(cfg, sim, testOptions()...)
	require.NoError(t, err)
	events, cancel := m.Events(32)
	defer cancel()

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()
	assert.Equal(t, StatusDisconnected, m.Snapshots().Deposit.Connection)

	require.NoError(t, m.Open(RoleDeposit))

	var sawConnected, sawState bool
	deadline := time.After(waitFor)
	for !(sawConnected && sawState) {
		select {
		case ev := <-events:
			assert.Equal(t, RoleDeposit, ev.Device)
			switch ev.Type {
			case "connection":
				data := ev.Data.(map[string]interface{})
				if data["status"] == StatusConnected {
					sawConnected = true
				}
			case "state":
				sawState = true
			}
		case <-deadline:
			t.Fatalf("events not received: connected=%v state=%v", sawConnected, sawState)
		}
	}
}

func TestManagerUnconfiguredDevices(t *testing.T) {
	cfg := simConfig()
	cfg.Printer.Enabled = false
	cfg.Dispenser.Enabled = false
	m := newSimManager(t, cfg)

	_, err := m.Printer()
	assert.True(t, apperrors.Is(err, apperrors.ErrDeviceNotConfigured))
	_, err = m.Dispenser()
	assert.True(t, apperrors.Is(err, apperrors.ErrDeviceNotConfigured))
	assert.True(t, apperrors.Is(m.Open(RoleDispenser), apperrors.ErrDeviceNotConfigured))

	_, err = m.Session("coffee")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(m.Close("coffee"), apperrors.ErrNotFound))

	snaps := m.Snapshots()
	assert.Nil(t, snaps.Printer)
	assert.NotNil(t, snaps.Deposit)
}

func TestManagerAutoOpenFailureDoesNotAbortStart(t *testing.T) {
	opener := &mockOpener{err: assert.AnError}
	m, err := NewManagerWithOpener(simConfig(), opener, testOptions()...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	snaps := m.Snapshots()
	assert.Equal(t, StatusDisconnected, snaps.Printer.Connection)
	assert.Equal(t, StatusDisconnected, snaps.Dispenser.Connection)
	s, _ := m.Session(RoleDispenser)
	assert.True(t, apperrors.Is(s.LastError(), apperrors.ErrTransportUnavailable))
}

func TestManagerStop(t *testing.T) {
	m := newSimManager(t, simConfig())
	require.NoError(t, m.Stop())
	assert.False(t, m.IsRunning())
	assert.Equal(t, time.Duration(0), m.Uptime())
	assert.Equal(t, StatusDisconnected, m.Snapshots().Dispenser.Connection)

	// 重复停止是安全的
	require.NoError(t, m.Stop())
}

func TestNewManagerRejectsUnknownDriver(t *testing.T) {
	cfg := simConfig()
	cfg.Driver = "telepathy"
	_, err := NewManager(cfg)
	assert.Error(t, err)
}
