package wmngr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.viam.com/test"

	"github.com/tidklaas/esp32-wifi-manager/internal/evtflags"
	"github.com/tidklaas/esp32-wifi-manager/internal/nvs"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
)

// wakeRecorder is a WakeFunc that drives the machine step-by-step under test
// control instead of through a real timer/task dispatch loop.
type wakeRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (w *wakeRecorder) wake(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, d)
}

func newTestMachine(t *testing.T) (*Machine, *driverMock, *adapterMock, *wakeRecorder) {
	t.Helper()
	drv := newDriverMock()
	ip := newAdapterMock()
	store := nvs.NewStore(t.TempDir())
	wr := &wakeRecorder{}
	m := NewMachine(drv, ip, store, zap.NewNop().Sugar(), wr.wake)
	return m, drv, ip, wr
}

func defaultAPConfig() WifiConfig {
	return WifiConfig{
		IsDefault: true,
		Mode:      radio.ModeAPSTA,
		AP:        AccessPointParams{SSID: "default-ap", Auth: radio.AuthOpen, Channel: 1},
	}
}

// runToIdle steps the machine until it settles in a stable state or the
// guard count is exhausted, returning the number of steps actually taken.
func runToIdle(t *testing.T, m *Machine, guard int) int {
	t.Helper()
	for i := 0; i < guard; i++ {
		if m.GetState().IsStable() && i > 0 {
			return i
		}
		m.Step(context.Background())
	}
	return guard
}

func TestInitSeedsFromDefaultsWhenNVSEmpty(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	test.That(t, m.GetState(), test.ShouldEqual, Update)
}

// TestApplyNewStationConfigConnects exercises scenario S1: a valid STA config
// is set, the machine transitions update -> connecting, a sta_connected
// event arrives, and the machine lands in Connected with the config
// persisted.
func TestApplyNewStationConfigConnects(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	runToIdle(t, m, 5)
	test.That(t, m.GetState(), test.ShouldEqual, Idle)

	cfg := WifiConfig{
		Mode:       radio.ModeSTA,
		STA:        StationParams{SSID: "home-network", Passphrase: "hunter2"},
		StaConnect: true,
	}
	test.That(t, m.SetCfg(cfg), test.ShouldBeNil)
	test.That(t, m.GetState(), test.ShouldEqual, Update)

	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Connecting)

	m.Flags().SetBit(evtflags.StaConnected)
	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Connected)

	test.That(t, m.NVSValid(), test.ShouldBeTrue)
}

// TestConnectingTimesOutToFallback exercises scenario S2: the radio never
// reports sta_connected before cfg_timeout elapses, so the machine falls back
// to the last-known-good config.
func TestConnectingTimesOutToFallback(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	runToIdle(t, m, 5)

	good := m.cs.st.Current

	cfg := WifiConfig{Mode: radio.ModeSTA, STA: StationParams{SSID: "bad-creds"}, StaConnect: true}
	test.That(t, m.SetCfg(cfg), test.ShouldBeNil)
	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Connecting)

	// Force the deadline into the past instead of sleeping CfgTimeout out.
	m.cs.st.CfgTimestamp = time.Now().Add(-2 * CfgTimeout)
	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Fallback)

	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Failed)
	test.That(t, m.cs.st.Current.STA.SSID, test.ShouldEqual, good.STA.SSID)
}

// TestFallbackReArmsWake guards against the transition into Fallback ever
// again returning a zero delay: Step only calls wake when the returned delay
// is > 0 (state.go), so a zero delay here would strand the machine in
// Fallback with stepFallback never invoked.
func TestFallbackReArmsWake(t *testing.T) {
	m, _, _, wr := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	runToIdle(t, m, 5)

	cfg := WifiConfig{Mode: radio.ModeSTA, STA: StationParams{SSID: "bad-creds"}, StaConnect: true}
	test.That(t, m.SetCfg(cfg), test.ShouldBeNil)
	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Connecting)

	m.cs.st.CfgTimestamp = time.Now().Add(-2 * CfgTimeout)
	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Fallback)

	wr.mu.Lock()
	last := wr.calls[len(wr.calls)-1]
	wr.mu.Unlock()
	test.That(t, last > 0, test.ShouldBeTrue)
}

// TestScanRunningAloneGoesQuiescent guards against serviceScan re-arming
// indefinitely while a scan is merely in flight (ScanRunning set, but
// neither ScanStart nor ScanDone pending) — a scan that never completes
// must leave the machine quiescent, per §5, not busy-loop every CfgDelay.
func TestScanRunningAloneGoesQuiescent(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	runToIdle(t, m, 5)

	m.Flags().SetBit(evtflags.ScanRunning)
	test.That(t, m.serviceScan(context.Background()), test.ShouldBeFalse)
}

// TestWPSSuccessAdoptsRadioProvidedCredentials exercises scenario S3.
func TestWPSSuccessAdoptsRadioProvidedCredentials(t *testing.T) {
	m, drv, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	runToIdle(t, m, 5)

	test.That(t, m.StartWPS(), test.ShouldBeNil)
	test.That(t, m.GetState(), test.ShouldEqual, WpsStart)

	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, WpsActive)

	drv.mu.Lock()
	drv.cfg.STA = &radio.STAConfig{SSID: "wps-network", Passphrase: "wps-secret"}
	drv.mu.Unlock()
	m.Flags().SetBit(evtflags.WpsSuccess)

	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Update)
	test.That(t, m.cs.st.New.STA.SSID, test.ShouldEqual, "wps-network")
	test.That(t, m.cs.st.New.StaConnect, test.ShouldBeTrue)
}

// TestScanLifecycleRefcounting exercises scenario S4: a scan is requested,
// serviced, collected, and the resulting snapshot can be borrowed and
// released without freeing it out from under a concurrent reader.
func TestScanLifecycleRefcounting(t *testing.T) {
	m, drv, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	runToIdle(t, m, 5)

	drv.scanRecords = []radio.Record{{SSID: "net-a"}, {SSID: "net-b"}}

	test.That(t, m.StartScan(), test.ShouldBeNil)
	m.Step(context.Background()) // services scan_start -> scan_running
	m.Flags().SetBit(evtflags.ScanDone)
	m.Step(context.Background()) // collects

	// GetScan already holds 2 references: the container's standing slot plus
	// the borrow handed to this caller (scan.go's GetScan calls ScanRef.Ref()).
	snap, err := m.GetScan()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, snap, test.ShouldNotBeNil)
	test.That(t, len(snap.Records), test.ShouldEqual, 2)
	test.That(t, snap.RefCount(), test.ShouldEqual, int32(2))

	ref := snap.Ref()
	test.That(t, snap.RefCount(), test.ShouldEqual, int32(3))

	m.PutScan(snap)
	test.That(t, ref.RefCount(), test.ShouldEqual, int32(2))

	// The container keeps its own standing reference until a newer scan
	// replaces it, so releasing the last borrow lands at 1, not 0.
	m.PutScan(ref)
	test.That(t, ref.RefCount(), test.ShouldEqual, int32(1))
}

// TestBusyOperationsRejected exercises scenario S5: while the machine is in a
// transitional state, SetCfg/StartWPS must report ErrInvalidState
// rather than silently queuing.
func TestBusyOperationsRejected(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)

	test.That(t, m.GetState().IsStable(), test.ShouldBeFalse)
	err := m.SetCfg(WifiConfig{Mode: radio.ModeSTA})
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)

	err = m.StartWPS()
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)
}

// TestCorruptedNVSFallsBackToDefault exercises scenario S6: a persisted
// record whose blob sizes don't match current expectations is treated as
// absent, so Seed falls back to the compiled-in default instead of erroring.
func TestCorruptedNVSFallsBackToDefault(t *testing.T) {
	drv := newDriverMock()
	ip := newAdapterMock()
	dir := t.TempDir()
	store := nvs.NewStore(dir)

	// Write a record with a deliberately wrong AP blob length.
	test.That(t, store.Save(nvs.Record{AP: []byte{1, 2, 3}}, false), test.ShouldBeNil)

	wr := &wakeRecorder{}
	m := NewMachine(drv, ip, store, zap.NewNop().Sugar(), wr.wake)

	defaults := defaultAPConfig()
	test.That(t, m.Init(context.Background(), defaults), test.ShouldBeNil)
	test.That(t, m.cs.st.New.AP.SSID, test.ShouldEqual, defaults.AP.SSID)
}

func TestGetCfgTimesOutWhenLockHeld(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.cs.tryLock(), test.ShouldBeTrue)
	defer m.cs.unlock()

	_, err := m.GetCfg()
	test.That(t, errors.Is(err, ErrTimeout), test.ShouldBeTrue)
}

func TestDisconnectTearsDownStationAssociation(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), defaultAPConfig()), test.ShouldBeNil)
	runToIdle(t, m, 5)

	cfg := WifiConfig{Mode: radio.ModeSTA, STA: StationParams{SSID: "home"}, StaConnect: true}
	test.That(t, m.SetCfg(cfg), test.ShouldBeNil)
	m.Step(context.Background())
	m.Flags().SetBit(evtflags.StaConnected)
	m.Step(context.Background())
	test.That(t, m.GetState(), test.ShouldEqual, Connected)

	test.That(t, m.Disconnect(), test.ShouldBeNil)
	test.That(t, m.cs.st.New.StaConnect, test.ShouldBeFalse)
}

func TestDisconnectRejectedInAPOnlyMode(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	test.That(t, m.Init(context.Background(), WifiConfig{IsDefault: true, Mode: radio.ModeAP, AP: AccessPointParams{SSID: "ap-only"}}), test.ShouldBeNil)
	runToIdle(t, m, 5)

	err := m.Disconnect()
	test.That(t, errors.Is(err, ErrInvalidState), test.ShouldBeTrue)
}
