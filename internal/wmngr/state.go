package wmngr

import (
	"context"
	"time"

	errw "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tidklaas/esp32-wifi-manager/internal/evtflags"
	"github.com/tidklaas/esp32-wifi-manager/internal/ipstack"
	"github.com/tidklaas/esp32-wifi-manager/internal/nvs"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
)

// lockedState is the §3 ConfigState plus its guarding lock. State may be
// read without the lock (see Machine.GetState, matching §4.5's documented
// exception); every other field requires holding the lock, per invariant 1.
//
// The lock is a buffered channel rather than sync.Mutex because the spec
// requires two distinct acquisition disciplines against the same lock: the
// state machine's Step acquires non-blockingly (try-and-rearm, §4.1), while
// public API operations acquire with a short bounded wait (§4.5). A plain
// sync.Mutex only offers the former (via TryLock); a size-1 channel offers
// both via select.
type lockedState struct {
	sem chan struct{}
	st  ConfigState
}

func newLockedState() *lockedState {
	ls := &lockedState{sem: make(chan struct{}, 1)}
	ls.sem <- struct{}{}
	return ls
}

// tryLock acquires the lock non-blockingly, for use by Step.
func (ls *lockedState) tryLock() bool {
	select {
	case <-ls.sem:
		return true
	default:
		return false
	}
}

// lockTimeout acquires the lock, waiting up to d, for use by public API
// operations (§4.5).
func (ls *lockedState) lockTimeout(d time.Duration) bool {
	select {
	case <-ls.sem:
		return true
	case <-time.After(d):
		return false
	}
}

func (ls *lockedState) unlock() {
	ls.sem <- struct{}{}
}

// WakeFunc arms a one-shot delayable wake-up, abstracting over the
// timer-driven and task-driven dispatch variants of §5.
type WakeFunc func(delay time.Duration)

// Machine is the configuration state machine, handle_wifi in the original
// firmware. One Step call performs at most one transition (§4.1).
type Machine struct {
	cs    *lockedState
	flags *evtflags.Set

	drv   radio.Driver
	ip    ipstack.Adapter
	store *nvs.Store

	logger *zap.SugaredLogger
	wake   WakeFunc
}

// NewMachine wires a Machine on top of its external collaborators. wake is
// called whenever the machine needs to be re-invoked after a delay; it is
// the caller's responsibility to actually schedule that invocation (timer or
// worker task, per §5).
func NewMachine(drv radio.Driver, ip ipstack.Adapter, store *nvs.Store, logger *zap.SugaredLogger, wake WakeFunc) *Machine {
	return &Machine{
		cs:     newLockedState(),
		flags:  &evtflags.Set{},
		drv:    drv,
		ip:     ip,
		store:  store,
		logger: logger,
		wake:   wake,
	}
}

// Flags exposes the event-flag set so the event callback (package root) can
// update it without ever touching the config lock.
func (m *Machine) Flags() *evtflags.Set { return m.flags }

// GetState reads the current state without acquiring the lock, matching the
// spec's explicit exception to invariant 1 (every other field access in this
// file goes through cs.sem).
func (m *Machine) GetState() State {
	return m.cs.st.State
}

// Seed initializes Saved/New/Current from boot-time defaults and any
// persisted record, setting the initial transition to Update, matching
// Init's responsibilities in §4.5. It does not start the driver or arm the
// wake-up; callers (the public API) do that after Seed succeeds.
func (m *Machine) Seed(defaultCfg WifiConfig) error {
	if !m.cs.lockTimeout(LockWait) {
		return ErrTimeout
	}
	defer m.cs.unlock()

	m.cs.st.Saved = defaultCfg
	m.cs.st.Current = defaultCfg

	rec, err := m.store.Load(expectSizes())
	if err != nil {
		if !errw.Is(err, nvs.ErrNotFound) {
			return errw.Wrapf(ErrIOError, "loading persisted config: %v", err)
		}
		m.cs.st.New = defaultCfg
	} else {
		m.cs.st.New = fromRecord(rec)
	}

	m.cs.st.State = Update
	return nil
}

// Step performs at most one transition. It tries to acquire the lock
// non-blockingly; on contention it re-arms a short wake-up and returns,
// guaranteeing the state machine is non-reentrant (§5).
func (m *Machine) Step(ctx context.Context) {
	if !m.cs.tryLock() {
		m.wake(LockWait)
		return
	}
	defer m.cs.unlock()

	flags := m.flags.Snapshot()
	delay := m.step(ctx, flags)
	if delay > 0 {
		m.wake(delay)
	}
}

// step runs one transition body while holding the lock, returning the delay to
// re-arm for (0 ⇒ no re-arm).
func (m *Machine) step(ctx context.Context, flags evtflags.Mask) time.Duration {
	st := &m.cs.st

	var delay time.Duration
	switch st.State {
	case Update:
		delay = m.stepUpdate(ctx)
	case Connecting:
		delay = m.stepConnecting(ctx, flags)
	case WpsStart:
		delay = m.stepWpsStart(ctx)
	case WpsActive:
		delay = m.stepWpsActive(ctx, flags)
	case Fallback:
		delay = m.stepFallback(ctx)
	case Connected:
		delay = m.stepConnected(ctx, flags)
	case Idle, Failed:
		delay = 0
	case Disconnecting:
		// Reserved: declared in the state enum but never entered, preserved
		// verbatim from the original firmware (§9 open question).
		delay = 0
	default:
		st.State = Failed
		delay = 0
	}

	// §4.1 scan interleave, serviced post-dispatch for any state the step
	// landed in, not only one it started in: a scan_start racing an
	// in-flight transition (e.g. update->idle) must not wait for an
	// unrelated event to strand it (wifi_manager.c:936-948).
	if st.State <= Idle && m.serviceScan(ctx) {
		return CfgDelay
	}
	return delay
}

// stepUpdate implements the §4.1 `update` transition.
func (m *Machine) stepUpdate(ctx context.Context) time.Duration {
	st := &m.cs.st

	_ = m.drv.ScanStop(ctx)
	_ = m.drv.Disconnect(ctx)

	if err := m.applyToRadio(ctx, st.New); err != nil {
		m.logger.Warnw("applying new config failed", "err", err)
		st.State = Fallback
		return CfgDelay
	}
	st.Current = st.New

	if st.New.Mode == radio.ModeAP || !st.New.StaConnect {
		st.State = Idle
		return 0
	}

	st.CfgTimestamp = time.Now()
	st.State = Connecting
	return CfgTicks
}

// stepConnecting implements the §4.1 `connecting` transition.
func (m *Machine) stepConnecting(ctx context.Context, flags evtflags.Mask) time.Duration {
	st := &m.cs.st

	if flags.Has(evtflags.StaConnected) {
		if err := m.persist(st.New); err != nil {
			m.logger.Errorw("persisting config failed", "err", err)
		}
		st.State = Connected
		return 0
	}
	if !time.Now().Before(st.CfgTimestamp.Add(CfgTimeout)) {
		st.State = Fallback
		return CfgDelay
	}
	return CfgTicks
}

// stepWpsStart implements the §4.1 `wps_start` transition.
func (m *Machine) stepWpsStart(ctx context.Context) time.Duration {
	st := &m.cs.st

	cur, err := m.drv.GetConfig(ctx, radio.IfaceSTA)
	if err != nil {
		st.State = Fallback
		return CfgDelay
	}
	st.New = st.Current
	st.New.Mode = radio.ModeAPSTA
	st.New.STA = StationParams{}
	st.New.StaConnect = false
	if cur.STA != nil {
		st.New.STA.BSSID = cur.STA.BSSID
	}

	if err := m.applyToRadio(ctx, st.New); err != nil {
		st.State = Fallback
		return CfgDelay
	}
	st.Current = st.New

	m.flags.ClearBit(evtflags.WpsSuccess)
	m.flags.ClearBit(evtflags.WpsFailed)

	if err := m.drv.WPSEnable(ctx, radio.WPSConfig{}); err != nil {
		st.State = Fallback
		return CfgDelay
	}
	if err := m.drv.WPSStart(ctx, int(CfgTimeout.Seconds())); err != nil {
		st.State = Fallback
		return CfgDelay
	}

	st.CfgTimestamp = time.Now()
	st.State = WpsActive
	return CfgTicks
}

// stepWpsActive implements the §4.1 `wps_active` transition.
func (m *Machine) stepWpsActive(ctx context.Context, flags evtflags.Mask) time.Duration {
	st := &m.cs.st

	if flags.Has(evtflags.WpsSuccess) {
		_ = m.drv.WPSDisable(ctx)
		// Best-effort: the original firmware reads the STA config the radio
		// now holds without checking for error; preserved verbatim (§9).
		cfg, _ := m.drv.GetConfig(ctx, radio.IfaceSTA)
		if cfg.STA != nil {
			st.New.STA = StationParams{
				SSID:       cfg.STA.SSID,
				Passphrase: cfg.STA.Passphrase,
				BSSID:      cfg.STA.BSSID,
				PinBSSID:   cfg.STA.PinBSSID,
			}
		}
		st.New.Mode = radio.ModeAPSTA
		st.New.StaConnect = true
		st.State = Update
		return CfgDelay
	}

	if flags.Has(evtflags.WpsFailed) || !time.Now().Before(st.CfgTimestamp.Add(CfgTimeout)) {
		_ = m.drv.WPSDisable(ctx)
		st.State = Fallback
		return CfgDelay
	}
	return CfgTicks
}

// stepFallback implements the §4.1 `fallback` transition: best-effort,
// errors logged but never escalated — the device is already in the safety
// state.
func (m *Machine) stepFallback(ctx context.Context) time.Duration {
	st := &m.cs.st

	_ = m.drv.Disconnect(ctx)
	if err := m.applyToRadio(ctx, st.Saved); err != nil {
		m.logger.Errorw("fallback apply failed", "err", err)
	}
	st.Current = st.Saved
	st.State = Failed
	return 0
}

// stepConnected implements the §4.1 `connected` transition.
func (m *Machine) stepConnected(ctx context.Context, flags evtflags.Mask) time.Duration {
	st := &m.cs.st

	if !flags.Has(evtflags.StaConnected) {
		st.State = Update
		return CfgDelay
	}
	return 0
}

// applyToRadio pushes cfg to the radio driver and, for STA sections,
// configures the IP adapter (DHCP or static) to match sta_static.
func (m *Machine) applyToRadio(ctx context.Context, cfg WifiConfig) error {
	cfg.AP.MaxClients = 3 // pinned, per §4.6/original_source

	if err := m.drv.SetMode(ctx, cfg.Mode); err != nil {
		return errw.Wrapf(ErrIOError, "setting radio mode: %v", err)
	}

	if cfg.Mode == radio.ModeAP || cfg.Mode == radio.ModeAPSTA {
		apCfg := radio.APConfig{
			SSID:       cfg.AP.SSID,
			Passphrase: cfg.AP.Passphrase,
			Channel:    cfg.AP.Channel,
			Auth:       cfg.AP.Auth,
			MaxClients: cfg.AP.MaxClients,
		}
		if err := m.drv.SetConfig(ctx, radio.IfaceAP, radio.Config{AP: &apCfg}); err != nil {
			return errw.Wrapf(ErrIOError, "setting AP config: %v", err)
		}
	}

	if cfg.Mode == radio.ModeSTA || cfg.Mode == radio.ModeAPSTA {
		staCfg := radio.STAConfig{
			SSID:       cfg.STA.SSID,
			Passphrase: cfg.STA.Passphrase,
			BSSID:      cfg.STA.BSSID,
			PinBSSID:   cfg.STA.PinBSSID,
		}
		if err := m.drv.SetConfig(ctx, radio.IfaceSTA, radio.Config{STA: &staCfg}); err != nil {
			return errw.Wrapf(ErrIOError, "setting STA config: %v", err)
		}

		if cfg.StaStatic {
			_ = m.ip.DHCPCStop(ctx, ipstack.IfaceSTA)
			info := ipstack.IPv4Info{IP: cfg.StaIP.IP, Netmask: cfg.StaIP.Netmask, Gateway: cfg.StaIP.Gateway}
			if err := m.ip.SetStaticIP(ctx, ipstack.IfaceSTA, info); err != nil {
				return errw.Wrapf(ErrIOError, "setting static IP: %v", err)
			}
			for i, d := range cfg.StaDNS {
				_ = m.ip.SetDNSInfo(ctx, ipstack.IfaceSTA, i, ipstack.DNSEntry{IP: d.IP})
			}
		} else if err := m.ip.DHCPCStart(ctx, ipstack.IfaceSTA); err != nil {
			return errw.Wrapf(ErrIOError, "starting DHCP client: %v", err)
		}
	}

	if err := m.drv.Start(ctx); err != nil {
		return errw.Wrapf(ErrIOError, "starting radio: %v", err)
	}

	if (cfg.Mode == radio.ModeSTA || cfg.Mode == radio.ModeAPSTA) && cfg.StaConnect {
		if err := m.drv.Connect(ctx); err != nil {
			return errw.Wrapf(ErrIOError, "connecting: %v", err)
		}
	}
	return nil
}

// persist saves cfg to NVS (§4.4). For IsDefault configs it only erases the
// stored record; defaults are never written.
func (m *Machine) persist(cfg WifiConfig) error {
	if err := m.store.Save(toRecord(cfg), cfg.IsDefault); err != nil {
		return errw.Wrapf(ErrIOError, "saving config: %v", err)
	}
	return nil
}
