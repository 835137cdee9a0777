// Package wifimanager is the public surface of the ESP wifi manager: a
// stateless request/response facade over the configuration state machine in
// internal/wmngr. An external control surface (typically an HTTP handler,
// out of scope for this module) calls Manager's methods; Manager arbitrates
// the async, event-driven radio stack on the caller's behalf.
package wifimanager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tidklaas/esp32-wifi-manager/internal/ipstack"
	"github.com/tidklaas/esp32-wifi-manager/internal/nvs"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
	"github.com/tidklaas/esp32-wifi-manager/internal/scansnap"
	"github.com/tidklaas/esp32-wifi-manager/internal/wmngr"
)

// Dispatch selects which of the two build variants from §5 drives the state
// machine: a dedicated worker task waking on a trigger flag, or a host timer
// callback invoking Step directly.
type Dispatch int

const (
	// DispatchTask runs a dedicated goroutine that blocks on the trigger
	// flag, recommended when the host timer stack is small (§5).
	DispatchTask Dispatch = iota
	// DispatchTimer invokes Step directly from a timer callback.
	DispatchTimer
)

// Config parameterizes Manager construction.
type Config struct {
	// NVSDir is where the persistence adapter keeps its record file.
	NVSDir string
	// Dispatch selects the driver-task policy (§5).
	Dispatch Dispatch
	// Defaults overrides the compiled-in AP defaults (§4.6).
	Defaults wmngr.DefaultsOverride
}

// Manager is the wifi manager's singleton. Construct one with New and call
// Init before using any other method, matching the original firmware's
// esp_wmngr_init() contract.
type Manager struct {
	logger *zap.SugaredLogger
	m      *wmngr.Machine

	dispatch Dispatch
	defaults wmngr.DefaultsOverride

	triggerCh chan struct{}
	timer     *time.Timer
	timerMu   sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager wired to drv/ip/the NVS directory in cfg. It does
// not start anything; call Init for that.
func New(drv radio.Driver, ip ipstack.Adapter, logger *zap.SugaredLogger, cfg Config) *Manager {
	mgr := &Manager{
		logger:    logger,
		dispatch:  cfg.Dispatch,
		defaults:  cfg.Defaults,
		triggerCh: make(chan struct{}, 1),
	}

	store := nvs.NewStore(cfg.NVSDir)
	mgr.m = wmngr.NewMachine(drv, ip, store, logger, mgr.wakeSoon)
	return mgr
}

// wakeSoon implements wmngr.WakeFunc, arming a one-shot delayable wake-up.
// This is the one "driver task shares an interface with the timer" seam
// described in §9: both dispatch variants funnel through here.
func (mgr *Manager) wakeSoon(delay time.Duration) {
	switch mgr.dispatch {
	case DispatchTask:
		if delay > 0 {
			mgr.armTimer(delay)
			return
		}
		select {
		case mgr.triggerCh <- struct{}{}:
		default:
		}
	case DispatchTimer:
		mgr.armTimer(delay)
	}
}

func (mgr *Manager) armTimer(delay time.Duration) {
	mgr.timerMu.Lock()
	defer mgr.timerMu.Unlock()

	if mgr.timer == nil {
		mgr.timer = time.AfterFunc(delay, mgr.onTimerFire)
		return
	}
	mgr.timer.Reset(delay)
}

func (mgr *Manager) onTimerFire() {
	if mgr.dispatch == DispatchTimer {
		mgr.m.Step(context.Background())
		return
	}
	select {
	case mgr.triggerCh <- struct{}{}:
	default:
	}
}

// Init implements §4.5 init(): create the lock/event-flag set (done inside
// Machine), register event callbacks (HandleEvent, called externally by
// the caller's radio/IP event plumbing), seed Saved from compiled defaults,
// load persisted config into New, set state to Update, initialize the radio
// driver with storage pinned to volatile, and — for DispatchTask — spawn the
// driver task.
func (mgr *Manager) Init(ctx context.Context) error {
	defaults := wmngr.DefaultConfig(mgr.defaults, func(field, bad, fallback string) {
		mgr.logger.Warnw("substituting hard-coded default", "field", field, "bad", bad, "fallback", fallback)
	})

	if err := mgr.m.Init(ctx, defaults); err != nil {
		return err
	}

	if mgr.dispatch == DispatchTask {
		runCtx, cancel := context.WithCancel(ctx)
		mgr.cancel = cancel
		mgr.wg.Add(1)
		go mgr.driverTask(runCtx)
	}
	return nil
}

// driverTask is the DispatchTask worker: block on the trigger flag, then run
// one Step. Recommended when the host timer stack is small (§5).
func (mgr *Manager) driverTask(ctx context.Context) {
	defer mgr.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-mgr.triggerCh:
			mgr.m.Step(ctx)
		}
	}
}

// Stop tears down the driver task, if any. Not part of the original C API
// (the firmware never shuts down) but needed for a hosted Go process.
func (mgr *Manager) Stop() {
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.wg.Wait()
}

// EventCategory/EventID re-export the wmngr event vocabulary so callers
// outside this module need not import internal/wmngr directly.
type (
	EventCategory = wmngr.EventCategory
	EventID       = wmngr.EventID
)

const (
	CategorySTA  = wmngr.CategorySTA
	CategoryAP   = wmngr.CategoryAP
	CategoryScan = wmngr.CategoryScan
	CategoryWPS  = wmngr.CategoryWPS
)

// HandleEvent implements §4.2: the registered callback that receives
// (category, id) from the radio/IP subsystem. It never blocks and never
// takes the config lock (invariant 6) — it only touches the atomic flag set
// and, if anything changed, arms a short wake-up.
func (mgr *Manager) HandleEvent(category EventCategory, id EventID) {
	if wmngr.HandleEvent(mgr.m.Flags(), category, id) {
		mgr.wakeSoon(wmngr.CfgDelay)
	}
}

// SetCfg implements §4.5 set_cfg.
func (mgr *Manager) SetCfg(cfg wmngr.WifiConfig) error { return mgr.m.SetCfg(cfg) }

// GetCfg implements §4.5 get_cfg.
func (mgr *Manager) GetCfg() (wmngr.WifiConfig, error) { return mgr.m.GetCfg() }

// StartWPS implements §4.5 start_wps.
func (mgr *Manager) StartWPS() error { return mgr.m.StartWPS() }

// StartScan implements §4.5 start_scan.
func (mgr *Manager) StartScan() error { return mgr.m.StartScan() }

// GetScan implements §4.5/§4.3 get_scan: the caller must call PutScan on the
// returned snapshot exactly once, if it is non-nil.
func (mgr *Manager) GetScan() (*scansnap.Snapshot, error) { return mgr.m.GetScan() }

// PutScan implements §4.5/§4.3 put_scan.
func (mgr *Manager) PutScan(snap *scansnap.Snapshot) { mgr.m.PutScan(snap) }

// Connect implements §4.5 connect.
func (mgr *Manager) Connect() error { return mgr.m.Connect() }

// Disconnect implements §4.5 disconnect.
func (mgr *Manager) Disconnect() error { return mgr.m.Disconnect() }

// GetState implements §4.5 get_state.
func (mgr *Manager) GetState() wmngr.State { return mgr.m.GetState() }

// IsConnected implements §4.5 is_connected.
func (mgr *Manager) IsConnected() bool { return mgr.m.IsConnected() }

// NVSValid implements §4.5/§9 nvs_valid (exposed under one name only).
func (mgr *Manager) NVSValid() bool { return mgr.m.NVSValid() }
