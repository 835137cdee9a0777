package wmngr

import (
	"context"

	errw "github.com/pkg/errors"

	"github.com/tidklaas/esp32-wifi-manager/internal/evtflags"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
	"github.com/tidklaas/esp32-wifi-manager/internal/scansnap"
)

// Init seeds the machine from defaultCfg/persisted NVS, primes the radio
// driver to keep its own storage volatile (NVS is this package's, not the
// driver's, per §4.5), and leaves state at Update so the first Step applies
// the loaded/default config.
func (m *Machine) Init(ctx context.Context, defaultCfg WifiConfig) error {
	if err := m.drv.Init(ctx, radio.InitConfig{}); err != nil {
		return errw.Wrapf(ErrIOError, "initializing radio driver: %v", err)
	}
	if err := m.drv.SetStorage(radio.StorageVolatile); err != nil {
		return errw.Wrapf(ErrIOError, "pinning radio storage to volatile: %v", err)
	}
	if err := m.ip.Init(ctx); err != nil {
		return errw.Wrapf(ErrIOError, "initializing ip adapter: %v", err)
	}
	if err := m.Seed(defaultCfg); err != nil {
		return err
	}
	m.wake(0)
	return nil
}

// SetCfg implements §4.5 set_cfg: snapshot current into saved, install the
// caller's config as New, and trigger Update if it actually differs.
func (m *Machine) SetCfg(cfg WifiConfig) error {
	if err := cfg.validate(); err != nil {
		return errw.Wrap(ErrInvalidArg, err.Error())
	}

	if !m.cs.lockTimeout(LockWait) {
		return ErrTimeout
	}
	defer m.cs.unlock()

	st := &m.cs.st
	if !st.State.IsStable() {
		return ErrInvalidState
	}

	saved := st.Current
	if !m.flags.Snapshot().Has(evtflags.StaConnected) {
		saved.STA = StationParams{}
	}
	st.Saved = saved

	cfg.IsDefault = false
	changed := cfg.differs(st.Saved)
	st.New = cfg

	if changed {
		st.State = Update
		m.wake(0)
	}
	return nil
}

// GetCfg implements §4.5 get_cfg: copy Current to the caller.
func (m *Machine) GetCfg() (WifiConfig, error) {
	if !m.cs.lockTimeout(LockWait) {
		return WifiConfig{}, ErrTimeout
	}
	defer m.cs.unlock()
	return m.cs.st.Current, nil
}

// StartWPS implements §4.5 start_wps.
func (m *Machine) StartWPS() error {
	if !m.cs.lockTimeout(LockWait) {
		return ErrTimeout
	}
	defer m.cs.unlock()

	st := &m.cs.st
	if !st.State.IsStable() {
		return ErrInvalidState
	}
	st.Saved = st.Current
	st.State = WpsStart
	m.wake(0)
	return nil
}

// StartScan implements §4.5 start_scan: it only sets flags and always
// succeeds immediately, since servicing is deferred to the next stable
// step (§4.1 scan interleave, §8 scenario S5).
func (m *Machine) StartScan() error {
	m.flags.SetBit(evtflags.ScanStart)
	m.flags.SetBit(evtflags.Trigger)
	m.wake(0)
	return nil
}

// PutScan releases a reference obtained from GetScan (§4.3).
func (m *Machine) PutScan(snap *scansnap.Snapshot) {
	if snap != nil {
		snap.Release()
	}
}

// setConnect re-applies Current with sta_connect overridden, used by
// Connect/Disconnect (§4.5, §9 resolution for set_connect(false)).
func (m *Machine) setConnect(connect bool) error {
	if !m.cs.lockTimeout(LockWait) {
		return ErrTimeout
	}
	defer m.cs.unlock()

	st := &m.cs.st
	if !st.State.IsStable() {
		return ErrInvalidState
	}
	if st.Current.Mode == radio.ModeAP {
		return ErrInvalidState
	}

	next := st.Current
	next.StaConnect = connect
	st.Saved = st.Current
	st.New = next
	st.State = Update
	m.wake(0)
	return nil
}

// Connect implements §4.5 connect.
func (m *Machine) Connect() error { return m.setConnect(true) }

// Disconnect implements §4.5 disconnect: it re-applies Current with
// sta_connect=false, which tears down the association (§9 resolution of the
// set_connect(false) ambiguity in the original firmware).
func (m *Machine) Disconnect() error { return m.setConnect(false) }

// IsConnected implements §4.5 is_connected: a read-only test of the
// sta_connected flag, requiring no lock.
func (m *Machine) IsConnected() bool {
	return m.flags.Snapshot().Has(evtflags.StaConnected)
}

// NVSValid implements §4.5/§9 nvs_valid, exposed under this single name.
func (m *Machine) NVSValid() bool {
	_, err := m.store.Load(expectSizes())
	return err == nil
}
