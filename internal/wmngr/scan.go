package wmngr

import (
	"context"

	errw "github.com/pkg/errors"

	"github.com/tidklaas/esp32-wifi-manager/internal/evtflags"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
	"github.com/tidklaas/esp32-wifi-manager/internal/scansnap"
)

// startScan implements the §4.3 start-scan step: stable state only, only
// permitted in a mode that can scan, and a no-op if a scan is already
// in flight or collected-but-not-yet-consumed.
func (m *Machine) startScan(ctx context.Context) error {
	mode, err := m.drv.GetMode(ctx)
	if err != nil {
		return errw.Wrap(err, "reading radio mode for scan")
	}
	if mode != radio.ModeSTA && mode != radio.ModeAPSTA {
		m.flags.ClearBit(evtflags.ScanStart)
		return nil
	}

	snap := m.flags.Snapshot()
	if snap.Has(evtflags.ScanRunning) || snap.Has(evtflags.ScanDone) {
		return nil
	}

	if err := m.drv.ScanStart(ctx, radio.ScanConfig{Active: true, ShowHidden: true}, true); err != nil {
		return errw.Wrap(err, "starting scan")
	}
	m.flags.SetBit(evtflags.ScanRunning)
	m.flags.ClearBit(evtflags.ScanStart)
	return nil
}

// collectScan implements the §4.3 collect-scan step.
func (m *Machine) collectScan(ctx context.Context) error {
	defer func() {
		m.flags.ClearBit(evtflags.ScanRunning)
		m.flags.ClearBit(evtflags.ScanDone)
	}()

	n, err := m.drv.ScanGetCount(ctx)
	if err != nil || n == 0 {
		return nil
	}
	if n > scansnap.MaxRecords {
		n = scansnap.MaxRecords
	}

	recs, err := m.drv.ScanGetRecords(ctx, n)
	if err != nil {
		return nil
	}

	out := make([]scansnap.APRecord, 0, len(recs))
	for _, r := range recs {
		var bssid [6]byte
		copy(bssid[:], r.BSSID)
		out = append(out, scansnap.APRecord{
			SSID:    r.SSID,
			BSSID:   bssid,
			RSSI:    r.RSSI,
			Channel: r.Channel,
			Hidden:  r.Hidden,
		})
	}

	next := scansnap.New(out)

	// collectScan always runs with cs already locked by the caller (Step),
	// so the swap below needs no locking of its own.
	prev := m.cs.st.ScanRef
	m.cs.st.ScanRef = next

	if prev != nil {
		prev.Release()
	}
	return nil
}

// serviceScan honors pending scan flags while state <= Idle (§4.1's "scan
// interleave"). It reports whether scan_start or scan_done is still pending
// afterwards, in which case the caller re-arms for CfgDelay.
func (m *Machine) serviceScan(ctx context.Context) (delay bool) {
	snap := m.flags.Snapshot()
	if snap.Has(evtflags.ScanStart) {
		if err := m.startScan(ctx); err != nil {
			m.logger.Errorw("scan start failed", "err", err)
		}
	} else if snap.Has(evtflags.ScanDone) {
		if err := m.collectScan(ctx); err != nil {
			m.logger.Errorw("scan collect failed", "err", err)
		}
	}

	snap = m.flags.Snapshot()
	return snap.Has(evtflags.ScanStart) || snap.Has(evtflags.ScanDone)
}

// GetScan returns the current scan snapshot with an extra reference held by
// the caller (§4.3 "reader borrow"), acquiring the config lock with the
// §4.5 bounded wait. The caller must call Release on the returned snapshot.
// Returns ErrNotFound if no scan has ever completed.
func (m *Machine) GetScan() (*scansnap.Snapshot, error) {
	if !m.cs.lockTimeout(LockWait) {
		return nil, ErrTimeout
	}
	defer m.cs.unlock()

	if m.cs.st.ScanRef == nil {
		return nil, ErrNotFound
	}
	return m.cs.st.ScanRef.Ref(), nil
}
