package wmngr

import "github.com/tidklaas/esp32-wifi-manager/internal/evtflags"

// EventCategory groups the radio/IP events the callback may receive,
// mirroring the capability surfaces in §6.
type EventCategory int

const (
	CategorySTA EventCategory = iota
	CategoryAP
	CategoryScan
	CategoryWPS
)

// EventID names a specific event within its category.
type EventID int

const (
	StaStart EventID = iota
	StaStop
	StaConnected
	StaDisconnected
	StaGotIP
	StaLostIP
)

const (
	ApStart EventID = iota
	ApStop
)

const (
	ScanDoneOK EventID = iota
	ScanDoneError
)

const (
	WpsSuccess EventID = iota
	WpsFailed
	WpsTimeout
	WpsPin
)

// HandleEvent updates flags according to the §4.2 event table and reports
// whether the mask changed, so the caller knows whether to arm the
// state-machine wake-up (CfgDelay). It never blocks and never takes the
// config lock — it races with the state machine by design (invariant 6).
func HandleEvent(flags *evtflags.Set, category EventCategory, id EventID) (changed bool) {
	switch category {
	case CategorySTA:
		switch id {
		case StaStart:
			return flags.SetBit(evtflags.StaStart)
		case StaStop:
			return flags.ClearBit(evtflags.StaStart)
		case StaConnected:
			return flags.SetBit(evtflags.StaConnected)
		case StaDisconnected:
			return flags.ClearBit(evtflags.StaConnected)
		case StaGotIP:
			return flags.SetBit(evtflags.StaGotIP)
		case StaLostIP:
			return flags.ClearBit(evtflags.StaGotIP)
		}
	case CategoryAP:
		switch id {
		case ApStart:
			return flags.SetBit(evtflags.ApStart)
		case ApStop:
			return flags.ClearBit(evtflags.ApStart)
		}
	case CategoryScan:
		switch id {
		case ScanDoneOK:
			// scan complete always clears scan_start, regardless of status;
			// scan_done is set only on success.
			cleared := flags.ClearBit(evtflags.ScanStart)
			set := flags.SetBit(evtflags.ScanDone)
			return cleared || set
		case ScanDoneError:
			return flags.ClearBit(evtflags.ScanStart)
		}
	case CategoryWPS:
		switch id {
		case WpsSuccess:
			return flags.SetBit(evtflags.WpsSuccess)
		case WpsFailed, WpsTimeout, WpsPin:
			return flags.SetBit(evtflags.WpsFailed)
		}
	}
	// An unrecognized event is ignored; the event callback never fails (§7).
	return false
}
