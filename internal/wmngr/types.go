// Package wmngr implements the configuration state machine, event ingest,
// and scan pipeline glue described by §3 and §4.1-§4.3 of the wifi manager
// specification. It is the load-bearing core consumed by the public API in
// the root package.
package wmngr

import (
	"net"
	"time"

	errw "github.com/pkg/errors"

	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
	"github.com/tidklaas/esp32-wifi-manager/internal/scansnap"
)

// State is one element of the wifi manager's state enum. The numeric
// ordering below is load-bearing: IsStable reports state <= Idle, and the
// spec's busy-check relies on that ordering holding exactly as declared.
type State int

const (
	Failed State = iota
	Connected
	Idle

	Update
	WpsStart
	WpsActive
	Connecting
	Disconnecting
	Fallback
)

var stateNames = [...]string{
	Failed:         "failed",
	Connected:      "connected",
	Idle:           "idle",
	Update:         "update",
	WpsStart:       "wps_start",
	WpsActive:      "wps_active",
	Connecting:     "connecting",
	Disconnecting:  "disconnecting",
	Fallback:       "fallback",
}

// String renders the state's name for logging.
func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) && stateNames[s] != "" {
		return stateNames[s]
	}
	return "unknown"
}

// IsStable reports whether s accepts new public requests. Per §4.1, a state
// strictly greater than Idle is transitional.
func (s State) IsStable() bool {
	return s <= Idle
}

// AccessPointParams is the AP-role section of a WifiConfig.
type AccessPointParams struct {
	SSID       string // 1..32 bytes
	Passphrase string
	Channel    uint8
	Auth       radio.AuthMode
	MaxClients uint8 // fixed to 3 when applied, per §4.6/original_source
}

// StationParams is the STA-role section of a WifiConfig.
type StationParams struct {
	SSID       string
	Passphrase string
	BSSID      net.HardwareAddr
	PinBSSID   bool
}

// IPv4Info is an IPv4 address/netmask/gateway triple.
type IPv4Info struct {
	IP      net.IP
	Netmask net.IP
	Gateway net.IP
}

// DNSEntry is one static DNS server address.
type DNSEntry struct {
	IP net.IP
}

// MaxDNSEntries bounds the sta_dns array, matching TCPIP_ADAPTER_DNS_MAX.
const MaxDNSEntries = 3

// WifiConfig is the value type persisted and applied (§3).
type WifiConfig struct {
	IsDefault bool // true iff synthesized from compiled defaults; never persisted

	Mode radio.Mode

	AP   AccessPointParams
	APIP IPv4Info

	STA StationParams

	StaStatic bool
	StaIP     IPv4Info
	StaDNS    [MaxDNSEntries]DNSEntry

	StaConnect bool
}

// apEqual reports whether the AP-bearing sections of two configs match, used
// by SetCfg's "differs from saved" check (§4.5).
func (c WifiConfig) apEqual(o WifiConfig) bool {
	return c.AP == o.AP
}

// staEqual reports whether the STA-bearing sections of two configs match.
func (c WifiConfig) staEqual(o WifiConfig) bool {
	if c.STA.SSID != o.STA.SSID || c.STA.Passphrase != o.STA.Passphrase ||
		c.STA.PinBSSID != o.STA.PinBSSID {
		return false
	}
	return c.STA.BSSID.String() == o.STA.BSSID.String()
}

// validate reports the first §7 argument-validity violation found in c, or
// nil if c is fit to hand to the state machine. Checked by SetCfg (§4.5)
// before a caller-supplied config is accepted.
func (c WifiConfig) validate() error {
	if c.Mode != radio.ModeAP && c.Mode != radio.ModeSTA && c.Mode != radio.ModeAPSTA {
		return errw.Errorf("invalid mode %d", c.Mode)
	}
	if c.Mode == radio.ModeAP || c.Mode == radio.ModeAPSTA {
		if len(c.AP.SSID) < 1 || len(c.AP.SSID) > 32 {
			return errw.Errorf("ap ssid length %d out of range 1..32", len(c.AP.SSID))
		}
	}
	if c.Mode == radio.ModeSTA || c.Mode == radio.ModeAPSTA {
		if c.StaConnect && len(c.STA.SSID) < 1 {
			return errw.New("sta ssid required when sta_connect is set")
		}
		if len(c.STA.SSID) > 32 {
			return errw.Errorf("sta ssid length %d exceeds 32", len(c.STA.SSID))
		}
	}
	return nil
}

// differs reports whether new differs from cur in mode, AP section (when
// AP-bearing), or STA section (when STA-bearing) — the §4.5 SetCfg check
// that decides whether a transition is actually needed.
func (c WifiConfig) differs(o WifiConfig) bool {
	if c.Mode != o.Mode {
		return true
	}
	if c.Mode == radio.ModeAP || c.Mode == radio.ModeAPSTA {
		if !c.apEqual(o) {
			return true
		}
	}
	if c.Mode == radio.ModeSTA || c.Mode == radio.ModeAPSTA {
		if !c.staEqual(o) {
			return true
		}
	}
	return false
}

// ConfigState is the process-wide, singleton, mutex-guarded state (§3). All
// fields other than State must only be mutated while State is in the stable
// set, under the lock, or from inside the state machine's Step itself
// (invariant 1).
type ConfigState struct {
	State State // may be read without the lock by GetState

	CfgTimestamp time.Time // when the current transition began

	Saved   WifiConfig // last known-good config; target of fall-back
	Current WifiConfig // config currently applied to the radio
	New     WifiConfig // config the state machine is trying to install

	ScanRef *scansnap.Snapshot // most recent published scan snapshot; may be nil
}

// Deadline/poll tuning constants (§4.1). CFG_TICKS/CFG_DELAY/CFG_TIMEOUT in
// the original firmware are FreeRTOS tick counts; expressed here as
// time.Duration, which sidesteps the unsigned-wraparound tick arithmetic the
// original needs (§9 design note).
const (
	CfgTicks   = time.Second
	CfgDelay   = 100 * time.Millisecond
	CfgTimeout = 60 * time.Second

	// LockWait bounds how long a public API operation waits to acquire the
	// lock (§4.5). Step never waits: on contention it re-arms for LockWait
	// and returns (§4.1/§5).
	LockWait = 100 * time.Millisecond
)
