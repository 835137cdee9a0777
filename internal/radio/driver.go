// Package radio describes the capability surface of the wireless radio
// driver consumed by the wifi manager's state machine. Per the
// specification, the driver itself (starting/stopping the radio, running
// scans, running WPS) is an external collaborator referenced only by this
// contract — the wifi manager never implements a radio driver, it only calls
// one.
package radio

import (
	"context"
	"net"
)

// AuthMode mirrors the access point's authentication mode field.
type AuthMode int

const (
	AuthOpen AuthMode = iota
	AuthWPA2PSK
	AuthWPAWPA2PSK
)

// Mode selects which radio role(s) are active.
type Mode int

const (
	ModeAP Mode = iota
	ModeSTA
	ModeAPSTA
)

// Iface names which radio interface a config/operation applies to.
type Iface int

const (
	IfaceAP Iface = iota
	IfaceSTA
)

// APConfig is the access-point-role configuration pushed to the driver.
type APConfig struct {
	SSID       string
	Passphrase string
	Channel    uint8
	Auth       AuthMode
	MaxClients uint8
	Hidden     bool
}

// STAConfig is the station-role configuration pushed to the driver.
type STAConfig struct {
	SSID       string
	Passphrase string
	BSSID      net.HardwareAddr
	PinBSSID   bool
}

// Config is whichever one of APConfig/STAConfig an operation targets.
type Config struct {
	AP  *APConfig
	STA *STAConfig
}

// ScanConfig parameterizes a scan request.
type ScanConfig struct {
	Active       bool
	ShowHidden   bool
	ChannelDwell int
}

// Record is one scan hit as returned by the driver.
type Record struct {
	SSID    string
	BSSID   net.HardwareAddr
	RSSI    int8
	Channel uint8
	Hidden  bool
}

// WPSConfig parameterizes a WPS push-button/PIN session.
type WPSConfig struct {
	PIN string // empty ⇒ push-button mode
}

// StorageMode controls whether the driver persists configuration itself.
type StorageMode int

const (
	// StorageVolatile tells the driver NVS is owned by the caller, not the
	// driver — required so the wifi manager's own persistence adapter (§4.4)
	// is the single writer of record.
	StorageVolatile StorageMode = iota
	StorageFlash
)

// InitConfig parameterizes driver initialization.
type InitConfig struct{}

// Driver is the capability surface consumed by the state machine (§6).
// Implementations talk to the actual wireless hardware; this package only
// declares the contract.
type Driver interface {
	Init(ctx context.Context, cfg InitConfig) error
	SetStorage(mode StorageMode) error
	Restore(ctx context.Context) error

	SetMode(ctx context.Context, m Mode) error
	GetMode(ctx context.Context) (Mode, error)

	SetConfig(ctx context.Context, iface Iface, cfg Config) error
	GetConfig(ctx context.Context, iface Iface) (Config, error)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	ScanStart(ctx context.Context, cfg ScanConfig, async bool) error
	ScanGetCount(ctx context.Context) (int, error)
	ScanGetRecords(ctx context.Context, n int) ([]Record, error)
	ScanStop(ctx context.Context) error

	WPSEnable(ctx context.Context, cfg WPSConfig) error
	WPSStart(ctx context.Context, timeout int) error
	WPSDisable(ctx context.Context) error
}
