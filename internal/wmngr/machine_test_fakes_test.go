package wmngr

import (
	"context"
	"sync"

	"github.com/tidklaas/esp32-wifi-manager/internal/ipstack"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
)

// driverMock is a minimal, fully in-memory stand-in for radio.Driver, in the
// style of networkmanager_test.go's bluetoothServiceMock: a handful of
// knob fields the test sets before calling into the machine, plus enough
// state tracking to assert on afterward.
type driverMock struct {
	mu sync.Mutex

	mode radio.Mode
	cfg  radio.Config

	connectErr    error
	staConfigErr  error
	scanRecords   []radio.Record
	scanCountErr  error
	wpsEnableErr  error
	wpsStartErr   error
	startErr      error

	connectCalls int
	startCalls   int
}

func newDriverMock() *driverMock { return &driverMock{} }

func (d *driverMock) Init(ctx context.Context, cfg radio.InitConfig) error { return nil }
func (d *driverMock) SetStorage(mode radio.StorageMode) error              { return nil }
func (d *driverMock) Restore(ctx context.Context) error                   { return nil }

func (d *driverMock) SetMode(ctx context.Context, m radio.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
	return nil
}

func (d *driverMock) GetMode(ctx context.Context) (radio.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, nil
}

func (d *driverMock) SetConfig(ctx context.Context, iface radio.Iface, cfg radio.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iface == radio.IfaceSTA && d.staConfigErr != nil {
		return d.staConfigErr
	}
	if cfg.AP != nil {
		d.cfg.AP = cfg.AP
	}
	if cfg.STA != nil {
		d.cfg.STA = cfg.STA
	}
	return nil
}

func (d *driverMock) GetConfig(ctx context.Context, iface radio.Iface) (radio.Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, nil
}

func (d *driverMock) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startCalls++
	return d.startErr
}

func (d *driverMock) Stop(ctx context.Context) error { return nil }

func (d *driverMock) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectCalls++
	return d.connectErr
}

func (d *driverMock) Disconnect(ctx context.Context) error { return nil }

func (d *driverMock) ScanStart(ctx context.Context, cfg radio.ScanConfig, async bool) error {
	return nil
}

func (d *driverMock) ScanGetCount(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scanCountErr != nil {
		return 0, d.scanCountErr
	}
	return len(d.scanRecords), nil
}

func (d *driverMock) ScanGetRecords(ctx context.Context, n int) ([]radio.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n > len(d.scanRecords) {
		n = len(d.scanRecords)
	}
	return d.scanRecords[:n], nil
}

func (d *driverMock) ScanStop(ctx context.Context) error { return nil }

func (d *driverMock) WPSEnable(ctx context.Context, cfg radio.WPSConfig) error { return d.wpsEnableErr }
func (d *driverMock) WPSStart(ctx context.Context, timeout int) error         { return d.wpsStartErr }
func (d *driverMock) WPSDisable(ctx context.Context) error                   { return nil }

// adapterMock is a minimal stand-in for ipstack.Adapter.
type adapterMock struct {
	mu  sync.Mutex
	dns map[int]ipstack.DNSEntry
}

func newAdapterMock() *adapterMock { return &adapterMock{dns: make(map[int]ipstack.DNSEntry)} }

func (a *adapterMock) Init(ctx context.Context) error { return nil }

func (a *adapterMock) DHCPCStart(ctx context.Context, iface ipstack.Iface) error { return nil }
func (a *adapterMock) DHCPCStop(ctx context.Context, iface ipstack.Iface) error  { return nil }

func (a *adapterMock) DHCPCGetStatus(ctx context.Context, iface ipstack.Iface) (ipstack.DHCPStatus, error) {
	return ipstack.DHCPBound, nil
}

func (a *adapterMock) SetDNSInfo(ctx context.Context, iface ipstack.Iface, idx int, info ipstack.DNSEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dns[idx] = info
	return nil
}

func (a *adapterMock) GetDNSInfo(ctx context.Context, iface ipstack.Iface, idx int) (ipstack.DNSEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dns[idx], nil
}

func (a *adapterMock) SetStaticIP(ctx context.Context, iface ipstack.Iface, info ipstack.IPv4Info) error {
	return nil
}
