package main

import (
	"context"
	"net"
	"sync"

	"github.com/tidklaas/esp32-wifi-manager/internal/ipstack"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
)

// fakeDriver stands in for the ESP32 radio driver this demo has no hardware
// for: every call succeeds immediately and the scan calls report two fixed
// records. It raises no radio events, so no scan is ever reported done.
type fakeDriver struct {
	mu   sync.Mutex
	mode radio.Mode
	cfg  radio.Config
}

func newFakeDriver() *fakeDriver { return &fakeDriver{} }

func (d *fakeDriver) Init(ctx context.Context, cfg radio.InitConfig) error { return nil }
func (d *fakeDriver) SetStorage(mode radio.StorageMode) error              { return nil }
func (d *fakeDriver) Restore(ctx context.Context) error                   { return nil }

func (d *fakeDriver) SetMode(ctx context.Context, m radio.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
	return nil
}

func (d *fakeDriver) GetMode(ctx context.Context) (radio.Mode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode, nil
}

func (d *fakeDriver) SetConfig(ctx context.Context, iface radio.Iface, cfg radio.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.AP != nil {
		d.cfg.AP = cfg.AP
	}
	if cfg.STA != nil {
		d.cfg.STA = cfg.STA
	}
	return nil
}

func (d *fakeDriver) GetConfig(ctx context.Context, iface radio.Iface) (radio.Config, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, nil
}

func (d *fakeDriver) Start(ctx context.Context) error      { return nil }
func (d *fakeDriver) Stop(ctx context.Context) error       { return nil }
func (d *fakeDriver) Connect(ctx context.Context) error    { return nil }
func (d *fakeDriver) Disconnect(ctx context.Context) error { return nil }

func (d *fakeDriver) ScanStart(ctx context.Context, cfg radio.ScanConfig, async bool) error {
	return nil
}

func (d *fakeDriver) ScanGetCount(ctx context.Context) (int, error) { return 2, nil }

func (d *fakeDriver) ScanGetRecords(ctx context.Context, n int) ([]radio.Record, error) {
	recs := []radio.Record{
		{SSID: "neighbor-net", BSSID: net.HardwareAddr{0, 1, 2, 3, 4, 5}, RSSI: -60, Channel: 6},
		{SSID: "coffee-shop", BSSID: net.HardwareAddr{6, 7, 8, 9, 10, 11}, RSSI: -75, Channel: 11},
	}
	if n < len(recs) {
		recs = recs[:n]
	}
	return recs, nil
}

func (d *fakeDriver) ScanStop(ctx context.Context) error { return nil }

func (d *fakeDriver) WPSEnable(ctx context.Context, cfg radio.WPSConfig) error { return nil }
func (d *fakeDriver) WPSStart(ctx context.Context, timeout int) error         { return nil }
func (d *fakeDriver) WPSDisable(ctx context.Context) error                    { return nil }

// fakeAdapter stands in for the IP-stack adapter.
type fakeAdapter struct {
	mu  sync.Mutex
	dns map[int]ipstack.DNSEntry
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{dns: make(map[int]ipstack.DNSEntry)} }

func (a *fakeAdapter) Init(ctx context.Context) error { return nil }

func (a *fakeAdapter) DHCPCStart(ctx context.Context, iface ipstack.Iface) error { return nil }
func (a *fakeAdapter) DHCPCStop(ctx context.Context, iface ipstack.Iface) error  { return nil }

func (a *fakeAdapter) DHCPCGetStatus(ctx context.Context, iface ipstack.Iface) (ipstack.DHCPStatus, error) {
	return ipstack.DHCPBound, nil
}

func (a *fakeAdapter) SetDNSInfo(ctx context.Context, iface ipstack.Iface, idx int, info ipstack.DNSEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dns[idx] = info
	return nil
}

func (a *fakeAdapter) GetDNSInfo(ctx context.Context, iface ipstack.Iface, idx int) (ipstack.DNSEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dns[idx], nil
}

func (a *fakeAdapter) SetStaticIP(ctx context.Context, iface ipstack.Iface, info ipstack.IPv4Info) error {
	return nil
}
