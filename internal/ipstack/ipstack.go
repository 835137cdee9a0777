// Package ipstack describes the capability surface of the IP-stack adapter
// consumed by the wifi manager: DHCP client lifecycle and static DNS
// configuration. Like package radio, this is an external collaborator
// referenced only by contract — no implementation lives here.
package ipstack

import (
	"context"
	"net"
)

// Iface names which network interface an operation targets.
type Iface int

const (
	IfaceAP Iface = iota
	IfaceSTA
)

// DHCPStatus reports the DHCP client's current state for an interface.
type DHCPStatus int

const (
	DHCPStopped DHCPStatus = iota
	DHCPStarted
	DHCPBound
)

// IPv4Info is an IPv4 address/netmask/gateway triple.
type IPv4Info struct {
	IP      net.IP
	Netmask net.IP
	Gateway net.IP
}

// DNSEntry is one static DNS server assignment.
type DNSEntry struct {
	IP net.IP
}

// Adapter is the capability surface consumed by the state machine (§6).
type Adapter interface {
	Init(ctx context.Context) error

	DHCPCStart(ctx context.Context, iface Iface) error
	DHCPCStop(ctx context.Context, iface Iface) error
	DHCPCGetStatus(ctx context.Context, iface Iface) (DHCPStatus, error)

	SetDNSInfo(ctx context.Context, iface Iface, idx int, info DNSEntry) error
	GetDNSInfo(ctx context.Context, iface Iface, idx int) (DNSEntry, error)

	SetStaticIP(ctx context.Context, iface Iface, info IPv4Info) error
}
