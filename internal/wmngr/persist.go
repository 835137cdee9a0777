package wmngr

import (
	"net"

	"github.com/tidklaas/esp32-wifi-manager/internal/nvs"
	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
)

// sizes of the aggregate blobs, used for the §4.4 "length mismatch ⇒ absent"
// check. Each blob is a fixed binary encoding of its struct so a mismatched
// length reliably indicates a stale or corrupted record.
const (
	apBlobSize     = 1 + 32 + 64 + 1 + 1 + 1 // auth,ssid,pass,channel,maxclients,hidden(always 0)
	staBlobSize    = 6 + 32 + 64 + 1         // bssid,ssid,pass,pinbssid
	ipBlobSize     = 4 + 4 + 4
	dnsBlobSize    = MaxDNSEntries * 4
)

func encodeAP(ap AccessPointParams) []byte {
	b := make([]byte, 0, 1+32+64+1+1+1)
	b = append(b, byte(ap.Auth))
	b = appendFixedString(b, ap.SSID, 32)
	b = appendFixedString(b, ap.Passphrase, 64)
	b = append(b, ap.Channel, ap.MaxClients, boolByte(false))
	return b
}

func decodeAP(b []byte) AccessPointParams {
	if len(b) != apBlobSize {
		return AccessPointParams{}
	}
	off := 0
	auth := b[off]
	off++
	ssid := readFixedString(b[off : off+32])
	off += 32
	pass := readFixedString(b[off : off+64])
	off += 64
	ch := b[off]
	off++
	maxc := b[off]
	return AccessPointParams{
		Auth:       radio.AuthMode(auth),
		SSID:       ssid,
		Passphrase: pass,
		Channel:    ch,
		MaxClients: maxc,
	}
}

func encodeSTA(sta StationParams) []byte {
	b := make([]byte, 0, staBlobSize)
	var bssid [6]byte
	copy(bssid[:], sta.BSSID)
	b = append(b, bssid[:]...)
	b = appendFixedString(b, sta.SSID, 32)
	b = appendFixedString(b, sta.Passphrase, 64)
	b = append(b, boolByte(sta.PinBSSID))
	return b
}

func decodeSTA(b []byte) StationParams {
	if len(b) != staBlobSize {
		return StationParams{}
	}
	off := 0
	bssid := make(net.HardwareAddr, 6)
	copy(bssid, b[off:off+6])
	off += 6
	ssid := readFixedString(b[off : off+32])
	off += 32
	pass := readFixedString(b[off : off+64])
	off += 64
	pin := b[off] != 0
	return StationParams{SSID: ssid, Passphrase: pass, BSSID: bssid, PinBSSID: pin}
}

func encodeIP(ip IPv4Info) []byte {
	b := make([]byte, 0, ipBlobSize)
	b = append(b, to4(ip.IP)...)
	b = append(b, to4(ip.Netmask)...)
	b = append(b, to4(ip.Gateway)...)
	return b
}

func decodeIP(b []byte) IPv4Info {
	if len(b) != ipBlobSize {
		return IPv4Info{}
	}
	return IPv4Info{
		IP:      net.IP(append([]byte(nil), b[0:4]...)),
		Netmask: net.IP(append([]byte(nil), b[4:8]...)),
		Gateway: net.IP(append([]byte(nil), b[8:12]...)),
	}
}

func encodeDNS(dns [MaxDNSEntries]DNSEntry) []byte {
	b := make([]byte, 0, dnsBlobSize)
	for _, d := range dns {
		b = append(b, to4(d.IP)...)
	}
	return b
}

func decodeDNS(b []byte) [MaxDNSEntries]DNSEntry {
	var out [MaxDNSEntries]DNSEntry
	if len(b) != dnsBlobSize {
		return out
	}
	for i := 0; i < MaxDNSEntries; i++ {
		out[i].IP = net.IP(append([]byte(nil), b[i*4:i*4+4]...))
	}
	return out
}

func to4(ip net.IP) []byte {
	v4 := ip.To4()
	if v4 == nil {
		return make([]byte, 4)
	}
	return v4
}

func appendFixedString(b []byte, s string, n int) []byte {
	buf := make([]byte, n)
	copy(buf, s)
	return append(b, buf...)
}

func readFixedString(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// toRecord converts a WifiConfig into the nvs.Record shape described in §6.
func toRecord(cfg WifiConfig) nvs.Record {
	return nvs.Record{
		Mode:       uint32(cfg.Mode),
		StaStatic:  boolU32(cfg.StaStatic),
		StaConnect: boolU32(cfg.StaConnect),
		AP:         encodeAP(cfg.AP),
		STA:        encodeSTA(cfg.STA),
		APIP:       encodeIP(cfg.APIP),
		STAIP:      encodeIP(cfg.StaIP),
		STADNS:     encodeDNS(cfg.StaDNS),
		APSize:     apBlobSize,
		STASize:    staBlobSize,
		APIPSize:   ipBlobSize,
		STAIPSize:  ipBlobSize,
		STADNSSize: dnsBlobSize,
	}
}

// fromRecord converts a loaded nvs.Record back into a WifiConfig.
func fromRecord(rec nvs.Record) WifiConfig {
	return WifiConfig{
		IsDefault:  false,
		Mode:       radio.Mode(rec.Mode),
		AP:         decodeAP(rec.AP),
		APIP:       decodeIP(rec.APIP),
		STA:        decodeSTA(rec.STA),
		StaStatic:  rec.StaStatic != 0,
		StaIP:      decodeIP(rec.STAIP),
		StaDNS:     decodeDNS(rec.STADNS),
		StaConnect: rec.StaConnect != 0,
	}
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// expectSizes returns a Record populated only with the expected blob sizes,
// for use as the "expect" argument to Store.Load.
func expectSizes() nvs.Record {
	return nvs.Record{
		APSize:     apBlobSize,
		STASize:    staBlobSize,
		APIPSize:   ipBlobSize,
		STAIPSize:  ipBlobSize,
		STADNSSize: dnsBlobSize,
	}
}
