package wmngr

import (
	"net"
	"os"

	errw "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tidklaas/esp32-wifi-manager/internal/radio"
)

// Compiled-in defaults (§4.6). Matches the original firmware's hard-coded
// fallback values exactly.
const (
	DefaultAPIP         = "192.168.4.1"
	DefaultAPNetmask    = "255.255.255.0"
	DefaultAPGateway    = "192.168.4.1"
	DefaultAPSSID       = "ESP WiFi Manager"
	DefaultAPPassphrase = ""
)

// DefaultsOverride lets a deployment override the compiled-in AP
// IPv4/netmask/gateway/SSID without a recompile, loaded from an optional
// YAML file (§ domain stack). Any field left empty falls back to the
// compiled-in default.
type DefaultsOverride struct {
	APIP      string `yaml:"ap_ip"`
	APNetmask string `yaml:"ap_netmask"`
	APGateway string `yaml:"ap_gateway"`
	APSSID    string `yaml:"ap_ssid"`
}

// LoadDefaultsOverride reads path, if it exists, returning the zero value and
// no error if it does not.
func LoadDefaultsOverride(path string) (DefaultsOverride, error) {
	var out DefaultsOverride
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, errw.Wrap(err, "reading defaults override file")
	}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return out, errw.Wrap(err, "parsing defaults override file")
	}
	return out, nil
}

// parseIPOrDefault parses s as an IPv4 address. A blank s is replaced by def
// without a report; on parse failure it substitutes def and reports the
// substitution via logSub.
func parseIPOrDefault(s, def string, logSub func(field, bad, fallback string)) net.IP {
	if s == "" {
		s = def
	}
	ip := net.ParseIP(s).To4()
	if ip == nil {
		logSub("ip", s, def)
		return net.ParseIP(def).To4()
	}
	return ip
}

// DefaultConfig synthesizes the compiled-in default configuration (§4.6),
// applying override on top of the hard-coded fallbacks and logging every
// substitution made because of a parse failure or length violation.
// logSub may be nil.
func DefaultConfig(override DefaultsOverride, logSub func(field, bad, fallback string)) WifiConfig {
	if logSub == nil {
		logSub = func(string, string, string) {}
	}

	ssid := override.APSSID
	if ssid == "" {
		ssid = DefaultAPSSID
	}
	if len(ssid) < 1 || len(ssid) > 32 {
		logSub("ap_ssid", ssid, DefaultAPSSID)
		ssid = DefaultAPSSID
	}

	ip := parseIPOrDefault(override.APIP, DefaultAPIP, logSub)
	mask := parseIPOrDefault(override.APNetmask, DefaultAPNetmask, logSub)
	gw := parseIPOrDefault(override.APGateway, DefaultAPGateway, logSub)

	return WifiConfig{
		IsDefault: true,
		Mode:      radio.ModeAPSTA,
		AP: AccessPointParams{
			SSID:       ssid,
			Passphrase: DefaultAPPassphrase,
			Channel:    1,
			Auth:       radio.AuthOpen,
			MaxClients: 3,
		},
		APIP: IPv4Info{
			IP:      ip,
			Netmask: mask,
			Gateway: gw,
		},
	}
}
