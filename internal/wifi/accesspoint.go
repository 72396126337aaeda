package wifi

import (
	"context"
	"fmt"
	"strings"
)

// Security class codes in the ESP-AT +CWLAP encoding expected by the card
const (
	SecurityOpen       = 0
	SecurityWEP        = 1
	SecurityWPA        = 2
	SecurityWPA2       = 3
	SecurityEnterprise = 5
	SecurityWPA3PSK    = 6
)

// AccessPoint is one visible access point from a radio scan
type AccessPoint struct {
	Security int
	SSID     string
	RSSI     int
	BSSID    string
	Channel  int
}

// Scanner lists the currently visible access points
type Scanner interface {
	Scan(ctx context.Context) ([]AccessPoint, error)
}

// Line renders the access point as a +CWLAP record without the trailing newline
func (ap AccessPoint) Line() string {
	return fmt.Sprintf("+CWLAP:(%d,\"%s\",%d,\"%s\",%d)",
		ap.Security, ap.SSID, ap.RSSI, strings.ToLower(ap.BSSID), ap.Channel)
}

// Format renders access points one record per line, each newline terminated
func Format(aps []AccessPoint) string {
	var b strings.Builder
	for _, ap := range aps {
		b.WriteString(ap.Line())
		b.WriteByte('\n')
	}
	return b.String()
}

// ChannelForFrequency maps a centre frequency in MHz to its 802.11 channel number, 0 if unknown
func ChannelForFrequency(mhz uint32) int {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz <= 2472:
		return int(mhz-2407) / 5
	case mhz >= 5955 && mhz <= 7115:
		return int(mhz-5950) / 5
	case mhz >= 5000 && mhz <= 5900:
		return int(mhz-5000) / 5
	default:
		return 0
	}
}

// RSSIFromStrength converts a 0-100 signal quality percentage to an approximate dBm value
func RSSIFromStrength(strength uint8) int {
	if strength > 100 {
		strength = 100
	}
	return int(strength)/2 - 100
}
