package wifi

import (
	"context"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	NetworkManagerService   = "org.freedesktop.NetworkManager"
	NetworkManagerPath      = "/org/freedesktop/NetworkManager"
	NetworkManagerInterface = "org.freedesktop.NetworkManager"

	DeviceInterface         = "org.freedesktop.NetworkManager.Device"
	WirelessInterface       = "org.freedesktop.NetworkManager.Device.Wireless"
	AccessPointInterface    = "org.freedesktop.NetworkManager.AccessPoint"
	DBusPropertiesInterface = "org.freedesktop.DBus.Properties"

	DefaultScanWait = 5 * time.Second
	scanPollStep    = 250 * time.Millisecond
)

// NMScanner scans for access points through NetworkManager on the system bus
type NMScanner struct {
	conn *dbus.Conn
	// Interface restricts scanning to one device, e.g. "wlan0"; empty scans every Wi-Fi device
	Interface string
	// ScanWait bounds how long to wait for a requested rescan to complete
	ScanWait time.Duration
	debug    bool
	logger   func(string, ...interface{})
}

// NewNMScanner connects to the system bus
func NewNMScanner(iface string, debug bool, logger func(string, ...interface{})) (*NMScanner, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to system bus")
	}

	if logger == nil {
		logger = func(string, ...interface{}) {}
	}

	return &NMScanner{
		conn:      conn,
		Interface: iface,
		ScanWait:  DefaultScanWait,
		debug:     debug,
		logger:    logger,
	}, nil
}

// Close closes the D-Bus connection
func (s *NMScanner) Close() error {
	return s.conn.Close()
}

// Scan requests a fresh scan on each Wi-Fi device and returns every visible access point
func (s *NMScanner) Scan(ctx context.Context) ([]AccessPoint, error) {
	devices, err := s.wifiDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, errors.New("no wifi device found")
	}

	var aps []AccessPoint
	for _, dev := range devices {
		s.requestScan(ctx, dev)

		paths, err := s.accessPoints(ctx, dev)
		if err != nil {
			return nil, err
		}

		for _, path := range paths {
			ap, err := s.accessPoint(ctx, path)
			if err != nil {
				// Access points can vanish between listing and reading
				s.log("Skipping %s: %v", path, err)
				continue
			}
			aps = append(aps, ap)
		}
	}

	s.log("Scan found %d access points", len(aps))
	return aps, nil
}

func (s *NMScanner) wifiDevices(ctx context.Context) ([]dbus.ObjectPath, error) {
	obj := s.conn.Object(NetworkManagerService, NetworkManagerPath)

	var devices []dbus.ObjectPath
	err := obj.CallWithContext(ctx, NetworkManagerInterface+".GetDevices", 0).Store(&devices)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}

	var wifi []dbus.ObjectPath
	for _, dev := range devices {
		props, err := s.getAll(ctx, dev, DeviceInterface)
		if err != nil {
			return nil, err
		}

		devType, _ := props["DeviceType"].Value().(uint32)
		if devType != NMDeviceTypeWifi {
			continue
		}
		if s.Interface != "" {
			name, _ := props["Interface"].Value().(string)
			if name != s.Interface {
				continue
			}
		}
		wifi = append(wifi, dev)
	}

	return wifi, nil
}

// requestScan asks for a rescan and waits for LastScan to move. NetworkManager rate
// limits scans, so a refused request falls back to the cached results.
func (s *NMScanner) requestScan(ctx context.Context, dev dbus.ObjectPath) {
	before, _ := s.lastScan(ctx, dev)

	obj := s.conn.Object(NetworkManagerService, dev)
	call := obj.CallWithContext(ctx, WirelessInterface+".RequestScan", 0, map[string]dbus.Variant{})
	if call.Err != nil {
		s.log("RequestScan on %s refused: %v", dev, call.Err)
		return
	}

	deadline := time.Now().Add(s.ScanWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(scanPollStep):
		}

		if now, err := s.lastScan(ctx, dev); err == nil && now != before {
			s.log("Scan on %s completed", dev)
			return
		}
	}
	s.log("Scan on %s did not complete within %v, using cached results", dev, s.ScanWait)
}

func (s *NMScanner) lastScan(ctx context.Context, dev dbus.ObjectPath) (int64, error) {
	obj := s.conn.Object(NetworkManagerService, dev)

	var value dbus.Variant
	err := obj.CallWithContext(ctx, DBusPropertiesInterface+".Get", 0, WirelessInterface, "LastScan").Store(&value)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get LastScan")
	}
	ts, _ := value.Value().(int64)
	return ts, nil
}

func (s *NMScanner) accessPoints(ctx context.Context, dev dbus.ObjectPath) ([]dbus.ObjectPath, error) {
	obj := s.conn.Object(NetworkManagerService, dev)

	var paths []dbus.ObjectPath
	err := obj.CallWithContext(ctx, WirelessInterface+".GetAllAccessPoints", 0).Store(&paths)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list access points on %s", dev)
	}
	return paths, nil
}

func (s *NMScanner) accessPoint(ctx context.Context, path dbus.ObjectPath) (AccessPoint, error) {
	props, err := s.getAll(ctx, path, AccessPointInterface)
	if err != nil {
		return AccessPoint{}, err
	}
	return accessPointFromProperties(props), nil
}

func (s *NMScanner) getAll(ctx context.Context, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error) {
	obj := s.conn.Object(NetworkManagerService, path)

	var props map[string]dbus.Variant
	err := obj.CallWithContext(ctx, DBusPropertiesInterface+".GetAll", 0, iface).Store(&props)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s properties of %s", iface, path)
	}
	return props, nil
}

func accessPointFromProperties(props map[string]dbus.Variant) AccessPoint {
	ssid, _ := props["Ssid"].Value().([]byte)
	bssid, _ := props["HwAddress"].Value().(string)
	strength, _ := props["Strength"].Value().(uint8)
	freq, _ := props["Frequency"].Value().(uint32)
	flags, _ := props["Flags"].Value().(uint32)
	wpaFlags, _ := props["WpaFlags"].Value().(uint32)
	rsnFlags, _ := props["RsnFlags"].Value().(uint32)

	return AccessPoint{
		Security: SecurityClass(flags, wpaFlags, rsnFlags),
		SSID:     string(ssid),
		RSSI:     RSSIFromStrength(strength),
		BSSID:    strings.ToLower(bssid),
		Channel:  ChannelForFrequency(freq),
	}
}

func (s *NMScanner) log(format string, args ...interface{}) {
	if s.debug {
		s.logger("[NM] "+format, args...)
	}
}
