package hardware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Scanner is the single BLE central. Scan blocks until ctx is cancelled,
// calling fn from its own goroutine for every advertisement seen.
type Scanner interface {
	Scan(ctx context.Context, fn func(Advertisement)) error
}

const (
	bluezService      = "org.bluez"
	adapterIface      = "org.bluez.Adapter1"
	deviceIface       = "org.bluez.Device1"
	objectManager     = "org.freedesktop.DBus.ObjectManager"
	propertiesIface   = "org.freedesktop.DBus.Properties"
	interfacesAdded   = objectManager + ".InterfacesAdded"
	propertiesChanged = propertiesIface + ".PropertiesChanged"
)

// ErrNoAdapter is returned when BlueZ exposes no usable adapter.
var ErrNoAdapter = errors.New("hardware: no bluetooth adapter")

// BlueZScanner runs LE discovery on a BlueZ adapter over the system bus
// and turns Device1 object updates into advertisements.
type BlueZScanner struct {
	// Adapter is the adapter name ("hci0"). Empty picks the first one.
	Adapter string
	Logger  Logger
}

// Scan implements Scanner.
func (s *BlueZScanner) Scan(ctx context.Context, fn func(Advertisement)) error {
	logger := s.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("hardware: connecting to system bus: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Best-effort cleanup

	adapter, err := s.findAdapter(conn)
	if err != nil {
		return err
	}
	obj := conn.Object(bluezService, adapter)

	filter := map[string]dbus.Variant{
		"Transport":     dbus.MakeVariant("le"),
		"DuplicateData": dbus.MakeVariant(true),
	}
	if err := obj.CallWithContext(ctx, adapterIface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		return fmt.Errorf("hardware: setting discovery filter: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(objectManager),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return fmt.Errorf("hardware: matching InterfacesAdded: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, deviceIface),
	); err != nil {
		return fmt.Errorf("hardware: matching PropertiesChanged: %w", err)
	}

	signals := make(chan *dbus.Signal, 64)
	conn.Signal(signals)

	if err := obj.CallWithContext(ctx, adapterIface+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("hardware: starting discovery: %w", err)
	}
	logger.Info("ble discovery started", "adapter", adapter)
	defer func() {
		//nolint:errcheck // Adapter may already be gone
		obj.Call(adapterIface+".StopDiscovery", 0)
	}()

	// Device1 property updates only carry changed fields; keep the last
	// known view of each device so every advertisement is complete.
	devices := make(map[dbus.ObjectPath]*Advertisement)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return errors.New("hardware: system bus closed")
			}
			if adv, ok := handleSignal(devices, sig); ok {
				fn(adv)
			}
		}
	}
}

func (s *BlueZScanner) findAdapter(conn *dbus.Conn) (dbus.ObjectPath, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := conn.Object(bluezService, "/")
	if err := root.Call(objectManager+".GetManagedObjects", 0).Store(&objects); err != nil {
		return "", fmt.Errorf("hardware: listing bluez objects: %w", err)
	}
	for path, ifaces := range objects {
		if _, ok := ifaces[adapterIface]; !ok {
			continue
		}
		if s.Adapter == "" || strings.HasSuffix(string(path), "/"+s.Adapter) {
			return path, nil
		}
	}
	return "", ErrNoAdapter
}

// handleSignal folds one BlueZ signal into devices and returns the
// resulting advertisement when the signal described a device.
func handleSignal(devices map[dbus.ObjectPath]*Advertisement, sig *dbus.Signal) (Advertisement, bool) {
	switch sig.Name {
	case interfacesAdded:
		if len(sig.Body) < 2 {
			return Advertisement{}, false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return Advertisement{}, false
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return Advertisement{}, false
		}
		props, ok := ifaces[deviceIface]
		if !ok {
			return Advertisement{}, false
		}
		adv := &Advertisement{}
		applyDeviceProps(adv, props)
		devices[path] = adv
		return adv.clone(), adv.Address != ""

	case propertiesChanged:
		if len(sig.Body) < 2 {
			return Advertisement{}, false
		}
		if iface, _ := sig.Body[0].(string); iface != deviceIface {
			return Advertisement{}, false
		}
		props, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return Advertisement{}, false
		}
		adv, known := devices[sig.Path]
		if !known {
			adv = &Advertisement{}
			devices[sig.Path] = adv
		}
		applyDeviceProps(adv, props)
		return adv.clone(), adv.Address != ""
	}
	return Advertisement{}, false
}

func applyDeviceProps(adv *Advertisement, props map[string]dbus.Variant) {
	if v, ok := props["Address"].Value().(string); ok {
		adv.Address = v
	}
	if v, ok := props["Name"].Value().(string); ok {
		adv.Name = v
	} else if v, ok := props["Alias"].Value().(string); ok && adv.Name == "" {
		adv.Name = v
	}
	if v, ok := props["RSSI"].Value().(int16); ok {
		adv.RSSI = v
	}
	if v, ok := props["UUIDs"].Value().([]string); ok {
		adv.UUIDs = v
	}
	if v, ok := props["ManufacturerData"].Value().(map[uint16]dbus.Variant); ok {
		adv.ManufacturerData = make(map[uint16][]byte, len(v))
		for id, data := range v {
			if b, ok := data.Value().([]byte); ok {
				adv.ManufacturerData[id] = b
			}
		}
	}
	if v, ok := props["ServiceData"].Value().(map[string]dbus.Variant); ok {
		adv.ServiceData = make(map[string][]byte, len(v))
		for id, data := range v {
			if b, ok := data.Value().([]byte); ok {
				adv.ServiceData[id] = b
			}
		}
	}
}
