package blescan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

var errScanning = errors.New("blescan: a scan is already in progress")

// Address contains a Bluetooth MAC address.
type Address struct {
	MACAddress
}

// MACAddress contains a Bluetooth address which is a MAC address.
type MACAddress struct {
	// MAC address of the Bluetooth device.
	MAC

	isRandom bool
}

// IsRandom if the address is randomly created.
func (mac MACAddress) IsRandom() bool {
	return mac.isRandom
}

// SetRandom if is a random address.
func (mac *MACAddress) SetRandom(val bool) {
	mac.isRandom = val
}

// Set the address
func (mac *MACAddress) Set(val string) {
	m, err := ParseMAC(val)
	if err != nil {
		return
	}

	mac.MAC = m
}

// ScanResult is one received advertisement snapshot. It is passed to the
// callback of the Scan method; every field is copied out of the D-Bus
// message and safe to retain.
type ScanResult struct {
	// Bluetooth address of the scanned device.
	Address Address

	// Signal strength of the advertisement packet, in dBm.
	RSSI int16

	// Advertised transmit power, if the device broadcasts one.
	TxPower *int16

	// LocalName is the (complete or shortened) local name of the device.
	// Many devices do not broadcast one.
	LocalName string

	// ServiceUUIDs broadcast as part of the advertisement packet.
	ServiceUUIDs []UUID

	// ManufacturerData maps company IDs to their raw payloads.
	ManufacturerData map[uint16][]byte

	// ServiceData maps service UUIDs to their raw payloads.
	ServiceData map[UUID][]byte
}

// Scan runs device discovery until ctx is done, invoking callback for every
// received advertisement. Repeated advertisements from the same device are
// reported again so callers always see the latest snapshot. The discovery
// session and all signal subscriptions are torn down before Scan returns.
func (a *Adapter) Scan(ctx context.Context, callback func(*Adapter, ScanResult)) error {
	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return errScanning
	}

	a.scanning = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.scanning = false
		a.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Clearing the filter appears to be necessary to receive any BLE
	// discovery results at all on a subsequent scan.
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.SetDiscoveryFilter", 0)
	}()

	err := a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.SetDiscoveryFilter", 0, map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": true,
	}).Err
	if err != nil {
		return fmt.Errorf("failed to set bluetooth discovery filters %w", err)
	}

	// There's a small race when signals may be dropped by us as we do more
	// setup, so use a buffered channel. If we don't then we miss some
	// devices.
	signal := make(chan *dbus.Signal, 1024)
	a.bus.Signal(signal)
	defer a.bus.RemoveSignal(signal)

	propertiesChangedMatchOptions := []dbus.MatchOption{dbus.WithMatchInterface("org.freedesktop.DBus.Properties")}
	if err := a.bus.AddMatchSignalContext(ctx, propertiesChangedMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = a.bus.RemoveMatchSignal(propertiesChangedMatchOptions...)
	}()

	newObjectMatchOptions := []dbus.MatchOption{dbus.WithMatchInterface("org.freedesktop.DBus.ObjectManager")}
	if err := a.bus.AddMatchSignalContext(ctx, newObjectMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = a.bus.RemoveMatchSignal(newObjectMatchOptions...)
	}()

	// Instruct BlueZ to start discovering.
	if err := a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.StartDiscovery", 0).Err; err != nil {
		var dbusError dbus.Error
		if errors.As(err, &dbusError) {
			if dbusError.Name == "org.bluez.Error.InProgress" || dbusError.Error() == "Operation already in progress" {
				err = nil
			}
		}

		if err != nil {
			return fmt.Errorf("failed to start bluetooth discovery %w", err)
		}
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		_ = a.adapter.CallWithContext(ctx, "org.bluez.Adapter1.StopDiscovery", 0).Err
	}()

	// Prime the property cache with the devices BlueZ already knows about,
	// so PropertiesChanged deltas can be merged into full snapshots.
	deviceList, err := a.managedObjects(ctx)
	if err != nil {
		return err
	}

	devices := make(map[dbus.ObjectPath]map[string]dbus.Variant)
	for path, v := range deviceList {
		device, ok := v["org.bluez.Device1"]
		if !ok {
			continue // not a device
		}
		if !strings.HasPrefix(string(path), string(a.adapter.Path())) {
			continue // not part of our adapter
		}

		devices[path] = device
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig, ok := <-signal:
			if !ok {
				return nil
			}
			// This channel receives anything that we watch for, so we'll have
			// to check for signals that are relevant to us.
			switch sig.Name {
			case "org.freedesktop.DBus.ObjectManager.InterfacesAdded":
				objectPath := sig.Body[0].(dbus.ObjectPath)
				interfaces := sig.Body[1].(map[string]map[string]dbus.Variant)

				rawprops, ok := interfaces["org.bluez.Device1"]
				if !ok {
					continue
				}

				devices[objectPath] = rawprops

				callback(a, makeScanResult(rawprops))
			case "org.freedesktop.DBus.Properties.PropertiesChanged":
				interfaceName := sig.Body[0].(string)

				if interfaceName != "org.bluez.Device1" {
					continue
				}
				changes := sig.Body[1].(map[string]dbus.Variant)
				device, ok := devices[sig.Path]
				if !ok {
					// This shouldn't happen, but protect against it just in
					// case.
					continue
				}

				// RSSI-only deltas are still reported: the latest signal
				// strength is what the collector keeps.
				for k, v := range changes {
					device[k] = v
				}
				callback(a, makeScanResult(device))
			}
		}
	}
}

// IsScanning reports whether a discovery session is active on this adapter.
func (a *Adapter) IsScanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.scanning
}

// makeScanResult creates a ScanResult from a raw DBus device.
func makeScanResult(props map[string]dbus.Variant) ScanResult {
	// Assume the Address property is well-formed.
	addr, _ := ParseMAC(props["Address"].Value().(string))

	var serviceUUIDs []UUID
	if uuids, ok := props["UUIDs"].Value().([]string); ok {
		for _, uuid := range uuids {
			parsedUUID, err := ParseUUID(uuid)
			if err != nil {
				continue
			}
			serviceUUIDs = append(serviceUUIDs, parsedUUID)
		}
	}

	a := Address{MACAddress{MAC: addr}}
	addressType, _ := props["AddressType"].Value().(string)
	a.SetRandom(addressType == "random")

	var manufacturerData map[uint16][]byte
	if mdata, ok := props["ManufacturerData"].Value().(map[uint16]dbus.Variant); ok {
		manufacturerData = make(map[uint16][]byte, len(mdata))
		for k, v := range mdata {
			if b, ok := v.Value().([]byte); ok {
				manufacturerData[k] = b
			}
		}
	}

	// Get optional properties.
	localName, _ := props["Name"].Value().(string)
	rssi, _ := props["RSSI"].Value().(int16)

	var txPower *int16
	if tx, ok := props["TxPower"].Value().(int16); ok {
		txPower = &tx
	}

	var serviceData map[UUID][]byte
	if sdata, ok := props["ServiceData"].Value().(map[string]dbus.Variant); ok {
		serviceData = make(map[UUID][]byte, len(sdata))
		for k, v := range sdata {
			uuid, err := ParseUUID(k)
			if err != nil {
				continue
			}
			if b, ok := v.Value().([]byte); ok {
				serviceData[uuid] = b
			}
		}
	}

	return ScanResult{
		Address:          a,
		RSSI:             rssi,
		TxPower:          txPower,
		LocalName:        localName,
		ServiceUUIDs:     serviceUUIDs,
		ManufacturerData: manufacturerData,
		ServiceData:      serviceData,
	}
}

// Device is a connection to a remote peripheral.
type Device struct {
	Address Address        // the MAC address of the device
	device  dbus.BusObject // bluez device interface
	adapter *Adapter       // the adapter that was used to form this device connection
}

// NewDevice returns a handle to the peripheral with the given address. No
// I/O happens until Connect.
func (a *Adapter) NewDevice(address Address) *Device {
	devicePath := dbus.ObjectPath(string(a.adapter.Path()) + "/dev_" + strings.Replace(address.MAC.String(), ":", "_", -1))
	device := Device{
		Address: address,
		device:  a.bus.Object("org.bluez", devicePath),
		adapter: a,
	}

	return &device
}

// IsConnected reports the Connected property of the peripheral.
func (d *Device) IsConnected(ctx context.Context) (bool, error) {
	connected, err := d.device.GetProperty("org.bluez.Device1.Connected")
	if err != nil {
		// usually this means device needs to be discovered.
		return false, err
	}

	return connected.Value().(bool), nil
}

// Connect establishes a connection to the peripheral, waiting for the
// Connected property to confirm it. Bound by ctx.
func (d *Device) Connect(ctx context.Context) error {
	// Already start watching for property changes. We do this before reading
	// the Connected property below to avoid a race condition: if the device
	// were connected between the two calls the signal wouldn't be picked up.
	signal := make(chan *dbus.Signal, 4)
	defer close(signal)

	d.adapter.bus.Signal(signal)
	defer d.adapter.bus.RemoveSignal(signal)

	propertiesChangedMatchOptions := []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchObjectPath(d.device.Path()),
		dbus.WithMatchArg(0, "org.bluez.Device1"),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := d.adapter.bus.AddMatchSignalContext(ctx, propertiesChangedMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = d.adapter.bus.RemoveMatchSignal(propertiesChangedMatchOptions...)
	}()

	// Read whether this device is already connected.
	connected, err := d.device.GetProperty("org.bluez.Device1.Connected")
	if err != nil {
		// usually this means device needs to be discovered.
		return err
	}

	// Connect to the device, if not already connected.
	if connected.Value().(bool) {
		return nil
	}

	err = d.device.CallWithContext(ctx, "org.bluez.Device1.Connect", 0).Err
	if err != nil {
		var dbusError dbus.Error
		if errors.As(err, &dbusError) {
			if dbusError.Name == "org.bluez.Error.InProgress" || dbusError.Error() == "Operation already in progress" {
				err = nil
			}
		}

		if err != nil {
			return fmt.Errorf("blescan: failed to connect: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signal:
			if !ok {
				return errors.New("did not receive connected signal")
			}

			changes := sig.Body[1].(map[string]dbus.Variant)
			if connected, ok := changes["Connected"].Value().(bool); ok && connected {
				return nil
			}
		}
	}
}

// Disconnect closes the connection to the peripheral and waits for BlueZ to
// confirm it.
func (d *Device) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*20)
	defer cancel()

	// Already start watching for property changes. We do this before the
	// Disconnect call below to avoid a race condition: if the device were
	// disconnected between the two calls the signal wouldn't be picked up.
	signal := make(chan *dbus.Signal, 4)
	defer close(signal)

	d.adapter.bus.Signal(signal)
	defer d.adapter.bus.RemoveSignal(signal)

	propertiesChangedMatchOptions := []dbus.MatchOption{dbus.WithMatchInterface("org.freedesktop.DBus.Properties")}
	if err := d.adapter.bus.AddMatchSignalContext(ctx, propertiesChangedMatchOptions...); err != nil {
		return err
	}
	defer func() {
		_ = d.adapter.bus.RemoveMatchSignal(propertiesChangedMatchOptions...)
	}()

	if err := d.device.CallWithContext(ctx, "org.bluez.Device1.Disconnect", 0).Err; err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signal:
			if !ok {
				return errors.New("did not receive disconnect signal")
			}
			switch sig.Name {
			case "org.freedesktop.DBus.Properties.PropertiesChanged":
				interfaceName := sig.Body[0].(string)
				if interfaceName != "org.bluez.Device1" {
					continue
				}
				if sig.Path != d.device.Path() {
					continue
				}
				changes := sig.Body[1].(map[string]dbus.Variant)
				if connected, ok := changes["Connected"].Value().(bool); ok && !connected {
					return nil
				}
			}
		}
	}
}
