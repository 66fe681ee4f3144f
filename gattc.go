package blescan

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// DeviceService is a BLE service on a connected peripheral device.
type DeviceService struct {
	uuid    UUID
	adapter *Adapter
	path    string
}

// UUID returns the UUID for this DeviceService.
func (s *DeviceService) UUID() UUID {
	return s.uuid
}

// DiscoverServices enumerates every service exposed by the connected
// peripheral, in BlueZ object-path order.
//
// On Linux with BlueZ, this waits for the ServicesResolved property (if
// services haven't been resolved yet) and uses the cached service list.
func (d *Device) DiscoverServices(ctx context.Context) ([]*DeviceService, error) {
	ticker := time.NewTicker(time.Millisecond * 100)
	defer ticker.Stop()

RESOLVED:
	for {
		select {
		case <-ticker.C:
			resolved, err := d.device.GetProperty("org.bluez.Device1.ServicesResolved")
			if err != nil {
				return nil, err
			}
			if resolved.Value().(bool) {
				break RESOLVED
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	list, err := d.adapter.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	var services []*DeviceService
	for _, objectPath := range sortedObjectPaths(list) {
		if !strings.HasPrefix(objectPath, string(d.device.Path())+"/service") {
			continue
		}
		properties, ok := list[dbus.ObjectPath(objectPath)]["org.bluez.GattService1"]
		if !ok {
			continue
		}

		serviceUUID, err := ParseUUID(properties["UUID"].Value().(string))
		if err != nil {
			continue
		}

		services = append(services, &DeviceService{
			uuid:    serviceUUID,
			adapter: d.adapter,
			path:    objectPath,
		})
	}

	return services, nil
}

// DeviceCharacteristic is a BLE characteristic on a connected peripheral
// device.
type DeviceCharacteristic struct {
	uuid    UUID
	flags   []string
	adapter *Adapter
	path    string
}

// UUID returns the UUID for this DeviceCharacteristic.
func (c *DeviceCharacteristic) UUID() UUID {
	return c.uuid
}

// Flags returns the supported operations of the characteristic as reported
// by BlueZ, e.g. "read", "write", "notify". Presented as-is, not
// interpreted.
func (c *DeviceCharacteristic) Flags() []string {
	return c.flags
}

// DiscoverCharacteristics enumerates every characteristic of this service,
// in BlueZ object-path order.
func (s *DeviceService) DiscoverCharacteristics(ctx context.Context) ([]*DeviceCharacteristic, error) {
	list, err := s.adapter.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	var chars []*DeviceCharacteristic
	for _, objectPath := range sortedObjectPaths(list) {
		if !strings.HasPrefix(objectPath, s.path+"/char") {
			continue
		}
		properties, ok := list[dbus.ObjectPath(objectPath)]["org.bluez.GattCharacteristic1"]
		if !ok {
			continue
		}
		cuuid, err := ParseUUID(properties["UUID"].Value().(string))
		if err != nil {
			continue
		}
		flags, _ := properties["Flags"].Value().([]string)

		chars = append(chars, &DeviceCharacteristic{
			uuid:    cuuid,
			flags:   flags,
			adapter: s.adapter,
			path:    objectPath,
		})
	}

	return chars, nil
}

// DeviceDescriptor is a BLE descriptor on a characteristic of a connected
// peripheral device.
type DeviceDescriptor struct {
	uuid UUID
	path string
}

// UUID returns the UUID for this DeviceDescriptor.
func (d *DeviceDescriptor) UUID() UUID {
	return d.uuid
}

// DiscoverDescriptors enumerates every descriptor of this characteristic,
// in BlueZ object-path order.
func (c *DeviceCharacteristic) DiscoverDescriptors(ctx context.Context) ([]*DeviceDescriptor, error) {
	list, err := c.adapter.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	var descs []*DeviceDescriptor
	for _, objectPath := range sortedObjectPaths(list) {
		if !strings.HasPrefix(objectPath, c.path+"/desc") {
			continue
		}
		properties, ok := list[dbus.ObjectPath(objectPath)]["org.bluez.GattDescriptor1"]
		if !ok {
			continue
		}
		duuid, err := ParseUUID(properties["UUID"].Value().(string))
		if err != nil {
			continue
		}

		descs = append(descs, &DeviceDescriptor{
			uuid: duuid,
			path: objectPath,
		})
	}

	return descs, nil
}

// sortedObjectPaths orders a managed-object listing so discovery follows the
// stable BlueZ handle order (serviceNNNN/charNNNN/descNNNN).
func sortedObjectPaths(list map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []string {
	objects := make([]string, 0, len(list))
	for objectPath := range list {
		objects = append(objects, string(objectPath))
	}
	sort.Strings(objects)
	return objects
}
