// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc

package blescan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const defaultAdapter = "hci0"

// ErrRadioUnavailable reports that the scanning hardware or the BlueZ stack
// could not be reached. It is fatal to the invocation, never retried.
var ErrRadioUnavailable = errors.New("blescan: bluetooth radio unavailable")

// Adapter is the process-wide handle to the BlueZ scanning subsystem. Only
// one scan may be active on an Adapter at a time.
type Adapter struct {
	id      string
	bus     *dbus.Conn
	bluez   dbus.BusObject // object at /
	adapter dbus.BusObject // object at /org/bluez/hciX
	address string

	mu       sync.Mutex
	scanning bool
}

type adapterOptions struct {
	dbusAddress string
	adapterID   string
}

type AdapterOption interface {
	apply(*adapterOptions)
}

type adapterOptionFunc func(*adapterOptions)

func (f adapterOptionFunc) apply(o *adapterOptions) {
	f(o)
}

// WithAdapterID selects the BlueZ adapter to use, "hci0" by default.
func WithAdapterID(id string) AdapterOption {
	return adapterOptionFunc(func(o *adapterOptions) {
		o.adapterID = id
	})
}

// WithDBusAddress connects to the given D-Bus address instead of the system
// bus. Mostly useful for testing against a private bus.
func WithDBusAddress(address string) AdapterOption {
	return adapterOptionFunc(func(o *adapterOptions) {
		o.dbusAddress = address
	})
}

func NewAdapter(options ...AdapterOption) (*Adapter, error) {
	opts := adapterOptions{
		adapterID: defaultAdapter,
	}

	for _, o := range options {
		o.apply(&opts)
	}

	var err error
	var bus *dbus.Conn

	if opts.dbusAddress == "" {
		bus, err = dbus.ConnectSystemBus()
	} else {
		bus, err = dbus.Connect(opts.dbusAddress, dbus.WithAuth(dbus.AuthAnonymous()))
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRadioUnavailable, err)
	}

	a := &Adapter{
		id: opts.adapterID,
	}

	a.bus = bus
	a.bluez = a.bus.Object("org.bluez", dbus.ObjectPath("/"))
	a.adapter = a.bus.Object("org.bluez", dbus.ObjectPath("/org/bluez/"+a.id))
	addr, err := a.adapter.GetProperty("org.bluez.Adapter1.Address")
	if err != nil {
		if err, ok := err.(dbus.Error); ok && err.Name == "org.freedesktop.DBus.Error.UnknownObject" {
			return nil, fmt.Errorf("%w: adapter %s does not exist", ErrRadioUnavailable, a.adapter.Path())
		}
		return nil, fmt.Errorf("%w: could not activate BlueZ adapter: %v", ErrRadioUnavailable, err)
	}

	if err := addr.Store(&a.address); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Adapter) Close() error {
	return a.bus.Close()
}

// Address returns the MAC address of the local adapter.
func (a *Adapter) Address() (MACAddress, error) {
	if a.address == "" {
		return MACAddress{}, errors.New("blescan: adapter not enabled")
	}
	mac, err := ParseMAC(a.address)
	if err != nil {
		return MACAddress{}, err
	}
	return MACAddress{MAC: mac}, nil
}

// managedObjects fetches the full BlueZ object tree. Shared by scanning and
// GATT discovery.
func (a *Adapter) managedObjects(ctx context.Context) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var list map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := a.bluez.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&list); err != nil {
		return nil, err
	}
	return list, nil
}
