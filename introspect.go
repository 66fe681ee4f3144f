package blescan

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ServiceTree is the structure snapshot of a connected peripheral: every
// service, characteristic and descriptor in the order the transport exposed
// them. It outlives the connection it was read over.
type ServiceTree struct {
	Address  string
	Services []ServiceDescription
}

// ServiceDescription describes one GATT service.
type ServiceDescription struct {
	UUID            UUID
	Description     string
	Characteristics []CharacteristicDescription
}

// CharacteristicDescription describes one GATT characteristic.
type CharacteristicDescription struct {
	UUID        UUID
	Description string

	// Properties are the supported operation flags as reported by the
	// transport, e.g. "read", "write", "notify".
	Properties []string

	Descriptors []DescriptorDescription
}

// DescriptorDescription describes one GATT descriptor.
type DescriptorDescription struct {
	UUID        UUID
	Description string
}

// ConnectError reports a failed connection attempt: timeout, refusal or
// protocol error. Expected and common; many peripherals advertise but reject
// connections. Recovered per device, never fatal to a bulk pass.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return "blescan: connect " + e.Address + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// EnumerationError reports a failure while walking the service hierarchy
// after a successful connect. The device was disconnected before it was
// returned.
type EnumerationError struct {
	Address string
	Err     error
}

func (e *EnumerationError) Error() string {
	return "blescan: enumerate " + e.Address + ": " + e.Err.Error()
}

func (e *EnumerationError) Unwrap() error {
	return e.Err
}

// The walker talks to peripherals through these narrow interfaces so the
// state machine can be exercised without a radio. The BlueZ implementations
// below adapt Device and its GATT discovery methods.

type peripheral interface {
	Connect(ctx context.Context) error
	Connected(ctx context.Context) (bool, error)
	Disconnect() error
	Services(ctx context.Context) ([]gattService, error)
}

type gattService interface {
	UUID() UUID
	Characteristics(ctx context.Context) ([]gattCharacteristic, error)
}

type gattCharacteristic interface {
	UUID() UUID
	Flags() []string
	Descriptors(ctx context.Context) ([]gattDescriptor, error)
}

type gattDescriptor interface {
	UUID() UUID
}

const defaultConnectTimeout = 10 * time.Second

// Walker connects to peripherals one at a time and reads out their service
// hierarchy. Connections are never pooled or reused.
type Walker struct {
	connectTimeout time.Duration
	log            zerolog.Logger
	dial           func(address string) (peripheral, error)
}

type WalkerOption interface {
	apply(*Walker)
}

type walkerOptionFunc func(*Walker)

func (f walkerOptionFunc) apply(w *Walker) {
	f(w)
}

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) WalkerOption {
	return walkerOptionFunc(func(w *Walker) {
		w.connectTimeout = d
	})
}

// WithLogger sets the diagnostics logger. Silent by default.
func WithLogger(log zerolog.Logger) WalkerOption {
	return walkerOptionFunc(func(w *Walker) {
		w.log = log
	})
}

// NewWalker returns a Walker backed by the adapter's BlueZ connection.
func NewWalker(a *Adapter, options ...WalkerOption) *Walker {
	w := &Walker{
		connectTimeout: defaultConnectTimeout,
		log:            zerolog.Nop(),
		dial: func(address string) (peripheral, error) {
			mac, err := ParseMAC(address)
			if err != nil {
				return nil, err
			}
			return &bluezPeripheral{dev: a.NewDevice(Address{MACAddress{MAC: mac}})}, nil
		},
	}

	for _, o := range options {
		o.apply(w)
	}

	return w
}

// Introspect connects to the device, walks its service hierarchy and
// disconnects. The per-device state machine is
// Connecting -> Connected -> Enumerating -> Disconnecting; any failure
// before Connected yields a *ConnectError, any failure after yields a
// *EnumerationError. Once the connection is open, disconnection is
// unconditional on every exit path.
func (w *Walker) Introspect(ctx context.Context, address string) (*ServiceTree, error) {
	p, err := w.dial(address)
	if err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}

	connectCtx, cancel := context.WithTimeout(ctx, w.connectTimeout)
	defer cancel()

	w.log.Debug().Str("address", address).Msg("connecting")
	if err := p.Connect(connectCtx); err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}

	defer func() {
		if err := p.Disconnect(); err != nil {
			w.log.Warn().Err(err).Str("address", address).Msg("disconnect failed")
		} else {
			w.log.Debug().Str("address", address).Msg("disconnected")
		}
	}()

	connected, err := p.Connected(ctx)
	if err != nil {
		return nil, &EnumerationError{Address: address, Err: err}
	}
	if !connected {
		return nil, &ConnectError{Address: address, Err: errors.New("connection not established")}
	}

	tree, err := w.walk(ctx, address, p)
	if err != nil {
		return nil, &EnumerationError{Address: address, Err: err}
	}

	w.log.Debug().Str("address", address).Int("services", len(tree.Services)).Msg("enumerated")
	return tree, nil
}

// walk accumulates the hierarchy in transport order, no reordering and no
// deduplication.
func (w *Walker) walk(ctx context.Context, address string, p peripheral) (*ServiceTree, error) {
	services, err := p.Services(ctx)
	if err != nil {
		return nil, err
	}

	tree := &ServiceTree{Address: canonicalAddress(address)}
	for _, svc := range services {
		sd := ServiceDescription{
			UUID:        svc.UUID(),
			Description: UUIDName(svc.UUID()),
		}

		chars, err := svc.Characteristics(ctx)
		if err != nil {
			return nil, err
		}
		for _, char := range chars {
			cd := CharacteristicDescription{
				UUID:        char.UUID(),
				Description: UUIDName(char.UUID()),
				Properties:  char.Flags(),
			}

			descs, err := char.Descriptors(ctx)
			if err != nil {
				return nil, err
			}
			for _, desc := range descs {
				cd.Descriptors = append(cd.Descriptors, DescriptorDescription{
					UUID:        desc.UUID(),
					Description: UUIDName(desc.UUID()),
				})
			}

			sd.Characteristics = append(sd.Characteristics, cd)
		}

		tree.Services = append(tree.Services, sd)
	}

	return tree, nil
}

// IntrospectAll runs the walker over every device in the set, strictly
// sequentially in insertion order. visit is called once per device with
// either the tree or the per-device error; a failed device never aborts the
// pass. Only context cancellation stops it early.
func (w *Walker) IntrospectAll(ctx context.Context, set *DeviceSet, visit func(rec AdvertisementRecord, tree *ServiceTree, err error)) error {
	for _, rec := range set.All() {
		if err := ctx.Err(); err != nil {
			return err
		}

		tree, err := w.Introspect(ctx, rec.Address.String())
		if err != nil {
			w.log.Debug().Err(err).Str("address", rec.Address.String()).Msg("device skipped")
		}
		visit(rec, tree, err)
	}
	return nil
}

// BlueZ-backed implementations of the walker interfaces.

type bluezPeripheral struct {
	dev *Device
}

func (p *bluezPeripheral) Connect(ctx context.Context) error {
	return p.dev.Connect(ctx)
}

func (p *bluezPeripheral) Connected(ctx context.Context) (bool, error) {
	return p.dev.IsConnected(ctx)
}

func (p *bluezPeripheral) Disconnect() error {
	return p.dev.Disconnect()
}

func (p *bluezPeripheral) Services(ctx context.Context) ([]gattService, error) {
	services, err := p.dev.DiscoverServices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]gattService, 0, len(services))
	for _, s := range services {
		out = append(out, &bluezService{svc: s})
	}
	return out, nil
}

type bluezService struct {
	svc *DeviceService
}

func (s *bluezService) UUID() UUID {
	return s.svc.UUID()
}

func (s *bluezService) Characteristics(ctx context.Context) ([]gattCharacteristic, error) {
	chars, err := s.svc.DiscoverCharacteristics(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]gattCharacteristic, 0, len(chars))
	for _, c := range chars {
		out = append(out, &bluezCharacteristic{char: c})
	}
	return out, nil
}

type bluezCharacteristic struct {
	char *DeviceCharacteristic
}

func (c *bluezCharacteristic) UUID() UUID {
	return c.char.UUID()
}

func (c *bluezCharacteristic) Flags() []string {
	return c.char.Flags()
}

func (c *bluezCharacteristic) Descriptors(ctx context.Context) ([]gattDescriptor, error) {
	descs, err := c.char.DiscoverDescriptors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]gattDescriptor, 0, len(descs))
	for _, d := range descs {
		out = append(out, d)
	}
	return out, nil
}
