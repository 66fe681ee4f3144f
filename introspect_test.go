package blescan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPeripheral struct {
	connectErr   error
	blockConnect bool // simulate a device that never completes the handshake
	servicesErr  error
	services     []gattService

	connected   bool
	disconnects int
}

func (p *stubPeripheral) Connect(ctx context.Context) error {
	if p.blockConnect {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	return nil
}

func (p *stubPeripheral) Connected(ctx context.Context) (bool, error) {
	return p.connected, nil
}

func (p *stubPeripheral) Disconnect() error {
	p.disconnects++
	p.connected = false
	return nil
}

func (p *stubPeripheral) Services(ctx context.Context) ([]gattService, error) {
	if p.servicesErr != nil {
		return nil, p.servicesErr
	}
	return p.services, nil
}

type stubService struct {
	uuid  UUID
	chars []gattCharacteristic
}

func (s *stubService) UUID() UUID { return s.uuid }

func (s *stubService) Characteristics(ctx context.Context) ([]gattCharacteristic, error) {
	return s.chars, nil
}

type stubCharacteristic struct {
	uuid  UUID
	flags []string
	descs []gattDescriptor
}

func (c *stubCharacteristic) UUID() UUID      { return c.uuid }
func (c *stubCharacteristic) Flags() []string { return c.flags }

func (c *stubCharacteristic) Descriptors(ctx context.Context) ([]gattDescriptor, error) {
	return c.descs, nil
}

type stubDescriptor struct {
	uuid UUID
}

func (d *stubDescriptor) UUID() UUID { return d.uuid }

func newTestWalker(peripherals map[string]*stubPeripheral) *Walker {
	return &Walker{
		connectTimeout: time.Second,
		log:            zerolog.Nop(),
		dial: func(address string) (peripheral, error) {
			p, ok := peripherals[canonicalAddress(address)]
			if !ok {
				return nil, errors.New("unknown device")
			}
			return p, nil
		},
	}
}

func batteryPeripheral() *stubPeripheral {
	return &stubPeripheral{
		services: []gattService{
			&stubService{
				uuid: New16BitUUID(0x180F),
				chars: []gattCharacteristic{
					&stubCharacteristic{
						uuid:  New16BitUUID(0x2A19),
						flags: []string{"read", "notify"},
						descs: []gattDescriptor{
							&stubDescriptor{uuid: New16BitUUID(0x2902)},
						},
					},
				},
			},
		},
	}
}

func TestIntrospectAcceptingDevice(t *testing.T) {
	p := batteryPeripheral()
	w := newTestWalker(map[string]*stubPeripheral{"AA:BB:CC:DD:EE:FF": p})

	tree, err := w.Introspect(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.NotNil(t, tree)

	require.Len(t, tree.Services, 1)
	svc := tree.Services[0]
	assert.Equal(t, "Battery Service", svc.Description)

	require.Len(t, svc.Characteristics, 1)
	char := svc.Characteristics[0]
	assert.Equal(t, "Battery Level", char.Description)
	assert.Equal(t, []string{"read", "notify"}, char.Properties)

	require.Len(t, char.Descriptors, 1)
	assert.Equal(t, "Client Characteristic Configuration", char.Descriptors[0].Description)

	// The session must be closed by the time Introspect returns.
	assert.Equal(t, 1, p.disconnects)
	assert.False(t, p.connected)
}

func TestIntrospectRefusedConnection(t *testing.T) {
	p := &stubPeripheral{connectErr: errors.New("le-connection-abort-by-local")}
	w := newTestWalker(map[string]*stubPeripheral{"AA:BB:CC:DD:EE:FF": p})

	tree, err := w.Introspect(context.Background(), "AA:BB:CC:DD:EE:FF")
	assert.Nil(t, tree)

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", connErr.Address)

	// Never connected, so nothing to disconnect.
	assert.Equal(t, 0, p.disconnects)
}

func TestIntrospectConnectTimeout(t *testing.T) {
	p := &stubPeripheral{blockConnect: true}
	w := newTestWalker(map[string]*stubPeripheral{"AA:BB:CC:DD:EE:FF": p})
	w.connectTimeout = 10 * time.Millisecond

	_, err := w.Introspect(context.Background(), "AA:BB:CC:DD:EE:FF")

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIntrospectEnumerationFailureStillDisconnects(t *testing.T) {
	p := &stubPeripheral{servicesErr: errors.New("att timeout")}
	w := newTestWalker(map[string]*stubPeripheral{"AA:BB:CC:DD:EE:FF": p})

	tree, err := w.Introspect(context.Background(), "AA:BB:CC:DD:EE:FF")
	assert.Nil(t, tree)

	var enumErr *EnumerationError
	require.ErrorAs(t, err, &enumErr)

	// The connection was open, so disconnection is unconditional.
	assert.Equal(t, 1, p.disconnects)
	assert.False(t, p.connected)
}

func TestIntrospectAllIsolatesPerDeviceFailures(t *testing.T) {
	refuser := &stubPeripheral{connectErr: errors.New("connection refused")}
	acceptor := batteryPeripheral()

	w := newTestWalker(map[string]*stubPeripheral{
		"11:11:11:11:11:11": refuser,
		"22:22:22:22:22:22": acceptor,
	})

	set := NewDeviceSet()
	set.Upsert(makeRecord("11:11:11:11:11:11", "refuser", -50))
	set.Upsert(makeRecord("22:22:22:22:22:22", "acceptor", -60))

	type visitResult struct {
		address string
		tree    *ServiceTree
		err     error
	}
	var visits []visitResult

	err := w.IntrospectAll(context.Background(), set, func(rec AdvertisementRecord, tree *ServiceTree, err error) {
		visits = append(visits, visitResult{rec.Address.String(), tree, err})
	})
	require.NoError(t, err)

	// Strictly sequential, insertion order, one visit per device.
	require.Len(t, visits, 2)
	assert.Equal(t, "11:11:11:11:11:11", visits[0].address)
	assert.Error(t, visits[0].err)
	assert.Nil(t, visits[0].tree)

	// The refusal did not abort the pass.
	assert.Equal(t, "22:22:22:22:22:22", visits[1].address)
	require.NoError(t, visits[1].err)
	require.NotNil(t, visits[1].tree)
	assert.Len(t, visits[1].tree.Services, 1)
	assert.Equal(t, 1, acceptor.disconnects)
}

func TestIntrospectAllStopsOnCancelledContext(t *testing.T) {
	w := newTestWalker(nil)

	set := NewDeviceSet()
	set.Upsert(makeRecord("11:11:11:11:11:11", "a", -50))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	visited := 0
	err := w.IntrospectAll(ctx, set, func(AdvertisementRecord, *ServiceTree, error) {
		visited++
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, visited)
}
