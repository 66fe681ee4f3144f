package blescan

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// AdvertisementRecord is the latest-known broadcast snapshot for one device.
// It is overwritten in place whenever a newer advertisement arrives during a
// scan window; no history is kept.
type AdvertisementRecord struct {
	Address          Address
	LocalName        string
	RSSI             int16
	TxPower          *int16
	ServiceUUIDs     []UUID
	ManufacturerData map[uint16][]byte
	ServiceData      map[UUID][]byte
	LastSeen         time.Time
}

func newAdvertisementRecord(res ScanResult) AdvertisementRecord {
	return AdvertisementRecord{
		Address:          res.Address,
		LocalName:        res.LocalName,
		RSSI:             res.RSSI,
		TxPower:          res.TxPower,
		ServiceUUIDs:     res.ServiceUUIDs,
		ManufacturerData: res.ManufacturerData,
		ServiceData:      res.ServiceData,
		LastSeen:         time.Now(),
	}
}

// DeviceSet maps device addresses to their latest advertisement record. A
// device appears at most once; upserts replace the record wholesale but keep
// the original insertion position. Scoped to one scan operation.
type DeviceSet struct {
	records map[string]AdvertisementRecord
	order   []string
}

func NewDeviceSet() *DeviceSet {
	return &DeviceSet{
		records: make(map[string]AdvertisementRecord),
	}
}

// Upsert stores the record under its canonical address, replacing any
// previous record for the same device.
func (s *DeviceSet) Upsert(rec AdvertisementRecord) {
	key := canonicalAddress(rec.Address.String())
	if _, ok := s.records[key]; !ok {
		s.order = append(s.order, key)
	}
	s.records[key] = rec
}

// Get looks up the record for an address. The comparison is
// case-insensitive.
func (s *DeviceSet) Get(address string) (AdvertisementRecord, bool) {
	rec, ok := s.records[canonicalAddress(address)]
	return rec, ok
}

func (s *DeviceSet) Len() int {
	return len(s.records)
}

// Addresses returns the canonical addresses in insertion order.
func (s *DeviceSet) Addresses() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// All returns the records in insertion order.
func (s *DeviceSet) All() []AdvertisementRecord {
	out := make([]AdvertisementRecord, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	return out
}

// Collect scans for the given duration and folds the advertisement stream
// into a DeviceSet, last event wins. The scan and its subscriptions are torn
// down before Collect returns, whether or not any events arrived.
//
// If ctx is cancelled mid-scan the set collected so far is returned together
// with the context error, so callers can distinguish an interrupt from a
// completed window.
func (a *Adapter) Collect(ctx context.Context, duration time.Duration) (*DeviceSet, error) {
	if duration <= 0 {
		return nil, errors.New("blescan: scan duration must be positive")
	}

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	// The push-style scan callback becomes a bounded producer; a single
	// accumulator below owns the set, so no locking is needed.
	updates := make(chan AdvertisementRecord, 64)

	var g errgroup.Group
	g.Go(func() error {
		defer close(updates)

		err := a.Scan(scanCtx, func(_ *Adapter, res ScanResult) {
			select {
			case updates <- newAdvertisementRecord(res):
			case <-scanCtx.Done():
			}
		})
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The window elapsing (or the caller cancelling) is how every
			// scan ends.
			return nil
		}
		return err
	})

	set := accumulate(updates)

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return set, ctx.Err()
}

// accumulate drains the update stream into a fresh DeviceSet, applying
// events in arrival order.
func accumulate(updates <-chan AdvertisementRecord) *DeviceSet {
	set := NewDeviceSet()
	for rec := range updates {
		set.Upsert(rec)
	}
	return set
}
