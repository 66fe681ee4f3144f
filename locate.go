package blescan

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that a targeted device was not seen advertising during
// the scan window. This is a normal outcome, not a failure.
var ErrNotFound = errors.New("blescan: device not found")

// Locate scans for the given duration and returns the latest advertisement
// record for the device with the given address. The address comparison is
// case-insensitive.
func (a *Adapter) Locate(ctx context.Context, address string, duration time.Duration) (AdvertisementRecord, error) {
	set, err := a.Collect(ctx, duration)
	if err != nil {
		return AdvertisementRecord{}, err
	}

	rec, ok := set.Get(address)
	if !ok {
		return AdvertisementRecord{}, ErrNotFound
	}
	return rec, nil
}
