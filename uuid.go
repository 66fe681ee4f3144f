package blescan

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth base UUID. 16-bit and 32-bit assigned numbers
// are shorthand for 0000xxxx-0000-1000-8000-00805f9b34fb.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// UUID identifies a service, characteristic or descriptor. It is comparable
// and usable as a map key.
type UUID struct {
	u uuid.UUID
}

// New16BitUUID expands a 16-bit assigned number over the Bluetooth base UUID.
func New16BitUUID(n uint16) UUID {
	return New32BitUUID(uint32(n))
}

// New32BitUUID expands a 32-bit assigned number over the Bluetooth base UUID.
func New32BitUUID(n uint32) UUID {
	u := baseUUID
	binary.BigEndian.PutUint32(u[0:4], n)
	return UUID{u: u}
}

// ParseUUID parses a UUID in full 128-bit form or in the 4- or 8-digit
// short form used for assigned numbers.
func ParseUUID(s string) (UUID, error) {
	switch len(s) {
	case 4, 8:
		n, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return UUID{}, fmt.Errorf("blescan: invalid UUID %q: %w", s, err)
		}
		return New32BitUUID(uint32(n)), nil
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("blescan: invalid UUID %q: %w", s, err)
	}
	return UUID{u: u}, nil
}

// Short returns the 16-bit assigned number when the UUID is a base-UUID
// expansion of one.
func (u UUID) Short() (uint16, bool) {
	v := u.u
	v[0], v[1], v[2], v[3] = 0, 0, 0, 0
	if v != baseUUID {
		return 0, false
	}
	if u.u[0] != 0 || u.u[1] != 0 {
		return 0, false
	}
	return binary.BigEndian.Uint16(u.u[2:4]), true
}

// String returns the canonical lower-case 128-bit form.
func (u UUID) String() string {
	return u.u.String()
}
