package blescan

import (
	"fmt"
	"strings"
)

// MAC is a Bluetooth hardware address in display order, i.e. the same order
// as in the string form "AA:BB:CC:DD:EE:FF".
type MAC [6]byte

// ParseMAC parses a colon-separated Bluetooth address. Hex digits may be in
// either case; a '-' separator is accepted as well since some platforms emit
// it.
func ParseMAC(s string) (MAC, error) {
	var mac MAC

	parts := strings.Split(strings.ReplaceAll(s, "-", ":"), ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("blescan: invalid MAC address %q", s)
	}

	for i, part := range parts {
		if len(part) != 2 {
			return mac, fmt.Errorf("blescan: invalid MAC address %q", s)
		}
		hi := hexNibble(part[0])
		lo := hexNibble(part[1])
		if hi < 0 || lo < 0 {
			return mac, fmt.Errorf("blescan: invalid MAC address %q", s)
		}
		mac[i] = byte(hi<<4 | lo)
	}

	return mac, nil
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

// String returns the canonical upper-case form of the address.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// canonicalAddress normalizes an address string for use as a map key and for
// comparisons. Different platforms emit addresses in mixed case.
func canonicalAddress(s string) string {
	return strings.ToUpper(s)
}
