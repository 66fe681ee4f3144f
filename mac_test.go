package blescan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", mac.String())

	dashed, err := ParseMAC("AA-BB-CC-DD-EE-FF")
	require.NoError(t, err)
	assert.Equal(t, mac, dashed)
}

func TestParseMACInvalid(t *testing.T) {
	for _, s := range []string{"", "AA:BB:CC:DD:EE", "AA:BB:CC:DD:EE:FF:00", "GG:BB:CC:DD:EE:FF", "AAA:BB:CC:DD:EE:F"} {
		_, err := ParseMAC(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestCanonicalAddress(t *testing.T) {
	assert.Equal(t, canonicalAddress("aa:bb:cc:dd:ee:ff"), canonicalAddress("AA:BB:CC:DD:EE:FF"))
}
