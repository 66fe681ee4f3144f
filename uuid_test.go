package blescan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUUIDShortForm(t *testing.T) {
	short, err := ParseUUID("180f")
	require.NoError(t, err)

	full, err := ParseUUID("0000180f-0000-1000-8000-00805f9b34fb")
	require.NoError(t, err)

	assert.Equal(t, full, short)
	assert.Equal(t, "0000180f-0000-1000-8000-00805f9b34fb", short.String())

	n, ok := short.Short()
	require.True(t, ok)
	assert.Equal(t, uint16(0x180F), n)
}

func TestParseUUIDVendorHasNoShortForm(t *testing.T) {
	u, err := ParseUUID("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	require.NoError(t, err)

	_, ok := u.Short()
	assert.False(t, ok)
	assert.Empty(t, UUIDName(u))
}

func TestParseUUIDInvalid(t *testing.T) {
	_, err := ParseUUID("not-a-uuid")
	assert.Error(t, err)

	_, err = ParseUUID("zzzz")
	assert.Error(t, err)
}

func TestUUIDNameKnownAssignedNumbers(t *testing.T) {
	assert.Equal(t, "Battery Service", UUIDName(New16BitUUID(0x180F)))
	assert.Equal(t, "Battery Level", UUIDName(New16BitUUID(0x2A19)))
	assert.Equal(t, "Client Characteristic Configuration", UUIDName(New16BitUUID(0x2902)))
	assert.Empty(t, UUIDName(New16BitUUID(0xFFFF)))
}
