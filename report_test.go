package blescan

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterByRSSIIsStrictlyGreaterThan(t *testing.T) {
	set := NewDeviceSet()
	set.Upsert(makeRecord("11:11:11:11:11:11", "strong", -60))
	set.Upsert(makeRecord("22:22:22:22:22:22", "boundary", -80))
	set.Upsert(makeRecord("33:33:33:33:33:33", "weak", -90))

	summaries := FilterByRSSI(set, -80)

	// A device exactly at the threshold is excluded.
	require.Len(t, summaries, 1)
	assert.Equal(t, "strong", summaries[0].Name)
	assert.Equal(t, int16(-60), summaries[0].RSSI)
}

func TestFilterByRSSITwoDevices(t *testing.T) {
	set := NewDeviceSet()
	set.Upsert(makeRecord("11:11:11:11:11:11", "near", -60))
	set.Upsert(makeRecord("22:22:22:22:22:22", "far", -90))

	summaries := FilterByRSSI(set, -80)

	require.Len(t, summaries, 1)
	assert.Equal(t, "11:11:11:11:11:11", summaries[0].Address)
}

func TestFilterByRSSIDoesNotMutateSet(t *testing.T) {
	set := NewDeviceSet()
	set.Upsert(makeRecord("11:11:11:11:11:11", "near", -60))
	set.Upsert(makeRecord("22:22:22:22:22:22", "far", -90))

	_ = FilterByRSSI(set, -80)

	assert.Equal(t, 2, set.Len())
	rec, ok := set.Get("22:22:22:22:22:22")
	require.True(t, ok)
	assert.Equal(t, "far", rec.LocalName)
}

func TestSummaryNameFallbackAndManufacturerIDs(t *testing.T) {
	rec := makeRecord("11:11:11:11:11:11", "", -40)
	rec.ManufacturerData = map[uint16][]byte{
		0x0075: {0x01},
		0x004C: {0x02, 0x03},
	}

	set := NewDeviceSet()
	set.Upsert(rec)

	summaries := FilterByRSSI(set, -80)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Unknown", summaries[0].Name)
	// IDs only, ascending; payloads are not part of the summary.
	assert.Equal(t, []uint16{0x004C, 0x0075}, summaries[0].ManufacturerIDs)
}

func TestRenderSummariesEmptyScanVsAllFilteredOut(t *testing.T) {
	var empty bytes.Buffer
	RenderSummaries(&empty, NewDeviceSet(), -80)
	assert.Equal(t, "No BLE devices found.\n", empty.String())

	set := NewDeviceSet()
	set.Upsert(makeRecord("11:11:11:11:11:11", "far", -95))

	var filtered bytes.Buffer
	RenderSummaries(&filtered, set, -80)
	assert.Equal(t, "No BLE devices found with RSSI > -80 dBm (found 1 total, all filtered out).\n", filtered.String())
}

func TestRenderSummariesIsIdempotent(t *testing.T) {
	set := NewDeviceSet()
	rec := makeRecord("11:11:11:11:11:11", "sensor", -58)
	rec.ServiceUUIDs = []UUID{New16BitUUID(0x180F)}
	rec.ManufacturerData = map[uint16][]byte{0x004C: {0x10}, 0x0201: {0x20}}
	set.Upsert(rec)

	var first, second bytes.Buffer
	RenderSummaries(&first, set, -80)
	RenderSummaries(&second, set, -80)

	require.NotEmpty(t, first.String())
	assert.Equal(t, first.String(), second.String())
	assert.Contains(t, first.String(), "Name: sensor")
	assert.Contains(t, first.String(), "RSSI: -58 dBm")
	assert.Contains(t, first.String(), "Manufacturer: ID:76, ID:513")
}
