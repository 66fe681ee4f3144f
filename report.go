package blescan

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// DeviceSummary is the reporting projection of an advertisement record.
type DeviceSummary struct {
	// Name is the advertised local name, or "Unknown" when absent.
	Name    string
	Address string
	RSSI    int16

	// ServiceUUIDs advertised by the device, if any.
	ServiceUUIDs []UUID

	// ManufacturerIDs are the company IDs present in the advertisement,
	// ascending. Payloads are not included.
	ManufacturerIDs []uint16
}

// FilterByRSSI returns summaries for the devices whose signal strength is
// strictly greater than thresholdDbm, in the set's insertion order. A device
// exactly at the threshold is excluded. The set is not modified.
func FilterByRSSI(set *DeviceSet, thresholdDbm int) []DeviceSummary {
	summaries := []DeviceSummary{}
	for _, rec := range set.All() {
		if int(rec.RSSI) > thresholdDbm {
			summaries = append(summaries, summarize(rec))
		}
	}
	return summaries
}

func summarize(rec AdvertisementRecord) DeviceSummary {
	name := rec.LocalName
	if name == "" {
		name = "Unknown"
	}

	var ids []uint16
	for id := range rec.ManufacturerData {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return DeviceSummary{
		Name:            name,
		Address:         rec.Address.String(),
		RSSI:            rec.RSSI,
		ServiceUUIDs:    rec.ServiceUUIDs,
		ManufacturerIDs: ids,
	}
}

// RenderSummaries writes the scan report for the given set and threshold.
// An empty scan and a scan where every device was filtered out produce
// distinct messages.
func RenderSummaries(w io.Writer, set *DeviceSet, thresholdDbm int) {
	if set.Len() == 0 {
		fmt.Fprintln(w, "No BLE devices found.")
		return
	}

	summaries := FilterByRSSI(set, thresholdDbm)
	if len(summaries) == 0 {
		fmt.Fprintf(w, "No BLE devices found with RSSI > %d dBm (found %d total, all filtered out).\n", thresholdDbm, set.Len())
		return
	}

	fmt.Fprintf(w, "\nFound %d device(s):\n", len(summaries))
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, s := range summaries {
		fmt.Fprintf(w, "Name: %s\n", s.Name)
		fmt.Fprintf(w, "Address: %s\n", s.Address)
		fmt.Fprintf(w, "RSSI: %d dBm\n", s.RSSI)

		if len(s.ServiceUUIDs) > 0 {
			fmt.Fprintf(w, "Services: %s\n", joinUUIDs(s.ServiceUUIDs))
		}

		if len(s.ManufacturerIDs) > 0 {
			ids := make([]string, 0, len(s.ManufacturerIDs))
			for _, id := range s.ManufacturerIDs {
				ids = append(ids, fmt.Sprintf("ID:%d", id))
			}
			fmt.Fprintf(w, "Manufacturer: %s\n", strings.Join(ids, ", "))
		}

		fmt.Fprintln(w, strings.Repeat("-", 40))
	}
	fmt.Fprintln(w, "Scan complete.")
}

// RenderAdvertisement writes the detailed advertisement report for a single
// located device.
func RenderAdvertisement(w io.Writer, rec AdvertisementRecord) {
	fmt.Fprintln(w, "\n=== BASIC DEVICE INFORMATION ===")
	name := rec.LocalName
	if name == "" {
		name = "Unknown"
	}
	fmt.Fprintf(w, "Name: %s\n", name)
	fmt.Fprintf(w, "Address: %s\n", rec.Address.String())

	fmt.Fprintln(w, "\n=== ADVERTISEMENT DATA ===")
	fmt.Fprintf(w, "RSSI: %d dBm\n", rec.RSSI)
	if rec.LocalName != "" {
		fmt.Fprintf(w, "Local Name: %s\n", rec.LocalName)
	} else {
		fmt.Fprintln(w, "Local Name: Not provided")
	}
	if rec.TxPower != nil {
		fmt.Fprintf(w, "TX Power: %d\n", *rec.TxPower)
	} else {
		fmt.Fprintln(w, "TX Power: None")
	}
	if len(rec.ServiceUUIDs) > 0 {
		fmt.Fprintf(w, "Service UUIDs: %s\n", joinUUIDs(rec.ServiceUUIDs))
	} else {
		fmt.Fprintln(w, "Service UUIDs: None")
	}

	if len(rec.ManufacturerData) > 0 {
		fmt.Fprintln(w, "Manufacturer Data:")
		ids := make([]uint16, 0, len(rec.ManufacturerData))
		for id := range rec.ManufacturerData {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Fprintf(w, "  Company ID %d: %x\n", id, rec.ManufacturerData[id])
		}
	} else {
		fmt.Fprintln(w, "Manufacturer Data: None")
	}

	if len(rec.ServiceData) > 0 {
		fmt.Fprintln(w, "Service Data:")
		uuids := make([]string, 0, len(rec.ServiceData))
		byUUID := make(map[string][]byte, len(rec.ServiceData))
		for u, b := range rec.ServiceData {
			uuids = append(uuids, u.String())
			byUUID[u.String()] = b
		}
		sort.Strings(uuids)
		for _, u := range uuids {
			fmt.Fprintf(w, "  Service %s: %x\n", u, byUUID[u])
		}
	} else {
		fmt.Fprintln(w, "Service Data: None")
	}
}

// RenderServiceTree writes the full service/characteristic/descriptor
// hierarchy of an introspected device.
func RenderServiceTree(w io.Writer, tree *ServiceTree) {
	for _, svc := range tree.Services {
		fmt.Fprintf(w, "\nService: %s\n", svc.UUID)
		fmt.Fprintf(w, "  Description: %s\n", svc.Description)

		for _, char := range svc.Characteristics {
			fmt.Fprintf(w, "  Characteristic: %s\n", char.UUID)
			fmt.Fprintf(w, "    Description: %s\n", char.Description)
			fmt.Fprintf(w, "    Properties: [%s]\n", strings.Join(char.Properties, ", "))

			for _, desc := range char.Descriptors {
				fmt.Fprintf(w, "    Descriptor: %s\n", desc.UUID)
				fmt.Fprintf(w, "      Description: %s\n", desc.Description)
			}
		}
	}
}

func joinUUIDs(uuids []UUID) string {
	parts := make([]string, 0, len(uuids))
	for _, u := range uuids {
		parts = append(parts, u.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
