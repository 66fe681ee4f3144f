package blescan

// Names for standard services, characteristics and descriptors, keyed by
// their 16-bit assigned numbers. Vendor UUIDs are not resolvable and report
// an empty name.
var assignedNames = map[uint16]string{
	// Services.
	0x1800: "Generic Access",
	0x1801: "Generic Attribute",
	0x1802: "Immediate Alert",
	0x1803: "Link Loss",
	0x1804: "Tx Power",
	0x1805: "Current Time Service",
	0x1809: "Health Thermometer",
	0x180A: "Device Information",
	0x180D: "Heart Rate",
	0x180F: "Battery Service",
	0x1812: "Human Interface Device",
	0x1816: "Cycling Speed and Cadence",
	0x181A: "Environmental Sensing",
	0x1826: "Fitness Machine",

	// Characteristics.
	0x2A00: "Device Name",
	0x2A01: "Appearance",
	0x2A04: "Peripheral Preferred Connection Parameters",
	0x2A05: "Service Changed",
	0x2A07: "Tx Power Level",
	0x2A19: "Battery Level",
	0x2A23: "System ID",
	0x2A24: "Model Number String",
	0x2A25: "Serial Number String",
	0x2A26: "Firmware Revision String",
	0x2A27: "Hardware Revision String",
	0x2A28: "Software Revision String",
	0x2A29: "Manufacturer Name String",
	0x2A2B: "Current Time",
	0x2A37: "Heart Rate Measurement",
	0x2A38: "Body Sensor Location",
	0x2A4B: "Report Map",
	0x2A4D: "Report",
	0x2A6E: "Temperature",
	0x2A6F: "Humidity",

	// Descriptors.
	0x2900: "Characteristic Extended Properties",
	0x2901: "Characteristic User Description",
	0x2902: "Client Characteristic Configuration",
	0x2903: "Server Characteristic Configuration",
	0x2904: "Characteristic Presentation Format",
	0x2905: "Characteristic Aggregate Format",
	0x2906: "Valid Range",
	0x2908: "Report Reference",
}

// UUIDName returns the human-readable name of a standard UUID, or the empty
// string when it is not a known assigned number.
func UUIDName(u UUID) string {
	if n, ok := u.Short(); ok {
		return assignedNames[n]
	}
	return ""
}
