package zcl

import "fmt"

// clusterNames is a small subset of the Zigbee HA cluster catalog, kept
// only for human-readable logging (§11) — never for dispatch decisions,
// which are driven entirely by the numeric IDs in ClusterID/CommandID.
var clusterNames = map[uint16]string{
	0x0000: "Basic",
	0x0001: "PowerConfiguration",
	0x0003: "Identify",
	0x0004: "Groups",
	0x0005: "Scenes",
	0x0006: "OnOff",
	0x0008: "LevelControl",
	0x000A: "Time",
	0x0019: "OTA",
	0x0020: "PollControl",
	0x0021: "GreenPower",
	0x0101: "DoorLock",
	0x0201: "Thermostat",
	0x0300: "ColorControl",
	0x0400: "IlluminanceMeasurement",
	0x0402: "TemperatureMeasurement",
	0x0403: "PressureMeasurement",
	0x0405: "RelativeHumidity",
	0x0406: "Occupancy",
	0x0500: "IASZone",
	0x0502: "IASWD",
	0x0702: "Metering",
	0x0B04: "ElectricalMeasurement",
}

// foundationCommandNames names the global commands in foundation.go, for
// the same logging-only purpose.
var foundationCommandNames = map[uint8]string{
	FoundationReadAttributes:         "ReadAttributes",
	FoundationReadAttributesResponse: "ReadAttributesResponse",
	FoundationWriteAttributes:        "WriteAttributes",
	FoundationWriteAttributesResp:    "WriteAttributesResponse",
	FoundationConfigReporting:        "ConfigureReporting",
	FoundationConfigReportingResp:    "ConfigureReportingResponse",
	FoundationReadReportingConfig:    "ReadReportingConfiguration",
	FoundationReportAttributes:       "ReportAttributes",
	FoundationDefaultResponse:        "DefaultResponse",
	FoundationDiscoverAttributes:     "DiscoverAttributes",
	FoundationDiscoverAttributesResp: "DiscoverAttributesResponse",
}

// ClusterName returns a human-readable cluster name, or the numeric ID
// formatted as hex if the cluster isn't in the small known-cluster table.
func ClusterName(id uint16) string {
	if name, ok := clusterNames[id]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", id)
}

// CommandName returns a human-readable command name for a global-frame
// command, or the numeric ID formatted as hex if it isn't a known
// foundation command. Cluster-specific command IDs (FrameTypeCluster) are
// only meaningful together with the cluster they belong to, so this only
// covers the foundation set.
func CommandName(h Header) string {
	if h.FrameType != FrameTypeGlobal {
		return fmt.Sprintf("0x%02X", h.CommandID)
	}
	if name, ok := foundationCommandNames[h.CommandID]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", h.CommandID)
}
