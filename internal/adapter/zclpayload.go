package adapter

import "deconz-adapter/internal/zcl"

// ZclPayload is the normalized shape of an inbound ZCL frame offered to
// both the waitress and the external event sink (§4.6, §6.1).
type ZclPayload struct {
	Address             uint64      `json:"address"`
	Data                []byte      `json:"data"`
	ClusterID           uint16      `json:"clusterID"`
	Header              *zcl.Header `json:"header,omitempty"`
	Endpoint            uint8       `json:"endpoint"`
	LinkQuality         uint8       `json:"linkquality"`
	GroupID             uint16      `json:"groupID"`
	WasBroadcast        bool        `json:"wasBroadcast"`
	DestinationEndpoint uint8       `json:"destinationEndpoint"`

	// Attributes is populated for Report Attributes / Read Attributes
	// Response foundation commands (§11 attribute decode); nil otherwise.
	Attributes []zcl.AttributeRecord `json:"attributes,omitempty"`
}
