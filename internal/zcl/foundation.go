package zcl

import (
	"encoding/binary"
	"fmt"
)

// Foundation ZCL command IDs (global, not cluster-specific).
const (
	FoundationReadAttributes         uint8 = 0x00
	FoundationReadAttributesResponse uint8 = 0x01
	FoundationWriteAttributes        uint8 = 0x02
	FoundationWriteAttributesResp    uint8 = 0x04
	FoundationConfigReporting        uint8 = 0x06
	FoundationConfigReportingResp    uint8 = 0x07
	FoundationReadReportingConfig    uint8 = 0x08
	FoundationReportAttributes       uint8 = 0x0A
	FoundationDefaultResponse        uint8 = 0x0B
	FoundationDiscoverAttributes     uint8 = 0x0C
	FoundationDiscoverAttributesResp uint8 = 0x0D
)

// ZCL status codes
const (
	ZCLStatusSuccess            uint8 = 0x00
	ZCLStatusFailure            uint8 = 0x01
	ZCLStatusUnsupportedAttr    uint8 = 0x86
	ZCLStatusInvalidDataType    uint8 = 0x8D
	ZCLStatusReadOnly           uint8 = 0x88
	ZCLStatusNotFound           uint8 = 0x8B
	ZCLStatusUnreportable       uint8 = 0x8C
	ZCLStatusInvalidValue       uint8 = 0x87
)

// AttributeRecord is one decoded attribute out of a Report Attributes or
// Read Attributes Response foundation command.
type AttributeRecord struct {
	AttributeID uint16      `json:"attributeID"`
	Status      uint8       `json:"status,omitempty"`
	Type        uint8       `json:"type"`
	TypeName    string      `json:"typeName"`
	Value       interface{} `json:"value,omitempty"`
}

// DecodeAttributes decodes the attribute records carried by a global
// (foundation) Report Attributes or Read Attributes Response command. body
// is the payload with the ZCL header already stripped. Any other frame
// (cluster-specific, or a foundation command with no attribute records)
// returns an error, since there is nothing to decode.
func DecodeAttributes(h Header, body []byte) ([]AttributeRecord, error) {
	if h.FrameType != FrameTypeGlobal {
		return nil, fmt.Errorf("zcl: attribute decode requires a global-frame command, got 0x%02X", h.CommandID)
	}
	switch h.CommandID {
	case FoundationReportAttributes:
		return decodeReportAttributes(body)
	case FoundationReadAttributesResponse:
		return decodeReadAttributesResponse(body)
	default:
		return nil, fmt.Errorf("zcl: command 0x%02X carries no attribute records", h.CommandID)
	}
}

func decodeReportAttributes(body []byte) ([]AttributeRecord, error) {
	var records []AttributeRecord
	pos := 0
	for pos < len(body) {
		if len(body)-pos < 3 {
			return nil, fmt.Errorf("zcl: truncated attribute report at offset %d", pos)
		}
		attrID := binary.LittleEndian.Uint16(body[pos : pos+2])
		typeID := body[pos+2]
		pos += 3
		val, n, err := DecodeValue(typeID, body[pos:])
		if err != nil {
			return nil, fmt.Errorf("zcl: attribute 0x%04X: %w", attrID, err)
		}
		pos += n
		records = append(records, AttributeRecord{
			AttributeID: attrID,
			Type:        typeID,
			TypeName:    TypeName(typeID),
			Value:       val,
		})
	}
	return records, nil
}

func decodeReadAttributesResponse(body []byte) ([]AttributeRecord, error) {
	var records []AttributeRecord
	pos := 0
	for pos < len(body) {
		if len(body)-pos < 3 {
			return nil, fmt.Errorf("zcl: truncated read-attributes response at offset %d", pos)
		}
		attrID := binary.LittleEndian.Uint16(body[pos : pos+2])
		status := body[pos+2]
		pos += 3
		if status != ZCLStatusSuccess {
			records = append(records, AttributeRecord{AttributeID: attrID, Status: status})
			continue
		}
		if pos >= len(body) {
			return nil, fmt.Errorf("zcl: attribute 0x%04X: missing type byte", attrID)
		}
		typeID := body[pos]
		pos++
		val, n, err := DecodeValue(typeID, body[pos:])
		if err != nil {
			return nil, fmt.Errorf("zcl: attribute 0x%04X: %w", attrID, err)
		}
		pos += n
		records = append(records, AttributeRecord{
			AttributeID: attrID,
			Status:      status,
			Type:        typeID,
			TypeName:    TypeName(typeID),
			Value:       val,
		})
	}
	return records, nil
}
