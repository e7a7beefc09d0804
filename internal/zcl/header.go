package zcl

import "fmt"

// Frame control bits (frame_control byte, first byte of every ZCL frame).
const (
	FrameTypeGlobal  uint8 = 0x00
	FrameTypeCluster uint8 = 0x01

	frameTypeMask = 0x03

	DirectionToServer uint8 = 0x00
	DirectionToClient uint8 = 0x08

	directionMask = 0x08

	FlagDisableDefaultResponse uint8 = 0x10
	FlagManufacturerSpecific   uint8 = 0x04
)

// Header is the parsed ZCL header common to every frame, global or
// cluster-specific.
type Header struct {
	FrameType               uint8
	Direction                uint8
	DisableDefaultResponse  bool
	ManufacturerSpecific    bool
	ManufacturerCode        uint16
	TransactionSequence     uint8
	CommandID                uint8

	// HeaderLength is the number of bytes the header occupied, so callers
	// can slice the remaining command payload off the original buffer.
	HeaderLength int
}

// ParseHeader decodes the ZCL header at the start of data (§11).
func ParseHeader(data []byte) (Header, error) {
	if len(data) < 3 {
		return Header{}, fmt.Errorf("zcl: frame too short for header: %d bytes", len(data))
	}
	fc := data[0]
	h := Header{
		FrameType:              fc & frameTypeMask,
		Direction:              fc & directionMask,
		DisableDefaultResponse: fc&FlagDisableDefaultResponse != 0,
		ManufacturerSpecific:   fc&FlagManufacturerSpecific != 0,
	}
	pos := 1
	if h.ManufacturerSpecific {
		if len(data) < pos+2 {
			return Header{}, fmt.Errorf("zcl: frame too short for manufacturer code")
		}
		h.ManufacturerCode = uint16(data[pos]) | uint16(data[pos+1])<<8
		pos += 2
	}
	if len(data) < pos+2 {
		return Header{}, fmt.Errorf("zcl: frame too short for tsn/command")
	}
	h.TransactionSequence = data[pos]
	h.CommandID = data[pos+1]
	pos += 2
	h.HeaderLength = pos
	return h, nil
}

// BuildHeader serializes a ZCL header, the inverse of ParseHeader. The
// dispatcher does not call it: sendZclFrameToEndpoint/Group/All (§4.3) take
// frames already encoded by the caller.
func BuildHeader(h Header) []byte {
	fc := h.FrameType&frameTypeMask | h.Direction&directionMask
	if h.DisableDefaultResponse {
		fc |= FlagDisableDefaultResponse
	}
	if h.ManufacturerSpecific {
		fc |= FlagManufacturerSpecific
	}
	buf := []byte{fc}
	if h.ManufacturerSpecific {
		buf = append(buf, byte(h.ManufacturerCode), byte(h.ManufacturerCode>>8))
	}
	buf = append(buf, h.TransactionSequence, h.CommandID)
	return buf
}
