// Package driver implements the byte-level façade to a deCONZ-protocol
// radio (ConBee/RaspBee): serial transport, request/response correlation
// by sequence number, parameter read/write, and the network-state machine.
// It knows nothing about ZDP or ZCL semantics — those are the concern of
// internal/zdp and internal/zcl, layered on top by internal/adapter.
//
// Modeled on the teacher's internal/ncp/nrf52840.go request/response
// correlation pattern (a channel-per-in-flight-command map fed by a
// background read loop), reframed around the deCONZ vendor protocol
// instead of ZBOSS/HDLC: see protocol.go and serial.go for the framing
// and transport, respectively.
package driver

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"deconz-adapter/internal/aps"
)

// ParameterID identifies a deCONZ NCP parameter accessed via
// readParameterRequest/writeParameterRequest (§6.3, §6.5).
type ParameterID uint8

const (
	ParamMACAddress   ParameterID = 0x01
	ParamPANID        ParameterID = 0x05
	ParamNetworkKey   ParameterID = 0x18
	ParamChannel      ParameterID = 0x0A
	ParamAPSExtPANID  ParameterID = 0x2D
	ParamPermitJoin   ParameterID = 0x21
	ParamEndpoint     ParameterID = 0x0D
)

// NetworkState is the value accepted by changeNetworkStateRequest.
type NetworkState uint8

const (
	NetworkStateOffline   NetworkState = 0x00
	NetworkStateConnected NetworkState = 0x02
)

// DataIndication is the driver's normalized view of an inbound APS data
// frame, delivered on the driver's event stream (§3.2, §6.3).
type DataIndication struct {
	Response aps.DataResponse
}

// GreenPowerIndication carries a raw Green Power data indication (gpDataInd,
// §4.6) as delivered by the deCONZ vendor frame for GP commands.
type GreenPowerIndication struct {
	SrcID            uint32
	SeqNr            uint8
	CommandID        uint8
	FrameCounter     uint32
	CommandFrame     []byte
}

// FirmwareVersion is the parsed result of readFirmwareVersionRequest
// (§6.3): byte[1] encodes hardware family, bytes[2],[3] the minor/major
// firmware version.
type FirmwareVersion struct {
	Raw      uint32
	Platform uint8
	Minor    uint8
	Major    uint8
}

// PlatformName returns a human-readable hardware family name.
func (v FirmwareVersion) PlatformName() string {
	switch v.Platform {
	case 5:
		return "ConBee/RaspBee"
	case 7:
		return "ConBee2/RaspBee2"
	default:
		return "ConBee3"
	}
}

// EventHandler receives driver-level events. Exactly one of the two
// pointers is non-nil per call.
type EventHandler func(indication *DataIndication, greenPower *GreenPowerIndication)

// Driver is the interface consumed by the rest of the core (§6.3). The
// concrete implementation is SerialDriver.
type Driver interface {
	Open(ctx context.Context) error
	Close() error

	ReadParameter(ctx context.Context, id ParameterID) ([]byte, error)
	WriteParameter(ctx context.Context, id ParameterID, value []byte) error
	ReadFirmwareVersion(ctx context.Context) (FirmwareVersion, error)
	ChangeNetworkState(ctx context.Context, state NetworkState) error
	EnqueueSendDataRequest(ctx context.Context, req aps.DataRequest) error

	// OnEvent registers the sole event handler for inbound frames. Must be
	// called before Open.
	OnEvent(handler EventHandler)
}

// MacAddrStringToArray parses a colon-separated big-endian hex MAC/IEEE
// address string (e.g. "00:0D:6F:00:11:22:33:44") into its 8-byte
// little-endian-on-the-wire array form.
func MacAddrStringToArray(s string) ([8]byte, error) {
	var out [8]byte
	parts := strings.Split(s, ":")
	if len(parts) != 8 {
		return out, fmt.Errorf("driver: mac address %q: want 8 colon-separated octets, got %d", s, len(parts))
	}
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil || len(b) != 1 {
			return out, fmt.Errorf("driver: mac address %q: bad octet %q", s, p)
		}
		// Wire order is little-endian; string is written big-endian (network order).
		out[7-i] = b[0]
	}
	return out, nil
}

// MacAddrArrayToString is the inverse of MacAddrStringToArray.
func MacAddrArrayToString(a [8]byte) string {
	parts := make([]string, 8)
	for i := 0; i < 8; i++ {
		parts[i] = fmt.Sprintf("%02X", a[7-i])
	}
	return strings.Join(parts, ":")
}

// GeneralArrayToString renders an arbitrary byte slice as an unseparated
// uppercase hex string, matching the teacher's logging convention for
// opaque payloads.
func GeneralArrayToString(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
