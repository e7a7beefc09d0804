// Package aps defines the APS-layer data request/response types exchanged
// with the deCONZ driver, and the transaction ID allocator used to
// correlate them.
package aps

// Destination address modes for an APS data request.
const (
	AddrModeGroup     uint8 = 0x01
	AddrModeNWK       uint8 = 0x02
	AddrModeIEEE      uint8 = 0x03
	AddrModeBroadcast uint8 = 0x0F
)

// TX option bits.
const (
	TxOptionACK uint8 = 0x04 // request APS acknowledgment
)

// NWK hop budgets. Both are the wire value 0x00: the NWK layer treats a
// radius of zero on an outgoing frame as "unset" and substitutes
// 2*nwkMaxDepth itself, so there is no separate wire encoding for "default"
// versus "no explicit limit" — the two names document the caller's intent
// at the call site, not two different byte values.
const (
	DefaultRadius uint8 = 0x00
	Unlimited     uint8 = 0x00
)

// BroadcastAll is the standard "all devices" NWK broadcast address.
const BroadcastAll uint16 = 0xFFFF

// DataRequest is an outbound APS data request (§3.1).
type DataRequest struct {
	RequestID     uint8
	DestAddrMode  uint8
	DestAddr16    uint16
	DestAddr64    [8]byte
	DestEndpoint  uint8
	SrcEndpoint   uint8
	ProfileID     uint16
	ClusterID     uint16
	ASDUPayload   []byte
	TxOptions     uint8
	Radius        uint8
	TimeoutSecond int
}

// DataResponse is an inbound APS data indication (§3.2). When only
// SrcAddr64 is present, the inbound router (routeDataIndication in
// adapter/adapter.go) fills SrcAddr16 from the device directory, or drops
// the indication if the IEEE address is unknown.
type DataResponse struct {
	SrcAddrMode  uint8
	SrcAddr16    uint16
	SrcAddr64    [8]byte
	HasSrcAddr64 bool
	SrcEndpoint  uint8
	DestAddrMode uint8
	DestAddr16   uint16
	DestEndpoint uint8
	ProfileID    uint16
	ClusterID    uint16
	ASDUPayload  []byte
	LQI          uint8
	RSSI         int8
}
