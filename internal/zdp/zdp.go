// Package zdp builds and parses Zigbee Device Profile payloads: the
// numbered cluster requests/responses the dispatcher (internal/adapter)
// issues to query and manage the mesh (§4.3). It has no knowledge of
// transport, correlation, or the driver — it is pure encode/decode over
// byte slices, grounded on the shape of the teacher's ZDO request builders
// in internal/ncp/nrf52840.go (ActiveEndpoints, SimpleDescriptor, Bind,
// Unbind, MgmtLeave), generalized from ZBOSS's own ZDO frame layout to the
// standard over-the-air ZDP layout this core speaks directly.
package zdp

import (
	"encoding/binary"
	"fmt"
)

// ZDP cluster IDs used by the dispatcher (§4.3).
const (
	ClusterNodeDescriptorReq    uint16 = 0x0002
	ClusterNodeDescriptorRsp    uint16 = 0x8002
	ClusterSimpleDescriptorReq  uint16 = 0x0004
	ClusterSimpleDescriptorRsp  uint16 = 0x8004
	ClusterActiveEndpointsReq   uint16 = 0x0005
	ClusterActiveEndpointsRsp   uint16 = 0x8005
	ClusterBindReq              uint16 = 0x0021
	ClusterBindRsp              uint16 = 0x8021
	ClusterUnbindReq            uint16 = 0x0022
	ClusterUnbindRsp            uint16 = 0x8022
	ClusterLQIReq               uint16 = 0x0031
	ClusterLQIRsp               uint16 = 0x8031
	ClusterRoutingTableReq      uint16 = 0x0032
	ClusterRoutingTableRsp      uint16 = 0x8032
	ClusterPermitJoinReq        uint16 = 0x0036
	ClusterMgmtLeaveReq         uint16 = 0x0034
	ClusterMgmtLeaveRsp         uint16 = 0x8034
	ClusterDeviceAnnounce       uint16 = 0x0013
)

// AddrMode values for a bind/unbind destination.
const (
	BindDestModeGroup    uint8 = 0x01
	BindDestModeEndpoint uint8 = 0x03
)

// NodeType decodes the low 3 bits of a node descriptor's logical type byte.
type NodeType uint8

const (
	NodeTypeCoordinator NodeType = 0
	NodeTypeRouter      NodeType = 1
	NodeTypeEndDevice   NodeType = 2
	NodeTypeUnknown     NodeType = 0xFF
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeCoordinator:
		return "Coordinator"
	case NodeTypeRouter:
		return "Router"
	case NodeTypeEndDevice:
		return "EndDevice"
	default:
		return "Unknown"
	}
}

// BuildPermitJoin builds the ZDP_Mgmt_Permit_Joining_req payload (§4.3):
// [tsn, seconds, tc_significance=0]. tc_significance is hard-coded to 0
// per the design notes (§9): the source comment reads "1 or 0?" and this
// reproduces the observed value.
func BuildPermitJoin(tsn uint8, seconds uint8) []byte {
	return []byte{tsn, seconds, 0}
}

// BuildNodeDescriptorRequest builds [tsn, nwkLo, nwkHi].
func BuildNodeDescriptorRequest(tsn uint8, nwkAddr uint16) []byte {
	return build16(tsn, nwkAddr)
}

// BuildActiveEndpointsRequest builds [tsn, nwkLo, nwkHi].
func BuildActiveEndpointsRequest(tsn uint8, nwkAddr uint16) []byte {
	return build16(tsn, nwkAddr)
}

// BuildSimpleDescriptorRequest builds [tsn, nwkLo, nwkHi, ep].
func BuildSimpleDescriptorRequest(tsn uint8, nwkAddr uint16, endpoint uint8) []byte {
	buf := build16(tsn, nwkAddr)
	return append(buf, endpoint)
}

// BuildLQIRequest builds [tsn, startIndex] for an Mgmt_Lqi_req.
func BuildLQIRequest(tsn uint8, startIndex uint8) []byte {
	return []byte{tsn, startIndex}
}

// BuildRoutingTableRequest builds [tsn, startIndex] for an Mgmt_Rtg_req.
func BuildRoutingTableRequest(tsn uint8, startIndex uint8) []byte {
	return []byte{tsn, startIndex}
}

func build16(tsn uint8, v uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = tsn
	binary.LittleEndian.PutUint16(buf[1:3], v)
	return buf
}

// BindTarget describes the destination of a bind/unbind request.
type BindTarget struct {
	Mode     uint8 // BindDestModeGroup or BindDestModeEndpoint
	GroupID  uint16
	IEEE     [8]byte
	Endpoint uint8
}

// BuildBind builds a Bind_req/Unbind_req payload (§4.3):
// [tsn] || srcIEEE(8) || [srcEp, cidLo, cidHi, destMode] || destBytes.
func BuildBind(tsn uint8, srcIEEE [8]byte, srcEndpoint uint8, clusterID uint16, dst BindTarget) []byte {
	buf := make([]byte, 0, 14+9)
	buf = append(buf, tsn)
	buf = append(buf, srcIEEE[:]...)
	buf = append(buf, srcEndpoint, byte(clusterID), byte(clusterID>>8), dst.Mode)
	if dst.Mode == BindDestModeGroup {
		buf = append(buf, byte(dst.GroupID), byte(dst.GroupID>>8))
	} else {
		buf = append(buf, dst.IEEE[:]...)
		buf = append(buf, dst.Endpoint)
	}
	return buf
}

// BuildRemoveDevice builds the Mgmt_Leave_req payload. The source sends a
// zero-padded payload instead of the device's actual IEEE address — this
// reproduces that behavior as-is per the design notes (§9 open questions);
// do not silently fix it into a real IEEE.
func BuildRemoveDevice(tsn uint8) []byte {
	buf := make([]byte, 10)
	buf[0] = tsn
	return buf
}

// NodeDescriptor is the decoded result of a Node_Desc_rsp (§4.3).
type NodeDescriptor struct {
	Type             NodeType
	ManufacturerCode uint16
}

// ParseNodeDescriptorResponse decodes a Node_Desc_rsp payload.
func ParseNodeDescriptorResponse(payload []byte) (NodeDescriptor, error) {
	if len(payload) < 9 {
		return NodeDescriptor{}, fmt.Errorf("zdp: node descriptor response too short: %d bytes", len(payload))
	}
	if payload[1] != 0 {
		return NodeDescriptor{}, fmt.Errorf("zdp: node descriptor status: %d", payload[1])
	}
	nodeType := NodeType(payload[4] & 0x07)
	mfr := binary.LittleEndian.Uint16(payload[7:9])
	return NodeDescriptor{Type: nodeType, ManufacturerCode: mfr}, nil
}

// ParseActiveEndpointsResponse decodes an Active_EP_rsp payload.
func ParseActiveEndpointsResponse(payload []byte) ([]uint8, error) {
	if len(payload) < 5 {
		return nil, fmt.Errorf("zdp: active endpoints response too short: %d bytes", len(payload))
	}
	if payload[1] != 0 {
		return nil, fmt.Errorf("zdp: active endpoints status: %d", payload[1])
	}
	count := int(payload[4])
	if len(payload) < 5+count {
		return nil, fmt.Errorf("zdp: active endpoints truncated: need %d, have %d", 5+count, len(payload))
	}
	eps := make([]uint8, count)
	copy(eps, payload[5:5+count])
	return eps, nil
}

// SimpleDescriptor is the decoded result of a Simple_Desc_rsp (§4.3).
type SimpleDescriptor struct {
	Endpoint    uint8
	ProfileID   uint16
	DeviceID    uint16
	InClusters  []uint16
	OutClusters []uint16
}

// ParseSimpleDescriptorResponse decodes a Simple_Desc_rsp payload.
func ParseSimpleDescriptorResponse(payload []byte) (SimpleDescriptor, error) {
	if len(payload) < 12 {
		return SimpleDescriptor{}, fmt.Errorf("zdp: simple descriptor response too short: %d bytes", len(payload))
	}
	if payload[1] != 0 {
		return SimpleDescriptor{}, fmt.Errorf("zdp: simple descriptor status: %d", payload[1])
	}
	sd := SimpleDescriptor{
		Endpoint:  payload[5],
		ProfileID: binary.LittleEndian.Uint16(payload[6:8]),
		DeviceID:  binary.LittleEndian.Uint16(payload[8:10]),
	}
	inCount := int(payload[11])
	pos := 12
	for i := 0; i < inCount; i++ {
		if pos+2 > len(payload) {
			return SimpleDescriptor{}, fmt.Errorf("zdp: simple descriptor truncated in input clusters")
		}
		sd.InClusters = append(sd.InClusters, binary.LittleEndian.Uint16(payload[pos:pos+2]))
		pos += 2
	}
	if pos >= len(payload) {
		return SimpleDescriptor{}, fmt.Errorf("zdp: simple descriptor truncated before output cluster count")
	}
	outCount := int(payload[pos])
	pos++
	for i := 0; i < outCount; i++ {
		if pos+2 > len(payload) {
			return SimpleDescriptor{}, fmt.Errorf("zdp: simple descriptor truncated in output clusters")
		}
		sd.OutClusters = append(sd.OutClusters, binary.LittleEndian.Uint16(payload[pos:pos+2]))
		pos += 2
	}
	return sd, nil
}

// NeighborRelationship decodes the relationship subfield of an LQI entry.
type NeighborRelationship uint8

const (
	RelationParent          NeighborRelationship = 0
	RelationChild           NeighborRelationship = 1
	RelationSibling         NeighborRelationship = 2
	RelationNone            NeighborRelationship = 3
	RelationPreviousChild   NeighborRelationship = 4
)

// Neighbor is one entry of an Mgmt_Lqi_rsp neighbor table (§4.3).
type Neighbor struct {
	NwkAddr      uint16
	IEEE         [8]byte
	Relationship NeighborRelationship
	Depth        uint8
	LinkQuality  uint8
}

// LQIPage is one page of an Mgmt_Lqi_rsp: status, table totals, and the
// neighbor entries carried in this page.
type LQIPage struct {
	Status     uint8
	Total      uint8
	StartIndex uint8
	Neighbors  []Neighbor
}

const lqiEntrySize = 22

// ParseLQIResponse decodes one Mgmt_Lqi_rsp page. Callers accumulate pages
// across successive requests (see §4.3, §8 test S3) until the running
// total of neighbors received equals Total.
func ParseLQIResponse(payload []byte) (LQIPage, error) {
	if len(payload) < 5 {
		return LQIPage{}, fmt.Errorf("zdp: lqi response too short: %d bytes", len(payload))
	}
	page := LQIPage{
		Status:     payload[1],
		Total:      payload[2],
		StartIndex: payload[3],
	}
	if page.Status != 0 {
		return page, fmt.Errorf("zdp: lqi status: %d", page.Status)
	}
	count := int(payload[4])
	base := 5
	for i := 0; i < count; i++ {
		off := base + i*lqiEntrySize
		if off+lqiEntrySize > len(payload) {
			return page, fmt.Errorf("zdp: lqi entry %d truncated", i)
		}
		entry := payload[off : off+lqiEntrySize]
		var n Neighbor
		copy(n.IEEE[:], entry[8:16])
		n.NwkAddr = binary.LittleEndian.Uint16(entry[16:18])
		n.Relationship = NeighborRelationship((entry[18] >> 1) & 0x07)
		n.Depth = entry[20]
		n.LinkQuality = entry[21]
		page.Neighbors = append(page.Neighbors, n)
	}
	return page, nil
}

// RouteStatus decodes a routing table entry's status subfield.
type RouteStatus uint8

const (
	RouteActive            RouteStatus = 0
	RouteDiscoveryUnderway RouteStatus = 1
	RouteDiscoveryFailed   RouteStatus = 2
	RouteInactive          RouteStatus = 3
)

// Route is one entry of an Mgmt_Rtg_rsp routing table (§4.3).
type Route struct {
	Destination uint16
	Status      RouteStatus
	NextHop     uint16
}

// RoutingTablePage is one page of an Mgmt_Rtg_rsp.
type RoutingTablePage struct {
	Status     uint8
	Total      uint8
	StartIndex uint8
	Routes     []Route
}

const routeEntrySize = 5

// ParseRoutingTableResponse decodes one Mgmt_Rtg_rsp page.
func ParseRoutingTableResponse(payload []byte) (RoutingTablePage, error) {
	if len(payload) < 5 {
		return RoutingTablePage{}, fmt.Errorf("zdp: routing table response too short: %d bytes", len(payload))
	}
	page := RoutingTablePage{
		Status:     payload[1],
		Total:      payload[2],
		StartIndex: payload[3],
	}
	if page.Status != 0 {
		return page, fmt.Errorf("zdp: routing table status: %d", page.Status)
	}
	count := int(payload[4])
	base := 5
	for i := 0; i < count; i++ {
		off := base + i*routeEntrySize
		if off+routeEntrySize > len(payload) {
			return page, fmt.Errorf("zdp: route entry %d truncated", i)
		}
		entry := payload[off : off+routeEntrySize]
		r := Route{
			Destination: binary.LittleEndian.Uint16(entry[0:2]),
			Status:      RouteStatus((entry[2] >> 5) & 0x07),
			NextHop:     binary.LittleEndian.Uint16(entry[3:5]),
		}
		page.Routes = append(page.Routes, r)
	}
	return page, nil
}

// DeviceAnnounce is the decoded payload of a Device_annce indication
// (cluster 0x0013).
type DeviceAnnounce struct {
	NwkAddr    uint16
	IEEE       [8]byte
	Capability uint8
}

// ParseDeviceAnnounce decodes a Device_annce payload:
// [tsn, nwkLo, nwkHi, ieee(8), capability].
func ParseDeviceAnnounce(payload []byte) (DeviceAnnounce, error) {
	if len(payload) < 12 {
		return DeviceAnnounce{}, fmt.Errorf("zdp: device announce payload too short: %d bytes", len(payload))
	}
	var da DeviceAnnounce
	da.NwkAddr = binary.LittleEndian.Uint16(payload[1:3])
	copy(da.IEEE[:], payload[3:11])
	da.Capability = payload[11]
	return da, nil
}

// StatusOf returns the ZDP status byte (payload[1]) of any response frame,
// or an error if the payload is too short to contain one.
func StatusOf(payload []byte) (uint8, error) {
	if len(payload) < 2 {
		return 0, fmt.Errorf("zdp: payload too short for status byte")
	}
	return payload[1], nil
}

// ChannelMask converts a channel number (11..26) to its bitmask bit. It
// returns 0 for any channel outside that range (§8 boundary test 9).
func ChannelMask(channel uint8) uint32 {
	if channel < 11 || channel > 26 {
		return 0
	}
	return 1 << uint(channel)
}

// CoordinatorEndpointDescriptor is the hard-coded 27-byte endpoint
// descriptor written by the coordinator endpoint installer (§4.8, §6.4):
// endpoint=1, profile=0x0104, device=0x0005, version=0,
// inputClusters={0x0000,0x0006,0x000A,0x0019,0x0501},
// outputClusters={0x0001,0x0020,0x0500,0x0502}.
func CoordinatorEndpointDescriptor() []byte {
	in := []uint16{0x0000, 0x0006, 0x000A, 0x0019, 0x0501}
	out := []uint16{0x0001, 0x0020, 0x0500, 0x0502}
	buf := make([]byte, 9+2*len(in)+2*len(out))
	buf[0] = 1 // endpoint
	binary.LittleEndian.PutUint16(buf[1:3], 0x0104)
	binary.LittleEndian.PutUint16(buf[3:5], 0x0005)
	buf[5] = 0 // version
	buf[6] = 0 // reserved
	buf[7] = uint8(len(in))
	buf[8] = uint8(len(out))
	pos := 9
	for _, c := range in {
		binary.LittleEndian.PutUint16(buf[pos:pos+2], c)
		pos += 2
	}
	for _, c := range out {
		binary.LittleEndian.PutUint16(buf[pos:pos+2], c)
		pos += 2
	}
	return buf
}

// RequiredCoordinatorInputClusters and RequiredCoordinatorOutputClusters
// are the sets the coordinator endpoint installer (§4.8) verifies are
// present on endpoint 1.
var (
	RequiredCoordinatorInputClusters  = []uint16{0x0000, 0x0006, 0x000A, 0x0019, 0x0501}
	RequiredCoordinatorOutputClusters = []uint16{0x0001, 0x0020, 0x0500, 0x0502}
)

// HasAllClusters reports whether every cluster in want is present in have.
func HasAllClusters(have, want []uint16) bool {
	set := make(map[uint16]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range want {
		if !set[c] {
			return false
		}
	}
	return true
}
