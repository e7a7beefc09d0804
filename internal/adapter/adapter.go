package adapter

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"deconz-adapter/internal/aps"
	"deconz-adapter/internal/driver"
	"deconz-adapter/internal/pending"
	"deconz-adapter/internal/store"
	"deconz-adapter/internal/waitress"
	"deconz-adapter/internal/zcl"
	"deconz-adapter/internal/zdp"
)

// GPEndpoint and ProfileGreenPower are the well-known Green Power
// endpoint and profile (§4.3, §4.6).
const (
	GPEndpoint       uint8  = 242
	ProfileGreenPower uint16 = 0xA1E0
	profileZigbeeHA  uint16 = 0x0104
	clusterGreenPower uint16 = 0x0021
	gpGroupID        uint16 = 0x0B84
	coordinatorNwkAddr uint16 = 0x0000
	manufacturerID   uint16 = 0x1135
)

// zdpTimeout is the default correlation window for ZDP requests (§3.1: "ZDP
// requests typically 30s").
const zdpTimeout = 30 * time.Second

// ErrNotSupported is returned by operations this core deliberately does not
// implement (§6.2).
var ErrNotSupported = errors.New("operation not supported")

// Config holds the adapter's network and submit-queue configuration (§6.5).
type Config struct {
	Channel    uint8
	PanID      uint16
	ExtPanID   [8]byte
	NetworkKey [16]byte
	Concurrent int
	Delay      int // milliseconds
}

// CoordinatorInfo is the result of GetCoordinator (§6.2).
type CoordinatorInfo struct {
	NetworkAddress uint16
	ManufacturerID uint16
	IEEEAddr       [8]byte
	Endpoints      []uint8
}

// NetworkParameters is the result of GetNetworkParameters (§6.2).
type NetworkParameters struct {
	PanID         uint16
	ExtendedPanID [8]byte
	Channel       uint8
}

// Adapter is the deCONZ core: it owns the transaction allocator, submit
// queue, pending-request table, waitress, and device directory, and
// exposes the dispatcher operations of §4.3 plus the lifecycle and
// diagnostic operations of §6.2. Grounded on the teacher's Coordinator
// (adapter.go, now generalized off the ZBOSS-specific ncp.NCP interface
// onto the deCONZ driver.Driver interface).
type Adapter struct {
	driver    driver.Driver
	store     store.Store
	txAlloc   *aps.TransactionAllocator
	queue     *aps.SubmitQueue
	pending   *pending.Table
	waitress  *waitress.Waitress
	directory *DeviceDirectory
	events    *EventBus
	logger    *slog.Logger
	config    Config

	joinPermitted   atomic.Bool
	localIEEE       [8]byte
	firmwareVersion driver.FirmwareVersion

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Adapter bound to d. Start must be called before any
// dispatcher operation is used.
func New(d driver.Driver, st store.Store, events *EventBus, cfg Config, logger *slog.Logger) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		driver:    d,
		store:     st,
		txAlloc:   &aps.TransactionAllocator{},
		queue:     aps.NewSubmitQueue(cfg.Concurrent),
		pending:   pending.New(logger.With("component", "pending")),
		waitress:  waitress.New(),
		directory: NewDeviceDirectory(st, logger.With("component", "directory")),
		events:    events,
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
	d.OnEvent(a.handleDriverEvent)
	return a
}

// Events returns the adapter's event bus.
func (a *Adapter) Events() *EventBus { return a.events }

// Devices returns the device directory.
func (a *Adapter) Devices() *DeviceDirectory { return a.directory }

// Context returns the adapter's context, cancelled on Stop.
func (a *Adapter) Context() context.Context { return a.ctx }

// Start opens the driver and reconciles network parameters (§4.7).
func (a *Adapter) Start(ctx context.Context) (string, error) {
	if err := a.driver.Open(ctx); err != nil {
		return "", fmt.Errorf("adapter: open driver: %w", err)
	}
	a.pending.Start()

	changed := false
	if a.reconcilePANID(ctx) {
		changed = true
	}
	if a.reconcileExtPanID(ctx) {
		changed = true
	}
	if a.reconcileChannel(ctx) {
		changed = true
	}
	if a.reconcileNetworkKey(ctx) {
		changed = true
	}

	if changed {
		a.logger.Info("network parameters changed, cycling radio")
		if err := a.driver.ChangeNetworkState(ctx, driver.NetworkStateOffline); err != nil {
			a.logger.Debug("change network state offline failed", "err", err)
		}
		if !a.sleep(ctx, 2*time.Second) {
			return "", ctx.Err()
		}
		if err := a.driver.ChangeNetworkState(ctx, driver.NetworkStateConnected); err != nil {
			a.logger.Debug("change network state connected failed", "err", err)
		}
		if !a.sleep(ctx, 2*time.Second) {
			return "", ctx.Err()
		}
	}

	a.cacheLocalIEEE(ctx)
	a.cacheFirmwareVersion(ctx)
	a.persistNetworkState()

	go a.runEndpointInstaller(a.ctx)

	return "resumed", nil
}

func (a *Adapter) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop cancels the adapter's background work and closes the driver.
func (a *Adapter) Stop() {
	a.cancel()
	a.pending.Stop()
	if err := a.driver.Close(); err != nil {
		a.logger.Warn("driver close failed", "err", err)
	}
}

// --- §4.7 startup reconciliation ---

func (a *Adapter) reconcilePANID(ctx context.Context) bool {
	want := []byte{byte(a.config.PanID), byte(a.config.PanID >> 8)}
	cur, err := a.driver.ReadParameter(ctx, driver.ParamPANID)
	if err == nil && bytes.Equal(cur, want) {
		return false
	}
	if err := a.driver.WriteParameter(ctx, driver.ParamPANID, want); err != nil {
		a.logger.Debug("write PAN_ID failed", "err", err)
		return false
	}
	return true
}

func (a *Adapter) reconcileExtPanID(ctx context.Context) bool {
	want := a.config.ExtPanID[:]
	cur, err := a.driver.ReadParameter(ctx, driver.ParamAPSExtPANID)
	if err == nil && bytes.Equal(cur, want) {
		return false
	}
	if err := a.driver.WriteParameter(ctx, driver.ParamAPSExtPANID, want); err != nil {
		a.logger.Debug("write APS_EXT_PAN_ID failed", "err", err)
		return false
	}
	return true
}

func (a *Adapter) reconcileChannel(ctx context.Context) bool {
	mask := zdp.ChannelMask(a.config.Channel)
	want := make([]byte, 4)
	binary.LittleEndian.PutUint32(want, mask)
	cur, err := a.driver.ReadParameter(ctx, driver.ParamChannel)
	if err == nil && bytes.Equal(cur, want) {
		return false
	}
	if err := a.driver.WriteParameter(ctx, driver.ParamChannel, want); err != nil {
		a.logger.Debug("write CHANNEL failed", "err", err)
		return false
	}
	return true
}

func (a *Adapter) reconcileNetworkKey(ctx context.Context) bool {
	want := a.config.NetworkKey[:]
	cur, err := a.driver.ReadParameter(ctx, driver.ParamNetworkKey)
	if err == nil && bytes.Equal(cur, want) {
		return false
	}
	if err := a.driver.WriteParameter(ctx, driver.ParamNetworkKey, want); err != nil {
		a.logger.Debug("write NETWORK_KEY failed", "err", err)
		return false
	}
	return true
}

func (a *Adapter) cacheLocalIEEE(ctx context.Context) {
	val, err := a.driver.ReadParameter(ctx, driver.ParamMACAddress)
	if err != nil || len(val) < 8 {
		a.logger.Warn("read coordinator IEEE failed", "err", err)
		return
	}
	copy(a.localIEEE[:], val[:8])
}

func (a *Adapter) cacheFirmwareVersion(ctx context.Context) {
	fw, err := a.driver.ReadFirmwareVersion(ctx)
	if err != nil {
		a.logger.Warn("read firmware version failed", "err", err)
		return
	}
	a.firmwareVersion = fw
}

func (a *Adapter) persistNetworkState() {
	err := a.store.SaveNetworkState(&store.NetworkState{
		Channel:    a.config.Channel,
		PanID:      a.config.PanID,
		ExtPanID:   fmt.Sprintf("%X", a.config.ExtPanID),
		NetworkKey: hex.EncodeToString(a.config.NetworkKey[:]),
		Formed:     true,
	})
	if err != nil {
		a.logger.Error("persist network state failed", "err", err)
	}
}

// --- §4.8 coordinator endpoint installer ---

func (a *Adapter) runEndpointInstaller(ctx context.Context) {
	if !a.sleep(ctx, 3*time.Second) {
		return
	}
	for {
		installed, err := a.checkAndInstallCoordinatorEndpoint(ctx)
		if err != nil {
			a.logger.Warn("coordinator endpoint check failed, retrying", "err", err)
		} else if installed {
			return
		}
		if !a.sleep(ctx, 3*time.Second) {
			return
		}
	}
}

func (a *Adapter) checkAndInstallCoordinatorEndpoint(ctx context.Context) (bool, error) {
	sd, err := a.SimpleDescriptor(ctx, coordinatorNwkAddr, 1)
	if err != nil {
		return false, err
	}
	if zdp.HasAllClusters(sd.InClusters, zdp.RequiredCoordinatorInputClusters) &&
		zdp.HasAllClusters(sd.OutClusters, zdp.RequiredCoordinatorOutputClusters) {
		return true, nil
	}
	a.logger.Info("installing coordinator endpoint descriptor")
	if err := a.driver.WriteParameter(ctx, driver.ParamEndpoint, zdp.CoordinatorEndpointDescriptor()); err != nil {
		return false, fmt.Errorf("adapter: write coordinator endpoint: %w", err)
	}
	return false, nil
}

// --- §4.3 dispatcher operations ---

func (a *Adapter) txOptions() uint8 {
	if a.config.Delay >= 200 {
		return aps.TxOptionACK
	}
	return 0
}

// requestZDP submits a ZDP request over clusterOut and awaits the
// correlated reply over clusterIn, matched by (nwk, tsn) per §3.3.
func (a *Adapter) requestZDP(ctx context.Context, nwk uint16, clusterOut, clusterIn uint16, payload []byte, tsn uint8, timeout time.Duration) ([]byte, error) {
	return a.requestZDPWithTxOptions(ctx, nwk, clusterOut, clusterIn, payload, tsn, timeout, a.txOptions())
}

// requestZDPWithTxOptions is requestZDP with an explicit txOptions
// override, for operations that must force APS ACK regardless of the
// delay-based default (§4.3 bind/unbind, §9).
func (a *Adapter) requestZDPWithTxOptions(ctx context.Context, nwk uint16, clusterOut, clusterIn uint16, payload []byte, tsn uint8, timeout time.Duration, txOptions uint8) ([]byte, error) {
	resultCh := a.pending.Register(nwk, 0, clusterIn, &tsn, timeout)
	req := aps.DataRequest{
		RequestID:    a.txAlloc.Next(),
		DestAddrMode: aps.AddrModeNWK,
		DestAddr16:   nwk,
		ProfileID:    0,
		ClusterID:    clusterOut,
		ASDUPayload:  payload,
		TxOptions:    txOptions,
		Radius:       aps.DefaultRadius,
	}
	if err := a.queue.Submit(ctx, func() error { return a.driver.EnqueueSendDataRequest(ctx, req) }); err != nil {
		return nil, fmt.Errorf("adapter: submit request to 0x%04X: %w", nwk, err)
	}
	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Response.ASDUPayload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PermitJoin opens or closes the network for device joining (§4.3). On
// failure it retries indefinitely until ctx is cancelled.
func (a *Adapter) PermitJoin(ctx context.Context, seconds uint8, nwkAddr uint16) error {
	for {
		tsn := a.txAlloc.Next()
		payload := zdp.BuildPermitJoin(tsn, seconds)
		req := aps.DataRequest{
			RequestID:    a.txAlloc.Next(),
			DestAddrMode: aps.AddrModeNWK,
			DestAddr16:   nwkAddr,
			ProfileID:    0,
			ClusterID:    zdp.ClusterPermitJoinReq,
			ASDUPayload:  payload,
			TxOptions:    a.txOptions(),
			Radius:       aps.DefaultRadius,
		}
		err := a.queue.Submit(ctx, func() error { return a.driver.EnqueueSendDataRequest(ctx, req) })
		if err == nil {
			if werr := a.driver.WriteParameter(ctx, driver.ParamPermitJoin, []byte{seconds}); werr != nil {
				a.logger.Debug("write PERMIT_JOIN parameter failed", "err", werr)
			}
			a.joinPermitted.Store(seconds > 0)
			a.logger.Info("permit join", "seconds", seconds)
			return nil
		}
		a.logger.Warn("permit join submit failed, retrying", "err", err)
		if !a.sleep(ctx, time.Second) {
			return ctx.Err()
		}
	}
}

// NodeDescriptor queries a device's node descriptor (§4.3).
func (a *Adapter) NodeDescriptor(ctx context.Context, nwk uint16) (zdp.NodeDescriptor, error) {
	tsn := a.txAlloc.Next()
	payload := zdp.BuildNodeDescriptorRequest(tsn, nwk)
	resp, err := a.requestZDP(ctx, nwk, zdp.ClusterNodeDescriptorReq, zdp.ClusterNodeDescriptorRsp, payload, tsn, zdpTimeout)
	if err != nil {
		return zdp.NodeDescriptor{}, err
	}
	nd, err := zdp.ParseNodeDescriptorResponse(resp)
	if err != nil {
		return zdp.NodeDescriptor{}, err
	}
	if ieee, ok := a.directory.IEEEOf(nwk); ok {
		a.directory.Update(ieee, nwk)
	}
	return nd, nil
}

// ActiveEndpoints queries a device's active endpoint list (§4.3).
func (a *Adapter) ActiveEndpoints(ctx context.Context, nwk uint16) ([]uint8, error) {
	tsn := a.txAlloc.Next()
	payload := zdp.BuildActiveEndpointsRequest(tsn, nwk)
	resp, err := a.requestZDP(ctx, nwk, zdp.ClusterActiveEndpointsReq, zdp.ClusterActiveEndpointsRsp, payload, tsn, zdpTimeout)
	if err != nil {
		return nil, err
	}
	return zdp.ParseActiveEndpointsResponse(resp)
}

// SimpleDescriptor queries a single endpoint's simple descriptor (§4.3).
func (a *Adapter) SimpleDescriptor(ctx context.Context, nwk uint16, endpoint uint8) (zdp.SimpleDescriptor, error) {
	tsn := a.txAlloc.Next()
	payload := zdp.BuildSimpleDescriptorRequest(tsn, nwk, endpoint)
	resp, err := a.requestZDP(ctx, nwk, zdp.ClusterSimpleDescriptorReq, zdp.ClusterSimpleDescriptorRsp, payload, tsn, zdpTimeout)
	if err != nil {
		return zdp.SimpleDescriptor{}, err
	}
	return zdp.ParseSimpleDescriptorResponse(resp)
}

// LQI queries the full neighbor table, paginating until the reported total
// is satisfied (§4.3, §8 test S3).
func (a *Adapter) LQI(ctx context.Context, nwk uint16) ([]zdp.Neighbor, error) {
	var neighbors []zdp.Neighbor
	var startIndex uint8
	for {
		tsn := a.txAlloc.Next()
		payload := zdp.BuildLQIRequest(tsn, startIndex)
		resp, err := a.requestZDP(ctx, nwk, zdp.ClusterLQIReq, zdp.ClusterLQIRsp, payload, tsn, zdpTimeout)
		if err != nil {
			return nil, err
		}
		page, err := zdp.ParseLQIResponse(resp)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, page.Neighbors...)
		if len(page.Neighbors) == 0 || uint8(len(neighbors)) >= page.Total {
			break
		}
		startIndex = uint8(len(neighbors))
	}
	return neighbors, nil
}

// RoutingTable queries the full routing table, paginating like LQI (§4.3).
func (a *Adapter) RoutingTable(ctx context.Context, nwk uint16) ([]zdp.Route, error) {
	var routes []zdp.Route
	var startIndex uint8
	for {
		tsn := a.txAlloc.Next()
		payload := zdp.BuildRoutingTableRequest(tsn, startIndex)
		resp, err := a.requestZDP(ctx, nwk, zdp.ClusterRoutingTableReq, zdp.ClusterRoutingTableRsp, payload, tsn, zdpTimeout)
		if err != nil {
			return nil, err
		}
		page, err := zdp.ParseRoutingTableResponse(resp)
		if err != nil {
			return nil, err
		}
		routes = append(routes, page.Routes...)
		if len(page.Routes) == 0 || uint8(len(routes)) >= page.Total {
			break
		}
		startIndex = uint8(len(routes))
	}
	return routes, nil
}

// Bind creates a binding on nwk (§4.3). Bind/unbind always request APS ACK
// (§9), overriding the delay-based default.
func (a *Adapter) Bind(ctx context.Context, nwk uint16, srcIEEE [8]byte, srcEndpoint uint8, clusterID uint16, dst zdp.BindTarget) error {
	tsn := a.txAlloc.Next()
	payload := zdp.BuildBind(tsn, srcIEEE, srcEndpoint, clusterID, dst)
	resp, err := a.requestZDPWithTxOptions(ctx, nwk, zdp.ClusterBindReq, zdp.ClusterBindRsp, payload, tsn, zdpTimeout, aps.TxOptionACK)
	if err != nil {
		return err
	}
	return statusErr("bind", resp)
}

// Unbind removes a binding on nwk (§4.3). See Bind for the APS ACK note.
func (a *Adapter) Unbind(ctx context.Context, nwk uint16, srcIEEE [8]byte, srcEndpoint uint8, clusterID uint16, dst zdp.BindTarget) error {
	tsn := a.txAlloc.Next()
	payload := zdp.BuildBind(tsn, srcIEEE, srcEndpoint, clusterID, dst)
	resp, err := a.requestZDPWithTxOptions(ctx, nwk, zdp.ClusterUnbindReq, zdp.ClusterUnbindRsp, payload, tsn, zdpTimeout, aps.TxOptionACK)
	if err != nil {
		return err
	}
	return statusErr("unbind", resp)
}

func statusErr(op string, resp []byte) error {
	status, err := zdp.StatusOf(resp)
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("adapter: %s: status: %d", op, status)
	}
	return nil
}

// RemoveDevice issues a Mgmt_Leave_req and, on success, drops the device
// from the directory and emits deviceLeave (§4.3, §6.1).
func (a *Adapter) RemoveDevice(ctx context.Context, nwk uint16, ieee [8]byte) error {
	tsn := a.txAlloc.Next()
	payload := zdp.BuildRemoveDevice(tsn)
	resp, err := a.requestZDP(ctx, nwk, zdp.ClusterMgmtLeaveReq, zdp.ClusterMgmtLeaveRsp, payload, tsn, zdpTimeout)
	if err != nil {
		return err
	}
	if err := statusErr("removeDevice", resp); err != nil {
		return err
	}
	ieeeStr := ieeeString(ieee)
	a.directory.Remove(ieeeStr)
	a.events.Emit(Event{Type: EventDeviceLeave, Data: AddrEvent{NetworkAddress: nwk, IEEEAddr: ieeeStr}})
	return nil
}

// SendZclFrameToEndpoint transmits a raw encoded ZCL frame to a single
// endpoint (§4.3). When expectResponse is true and the frame's
// disable-default-response flag is not set, it awaits the correlated reply
// via the pending-request table on (nwk, 0x0104, clusterID, tsn), whatever
// profile the frame itself was sent on.
func (a *Adapter) SendZclFrameToEndpoint(ctx context.Context, nwk uint16, dstEndpoint, srcEndpoint uint8, clusterID uint16, zclFrame []byte, expectResponse bool, timeout time.Duration) (*aps.DataResponse, error) {
	header, err := zcl.ParseHeader(zclFrame)
	if err != nil {
		return nil, fmt.Errorf("adapter: send zcl frame: %w", err)
	}
	profileID := profileZigbeeHA
	if srcEndpoint == GPEndpoint && dstEndpoint == GPEndpoint {
		profileID = ProfileGreenPower
	}
	req := aps.DataRequest{
		RequestID:    a.txAlloc.Next(),
		DestAddrMode: aps.AddrModeNWK,
		DestAddr16:   nwk,
		DestEndpoint: dstEndpoint,
		SrcEndpoint:  srcEndpoint,
		ProfileID:    profileID,
		ClusterID:    clusterID,
		ASDUPayload:  zclFrame,
		TxOptions:    a.txOptions(),
		Radius:       aps.DefaultRadius,
	}

	await := expectResponse && !header.DisableDefaultResponse
	var resultCh <-chan pending.Result
	if await {
		tsn := header.TransactionSequence
		resultCh = a.pending.Register(nwk, profileZigbeeHA, clusterID, &tsn, timeout)
	}
	if err := a.queue.Submit(ctx, func() error { return a.driver.EnqueueSendDataRequest(ctx, req) }); err != nil {
		return nil, fmt.Errorf("adapter: submit zcl frame: %w", err)
	}
	if !await {
		return nil, nil
	}
	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Response, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendZclFrameToGroup broadcasts a raw ZCL frame to a group, fire-and-forget (§4.3).
func (a *Adapter) SendZclFrameToGroup(ctx context.Context, groupID uint16, endpoint uint8, clusterID uint16, zclFrame []byte) error {
	req := aps.DataRequest{
		RequestID:    a.txAlloc.Next(),
		DestAddrMode: aps.AddrModeGroup,
		DestAddr16:   groupID,
		DestEndpoint: endpoint,
		SrcEndpoint:  endpoint,
		ProfileID:    profileZigbeeHA,
		ClusterID:    clusterID,
		ASDUPayload:  zclFrame,
		TxOptions:    a.txOptions(),
		Radius:       aps.Unlimited,
	}
	return a.queue.Submit(ctx, func() error { return a.driver.EnqueueSendDataRequest(ctx, req) })
}

// SendZclFrameToAll broadcasts a raw ZCL frame to the network, fire-and-forget (§4.3).
func (a *Adapter) SendZclFrameToAll(ctx context.Context, endpoint uint8, clusterID uint16, zclFrame []byte) error {
	req := aps.DataRequest{
		RequestID:    a.txAlloc.Next(),
		DestAddrMode: aps.AddrModeNWK,
		DestAddr16:   aps.BroadcastAll,
		DestEndpoint: endpoint,
		SrcEndpoint:  endpoint,
		ProfileID:    profileZigbeeHA,
		ClusterID:    clusterID,
		ASDUPayload:  zclFrame,
		TxOptions:    a.txOptions(),
		Radius:       aps.Unlimited,
	}
	return a.queue.Submit(ctx, func() error { return a.driver.EnqueueSendDataRequest(ctx, req) })
}

// --- §4.6 inbound router ---

func (a *Adapter) handleDriverEvent(indication *driver.DataIndication, greenPower *driver.GreenPowerIndication) {
	if indication != nil {
		a.routeDataIndication(indication.Response)
	}
	if greenPower != nil {
		a.routeGreenPower(*greenPower)
	}
}

func (a *Adapter) routeDataIndication(resp aps.DataResponse) {
	if resp.SrcAddrMode == aps.AddrModeIEEE || resp.HasSrcAddr64 {
		ieeeStr := ieeeString(resp.SrcAddr64)
		shortAddr, ok := a.directory.ShortAddrOf(ieeeStr)
		if !ok {
			a.logger.Debug("dropping indication: unresolved srcAddr64", "ieee", ieeeStr)
			return
		}
		resp.SrcAddr16 = shortAddr
	}

	var header zcl.Header
	var haveHeader bool
	var tsnPtr *uint8
	if resp.ProfileID != 0 {
		if h, err := zcl.ParseHeader(resp.ASDUPayload); err == nil {
			header = h
			haveHeader = true
			tsnPtr = &h.TransactionSequence
		}
	} else if len(resp.ASDUPayload) > 0 {
		// ZDP responses carry their tsn as the first payload byte (§4.4).
		zdpTsn := resp.ASDUPayload[0]
		tsnPtr = &zdpTsn
	}

	a.pending.Match(&resp, tsnPtr)

	if resp.ProfileID == 0 && resp.ClusterID == zdp.ClusterDeviceAnnounce {
		a.routeDeviceAnnounce(resp)
		return
	}

	if resp.ProfileID == 0 {
		return
	}

	if !haveHeader {
		a.logger.Debug("dropping indication: unparseable ZCL header", "cluster", resp.ClusterID, "len", len(resp.ASDUPayload))
		return
	}

	payload := ZclPayload{
		Address:             addressFor(resp),
		Data:                resp.ASDUPayload,
		ClusterID:           resp.ClusterID,
		Endpoint:            resp.SrcEndpoint,
		LinkQuality:         resp.LQI,
		GroupID:             groupIDFor(resp),
		WasBroadcast:        resp.DestAddrMode == aps.AddrModeGroup || resp.DestAddrMode == aps.AddrModeBroadcast,
		DestinationEndpoint: resp.DestEndpoint,
	}
	h := header
	payload.Header = &h
	a.logger.Debug("zcl indication", "cluster", zcl.ClusterName(resp.ClusterID), "command", zcl.CommandName(header), "endpoint", resp.SrcEndpoint)
	if attrs, err := zcl.DecodeAttributes(header, resp.ASDUPayload[header.HeaderLength:]); err == nil {
		payload.Attributes = attrs
	} else {
		a.logger.Debug("attribute decode skipped", "cluster", zcl.ClusterName(resp.ClusterID), "command", zcl.CommandName(header), "err", err)
	}
	a.waitress.Offer(waitressPayloadFor(header, payload))
	a.events.Emit(Event{Type: EventZclPayload, Data: payload})
}

func (a *Adapter) routeDeviceAnnounce(resp aps.DataResponse) {
	da, err := zdp.ParseDeviceAnnounce(resp.ASDUPayload)
	if err != nil {
		a.logger.Debug("malformed device announce", "err", err)
		return
	}
	ieeeStr := ieeeString(da.IEEE)
	a.directory.Update(ieeeStr, da.NwkAddr)

	eventType := EventDeviceAnnounce
	if a.joinPermitted.Load() {
		eventType = EventDeviceJoined
	}
	a.events.Emit(Event{Type: eventType, Data: AddrEvent{NetworkAddress: da.NwkAddr, IEEEAddr: ieeeStr}})
}

func (a *Adapter) routeGreenPower(gp driver.GreenPowerIndication) {
	header := buildGreenPowerHeader(gp)
	data := append(header, gp.CommandFrame...)
	address := uint64(gp.SrcID & 0xFFFF)

	parsedHeader, _ := zcl.ParseHeader(header)
	payload := ZclPayload{
		Address:             address,
		Data:                data,
		ClusterID:           clusterGreenPower,
		Header:              &parsedHeader,
		Endpoint:            GPEndpoint,
		LinkQuality:         0xFF,
		GroupID:             gpGroupID,
		WasBroadcast:        true,
		DestinationEndpoint: GPEndpoint,
	}
	a.waitress.Offer(waitressPayloadFor(parsedHeader, ZclPayload{Address: address, ClusterID: clusterGreenPower, Endpoint: GPEndpoint}))
	a.events.Emit(Event{Type: EventZclPayload, Data: payload})
}

// buildGreenPowerHeader synthesizes a 15-byte ZCL-shaped header over the
// Green Power cluster (§4.6): a standard 3-byte header (frame control, tsn,
// command id) followed by the GP source ID and frame counter that
// downstream code needs but a standard ZCL header has no room for.
func buildGreenPowerHeader(gp driver.GreenPowerIndication) []byte {
	buf := make([]byte, 15)
	buf[0] = zcl.FrameTypeCluster | zcl.DirectionToClient
	buf[1] = gp.SeqNr
	buf[2] = gp.CommandID
	binary.LittleEndian.PutUint32(buf[3:7], gp.SrcID)
	binary.LittleEndian.PutUint32(buf[7:11], gp.FrameCounter)
	return buf
}

func waitressPayloadFor(header zcl.Header, zp ZclPayload) waitress.Payload {
	direction := waitress.DirectionToServer
	if header.Direction != 0 {
		direction = waitress.DirectionToClient
	}
	return waitress.Payload{
		Address:           zp.Address,
		Endpoint:          zp.Endpoint,
		Tsn:               header.TransactionSequence,
		FrameType:         waitress.FrameType(header.FrameType),
		ClusterID:         zp.ClusterID,
		CommandIdentifier: header.CommandID,
		Direction:         direction,
	}
}

func addressFor(resp aps.DataResponse) uint64 {
	if resp.DestAddrMode == aps.AddrModeIEEE {
		return binary.LittleEndian.Uint64(resp.SrcAddr64[:])
	}
	return uint64(resp.SrcAddr16)
}

func groupIDFor(resp aps.DataResponse) uint16 {
	if resp.DestAddrMode == aps.AddrModeGroup {
		return resp.DestAddr16
	}
	return 0
}

// ieeeString formats an 8-byte IEEE address (wire order, little-endian) as
// the "0x"-prefixed big-endian hex string used throughout the event
// vocabulary (§4.6): reverse byte order, then hex-encode.
func ieeeString(ieee [8]byte) string {
	var rev [8]byte
	for i := 0; i < 8; i++ {
		rev[i] = ieee[7-i]
	}
	return "0x" + hex.EncodeToString(rev[:])
}

// --- §6.2 diagnostic / lifecycle operations ---

// GetCoordinator reports the coordinator's own identity (§6.2, §4.8).
func (a *Adapter) GetCoordinator() CoordinatorInfo {
	return CoordinatorInfo{
		NetworkAddress: coordinatorNwkAddr,
		ManufacturerID: manufacturerID,
		IEEEAddr:       a.localIEEE,
		Endpoints:      []uint8{1, GPEndpoint},
	}
}

// GetCoordinatorVersion returns the firmware version cached at Start.
func (a *Adapter) GetCoordinatorVersion() driver.FirmwareVersion {
	return a.firmwareVersion
}

// GetNetworkParameters returns the configured network parameters.
func (a *Adapter) GetNetworkParameters() NetworkParameters {
	return NetworkParameters{
		PanID:         a.config.PanID,
		ExtendedPanID: a.config.ExtPanID,
		Channel:       a.config.Channel,
	}
}

// WaitFor registers a waitress matcher (§4.5, §6.2).
func (a *Adapter) WaitFor(m waitress.Matcher, timeout time.Duration) (<-chan waitress.Result, func()) {
	return a.waitress.Wait(m, timeout)
}

// SupportsBackup always reports false: deCONZ radios have no NVRAM export
// path this core exposes (§6.2).
func (a *Adapter) SupportsBackup() bool { return false }

// --- §6.2 unsupported operations ---

func (a *Adapter) AddInstallCode(context.Context, [8]byte, []byte) error {
	return fmt.Errorf("adapter: addInstallCode: %w", ErrNotSupported)
}

func (a *Adapter) Reset(context.Context) error {
	return fmt.Errorf("adapter: reset: %w", ErrNotSupported)
}

func (a *Adapter) Backup(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("adapter: backup: %w", ErrNotSupported)
}

func (a *Adapter) RestoreChannelInterPAN(context.Context) error {
	return fmt.Errorf("adapter: restoreChannelInterPAN: %w", ErrNotSupported)
}

func (a *Adapter) SendZclFrameInterPANToIeeeAddr(context.Context, [8]byte, []byte) error {
	return fmt.Errorf("adapter: sendZclFrameInterPANToIeeeAddr: %w", ErrNotSupported)
}

func (a *Adapter) SendZclFrameInterPANBroadcast(context.Context, []byte) error {
	return fmt.Errorf("adapter: sendZclFrameInterPANBroadcast: %w", ErrNotSupported)
}

func (a *Adapter) SetChannelInterPAN(context.Context, uint8) error {
	return fmt.Errorf("adapter: setChannelInterPAN: %w", ErrNotSupported)
}

func (a *Adapter) ChangeChannel(context.Context, uint8) error {
	return fmt.Errorf("adapter: changeChannel: %w", ErrNotSupported)
}

func (a *Adapter) SetTransmitPower(context.Context, int8) error {
	return fmt.Errorf("adapter: setTransmitPower: %w", ErrNotSupported)
}
