package driver

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"deconz-adapter/internal/aps"
)

// SerialDriver is the concrete deCONZ Driver backed by a real serial port
// (§10). Grounded on the teacher's NRF52840NCP: one goroutine reads and
// demultiplexes frames by sequence number, callers block on a
// per-request channel populated by that goroutine.
type SerialDriver struct {
	portName string
	baudRate int
	logger   *slog.Logger

	port   serial.Port
	reader *bufio.Reader

	seq atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint8]chan frame

	handlerMu sync.RWMutex
	handler   EventHandler

	writeMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSerialDriver creates a driver bound to the named serial port. Open
// must be called before use.
func NewSerialDriver(portName string, baudRate int, logger *slog.Logger) *SerialDriver {
	if baudRate <= 0 {
		baudRate = 38400
	}
	return &SerialDriver{
		portName: portName,
		baudRate: baudRate,
		logger:   logger,
		pending:  make(map[uint8]chan frame),
		done:     make(chan struct{}),
	}
}

// OnEvent registers the driver's sole event handler. Must be called
// before Open.
func (d *SerialDriver) OnEvent(handler EventHandler) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.handler = handler
}

// Open opens the serial port, 8N1 at the configured baud, and starts the
// background read loop.
func (d *SerialDriver) Open(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(d.portName, mode)
	if err != nil {
		return fmt.Errorf("driver: open %s: %w", d.portName, err)
	}
	d.port = port
	d.reader = bufio.NewReader(port)

	d.wg.Add(1)
	go d.readLoop()
	return nil
}

// Close terminates the read loop and closes the port.
func (d *SerialDriver) Close() error {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	err := d.port.Close()
	d.wg.Wait()

	d.pendingMu.Lock()
	for seq, ch := range d.pending {
		close(ch)
		delete(d.pending, seq)
	}
	d.pendingMu.Unlock()
	return err
}

func (d *SerialDriver) nextSeq() uint8 {
	return uint8(d.seq.Add(1))
}

// request sends a command frame and waits for its response, matched by
// sequence number, exactly like the teacher's hlPending correlation
// (nrf52840.go) but over one framing level instead of two.
func (d *SerialDriver) request(ctx context.Context, commandID uint8, payload []byte) (frame, error) {
	seq := d.nextSeq()

	ch := make(chan frame, 1)
	d.pendingMu.Lock()
	d.pending[seq] = ch
	d.pendingMu.Unlock()
	defer func() {
		d.pendingMu.Lock()
		delete(d.pending, seq)
		d.pendingMu.Unlock()
	}()

	raw := encodeFrame(frame{CommandID: commandID, Seq: seq, Payload: payload})
	d.writeMu.Lock()
	_, err := d.port.Write(raw)
	d.writeMu.Unlock()
	if err != nil {
		return frame{}, fmt.Errorf("driver: write %s: %w", commandName(commandID), err)
	}

	select {
	case resp := <-ch:
		if resp.Status != 0 {
			return resp, fmt.Errorf("driver: %s: status 0x%02X", commandName(commandID), resp.Status)
		}
		return resp, nil
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-d.done:
		return frame{}, fmt.Errorf("driver: closed")
	}
}

// readLoop reads SLIP-framed packets and either resolves a pending
// request or invokes the event handler for indication frames.
func (d *SerialDriver) readLoop() {
	defer d.wg.Done()

	backoff := 10 * time.Millisecond
	const maxBackoff = 2 * time.Second

	for {
		select {
		case <-d.done:
			return
		default:
		}

		stuffed, err := d.reader.ReadBytes(slipEnd)
		if err != nil {
			select {
			case <-d.done:
				return
			default:
			}
			if err != io.EOF {
				d.logger.Error("driver read error", "err", err)
			}
			select {
			case <-time.After(backoff):
			case <-d.done:
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = 10 * time.Millisecond

		// Drop the trailing END delimiter and skip empty frames (a leading
		// END from the previous packet's terminator).
		if len(stuffed) == 0 {
			continue
		}
		stuffed = stuffed[:len(stuffed)-1]
		if len(stuffed) == 0 {
			continue
		}

		body, err := slipUnstuff(stuffed)
		if err != nil {
			d.logger.Warn("driver SLIP unstuff error", "err", err)
			continue
		}
		f, err := decodeFrame(body)
		if err != nil {
			d.logger.Warn("driver frame decode error", "err", err)
			continue
		}

		switch f.CommandID {
		case cmdDataIndication:
			d.handleDataIndication(f.Payload)
		case cmdDataIndicationGP:
			d.handleGreenPowerIndication(f.Payload)
		default:
			d.pendingMu.Lock()
			ch, ok := d.pending[f.Seq]
			d.pendingMu.Unlock()
			if ok {
				select {
				case ch <- f:
				default:
				}
			} else {
				d.logger.Warn("driver orphaned response", "cmd", commandName(f.CommandID), "seq", f.Seq)
			}
		}
	}
}

func (d *SerialDriver) handleDataIndication(payload []byte) {
	resp, err := decodeDataIndicationPayload(payload)
	if err != nil {
		d.logger.Warn("driver data indication decode error", "err", err)
		return
	}
	d.handlerMu.RLock()
	handler := d.handler
	d.handlerMu.RUnlock()
	if handler != nil {
		handler(&DataIndication{Response: resp}, nil)
	}
}

func (d *SerialDriver) handleGreenPowerIndication(payload []byte) {
	gp, err := decodeGreenPowerIndicationPayload(payload)
	if err != nil {
		d.logger.Warn("driver green power indication decode error", "err", err)
		return
	}
	d.handlerMu.RLock()
	handler := d.handler
	d.handlerMu.RUnlock()
	if handler != nil {
		handler(nil, &gp)
	}
}

// --- Driver interface ---

func (d *SerialDriver) ReadParameter(ctx context.Context, id ParameterID) ([]byte, error) {
	resp, err := d.request(ctx, cmdReadParameter, []byte{uint8(id)})
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) < 1 || resp.Payload[0] != uint8(id) {
		return nil, fmt.Errorf("driver: read parameter 0x%02X: malformed response", id)
	}
	return resp.Payload[1:], nil
}

func (d *SerialDriver) WriteParameter(ctx context.Context, id ParameterID, value []byte) error {
	payload := append([]byte{uint8(id)}, value...)
	_, err := d.request(ctx, cmdWriteParameter, payload)
	return err
}

func (d *SerialDriver) ReadFirmwareVersion(ctx context.Context) (FirmwareVersion, error) {
	resp, err := d.request(ctx, cmdReadFirmwareVersion, nil)
	if err != nil {
		return FirmwareVersion{}, err
	}
	if len(resp.Payload) < 4 {
		return FirmwareVersion{}, fmt.Errorf("driver: firmware version response too short: %d bytes", len(resp.Payload))
	}
	raw := binary.LittleEndian.Uint32(resp.Payload[:4])
	return FirmwareVersion{
		Raw:      raw,
		Platform: resp.Payload[1],
		Minor:    resp.Payload[2],
		Major:    resp.Payload[3],
	}, nil
}

func (d *SerialDriver) ChangeNetworkState(ctx context.Context, state NetworkState) error {
	_, err := d.request(ctx, cmdChangeNetworkState, []byte{uint8(state)})
	return err
}

func (d *SerialDriver) EnqueueSendDataRequest(ctx context.Context, req aps.DataRequest) error {
	payload := encodeDataRequestPayload(req)
	resp, err := d.request(ctx, cmdEnqueueSendDataRequest, payload)
	if err != nil {
		return err
	}
	if len(resp.Payload) < 1 || resp.Payload[0] != req.RequestID {
		d.logger.Warn("driver send data request id mismatch", "sent", req.RequestID)
	}
	return nil
}

// --- Wire payload codecs ---

func encodeDataRequestPayload(req aps.DataRequest) []byte {
	buf := make([]byte, 20+len(req.ASDUPayload))
	buf[0] = req.RequestID
	buf[1] = req.DestAddrMode
	if req.DestAddrMode == aps.AddrModeIEEE {
		copy(buf[2:10], req.DestAddr64[:])
	} else {
		binary.LittleEndian.PutUint16(buf[2:4], req.DestAddr16)
	}
	buf[10] = req.DestEndpoint
	binary.LittleEndian.PutUint16(buf[11:13], req.ProfileID)
	binary.LittleEndian.PutUint16(buf[13:15], req.ClusterID)
	buf[15] = req.SrcEndpoint
	binary.LittleEndian.PutUint16(buf[16:18], uint16(len(req.ASDUPayload)))
	copy(buf[18:18+len(req.ASDUPayload)], req.ASDUPayload)
	tail := 18 + len(req.ASDUPayload)
	buf[tail] = req.TxOptions
	buf[tail+1] = req.Radius
	return buf
}

func decodeDataIndicationPayload(payload []byte) (aps.DataResponse, error) {
	if len(payload) < 18 {
		return aps.DataResponse{}, fmt.Errorf("driver: data indication too short: %d bytes", len(payload))
	}
	var resp aps.DataResponse
	resp.SrcAddrMode = payload[0]
	if resp.SrcAddrMode == aps.AddrModeIEEE {
		copy(resp.SrcAddr64[:], payload[1:9])
		resp.HasSrcAddr64 = true
	} else {
		resp.SrcAddr16 = binary.LittleEndian.Uint16(payload[1:3])
	}
	resp.SrcEndpoint = payload[9]
	resp.DestAddrMode = payload[10]
	resp.DestAddr16 = binary.LittleEndian.Uint16(payload[11:13])
	resp.DestEndpoint = payload[13]
	resp.ProfileID = binary.LittleEndian.Uint16(payload[14:16])
	resp.ClusterID = binary.LittleEndian.Uint16(payload[16:18])
	if len(payload) < 20 {
		return aps.DataResponse{}, fmt.Errorf("driver: data indication truncated before ASDU length")
	}
	asduLen := binary.LittleEndian.Uint16(payload[18:20])
	if len(payload) < 20+int(asduLen)+2 {
		return aps.DataResponse{}, fmt.Errorf("driver: data indication truncated ASDU/LQI/RSSI")
	}
	resp.ASDUPayload = append([]byte(nil), payload[20:20+int(asduLen)]...)
	tail := 20 + int(asduLen)
	resp.LQI = payload[tail]
	resp.RSSI = int8(payload[tail+1])
	return resp, nil
}

func decodeGreenPowerIndicationPayload(payload []byte) (GreenPowerIndication, error) {
	if len(payload) < 10 {
		return GreenPowerIndication{}, fmt.Errorf("driver: green power indication too short: %d bytes", len(payload))
	}
	gp := GreenPowerIndication{
		SrcID:        binary.LittleEndian.Uint32(payload[0:4]),
		SeqNr:        payload[4],
		CommandID:    payload[5],
		FrameCounter: binary.LittleEndian.Uint32(payload[6:10]),
	}
	if len(payload) > 10 {
		frameSize := int(payload[10])
		if len(payload) < 11+frameSize {
			return GreenPowerIndication{}, fmt.Errorf("driver: green power command frame truncated")
		}
		gp.CommandFrame = append([]byte(nil), payload[11:11+frameSize]...)
	}
	return gp, nil
}
