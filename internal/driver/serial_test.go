package driver

import (
	"bytes"
	"testing"

	"deconz-adapter/internal/aps"
)

func TestMacAddrStringArrayRoundTrip(t *testing.T) {
	s := "00:0D:6F:00:11:22:33:44"
	arr, err := MacAddrStringToArray(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := MacAddrArrayToString(arr)
	if got != s {
		t.Fatalf("round trip = %q, want %q", got, s)
	}
}

func TestMacAddrStringToArrayRejectsMalformed(t *testing.T) {
	if _, err := MacAddrStringToArray("00:11:22"); err == nil {
		t.Fatal("expected error for too few octets")
	}
	if _, err := MacAddrStringToArray("ZZ:11:22:33:44:55:66:77"); err == nil {
		t.Fatal("expected error for non-hex octet")
	}
}

func TestEncodeDataRequestThenDecodeAsIndicationRecoversASDU(t *testing.T) {
	req := aps.DataRequest{
		RequestID:    5,
		DestAddrMode: aps.AddrModeNWK,
		DestAddr16:   0x1234,
		DestEndpoint: 1,
		SrcEndpoint:  1,
		ProfileID:    0x0104,
		ClusterID:    0x0006,
		ASDUPayload:  []byte{0x01, 0x02, 0x0A, 0x00, 0x01},
		TxOptions:    aps.TxOptionACK,
		Radius:       aps.DefaultRadius,
	}
	encoded := encodeDataRequestPayload(req)
	if encoded[0] != req.RequestID {
		t.Fatalf("request id not at byte 0: got %d", encoded[0])
	}

	// Build a synthetic indication payload carrying the same ASDU bytes and
	// addressing, then verify decode recovers them byte-for-byte (§8 test 6).
	indication := make([]byte, 20+len(req.ASDUPayload)+2)
	indication[0] = aps.AddrModeNWK
	indication[1] = byte(req.DestAddr16)
	indication[2] = byte(req.DestAddr16 >> 8)
	indication[9] = req.SrcEndpoint
	indication[10] = aps.AddrModeNWK
	indication[11] = byte(req.DestAddr16)
	indication[12] = byte(req.DestAddr16 >> 8)
	indication[13] = req.DestEndpoint
	indication[14] = byte(req.ProfileID)
	indication[15] = byte(req.ProfileID >> 8)
	indication[16] = byte(req.ClusterID)
	indication[17] = byte(req.ClusterID >> 8)
	indication[18] = byte(len(req.ASDUPayload))
	indication[19] = byte(len(req.ASDUPayload) >> 8)
	copy(indication[20:], req.ASDUPayload)

	resp, err := decodeDataIndicationPayload(indication)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(resp.ASDUPayload, req.ASDUPayload) {
		t.Fatalf("ASDU mismatch: got %X, want %X", resp.ASDUPayload, req.ASDUPayload)
	}
	if resp.ClusterID != req.ClusterID || resp.ProfileID != req.ProfileID {
		t.Fatalf("addressing mismatch: got %+v", resp)
	}
}

func TestDecodeGreenPowerIndication(t *testing.T) {
	payload := make([]byte, 11+2)
	payload[0], payload[1], payload[2], payload[3] = 0xEF, 0xBE, 0xAD, 0xDE // srcID little-endian
	payload[4] = 7                                                          // seqNr
	payload[5] = 0x22                                                       // commandId
	payload[6], payload[7], payload[8], payload[9] = 42, 0, 0, 0            // frameCounter
	payload[10] = 2                                                         // commandFrameSize
	payload[11] = 0xAA
	payload[12] = 0xBB

	gp, err := decodeGreenPowerIndicationPayload(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gp.SrcID != 0xDEADBEEF {
		t.Fatalf("srcID = 0x%08X, want 0xDEADBEEF", gp.SrcID)
	}
	if gp.SeqNr != 7 || gp.CommandID != 0x22 || gp.FrameCounter != 42 {
		t.Fatalf("unexpected fields: %+v", gp)
	}
	if !bytes.Equal(gp.CommandFrame, []byte{0xAA, 0xBB}) {
		t.Fatalf("command frame = %X", gp.CommandFrame)
	}
}
