package zcl

import "testing"

func TestParseHeaderGlobalNoManufacturer(t *testing.T) {
	data := []byte{FrameTypeGlobal | DirectionToClient, 0x07, FoundationReportAttributes, 0xAA, 0xBB}
	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.FrameType != FrameTypeGlobal {
		t.Fatalf("frame type = %v", h.FrameType)
	}
	if h.Direction != DirectionToClient {
		t.Fatalf("direction = %v", h.Direction)
	}
	if h.TransactionSequence != 0x07 {
		t.Fatalf("tsn = %v", h.TransactionSequence)
	}
	if h.CommandID != FoundationReportAttributes {
		t.Fatalf("command id = %v", h.CommandID)
	}
	if h.HeaderLength != 3 {
		t.Fatalf("header length = %d, want 3", h.HeaderLength)
	}
}

func TestParseHeaderManufacturerSpecific(t *testing.T) {
	fc := FrameTypeCluster | FlagManufacturerSpecific | DirectionToServer
	data := []byte{fc, 0x35, 0x11, 0x09, 0x02, 0xFF}
	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.ManufacturerSpecific {
		t.Fatal("expected manufacturer-specific flag set")
	}
	if h.ManufacturerCode != 0x1135 {
		t.Fatalf("manufacturer code = 0x%04X, want 0x1135", h.ManufacturerCode)
	}
	if h.TransactionSequence != 0x09 {
		t.Fatalf("tsn = %v", h.TransactionSequence)
	}
	if h.CommandID != 0x02 {
		t.Fatalf("command id = %v", h.CommandID)
	}
	if h.HeaderLength != 5 {
		t.Fatalf("header length = %d, want 5", h.HeaderLength)
	}
}

func TestParseHeaderTooShort(t *testing.T) {
	if _, err := ParseHeader([]byte{0x00, 0x01}); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestBuildHeaderRoundTrip(t *testing.T) {
	h := Header{
		FrameType:              FrameTypeCluster,
		Direction:              DirectionToClient,
		DisableDefaultResponse: true,
		ManufacturerSpecific:   true,
		ManufacturerCode:       0x1037,
		TransactionSequence:    0x42,
		CommandID:              0x01,
	}
	buf := BuildHeader(h)
	got, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.FrameType != h.FrameType || got.Direction != h.Direction ||
		got.DisableDefaultResponse != h.DisableDefaultResponse ||
		got.ManufacturerSpecific != h.ManufacturerSpecific ||
		got.ManufacturerCode != h.ManufacturerCode ||
		got.TransactionSequence != h.TransactionSequence ||
		got.CommandID != h.CommandID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}
