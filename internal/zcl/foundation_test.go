package zcl

import "testing"

func TestDecodeAttributesReportAttributes(t *testing.T) {
	h := Header{FrameType: FrameTypeGlobal, CommandID: FoundationReportAttributes}
	body := []byte{
		0x00, 0x00, TypeUint8, 0x64, // attr 0x0000, uint8, 100
		0x55, 0x00, TypeBool, 0x01, // attr 0x0055, bool, true
	}
	records, err := DecodeAttributes(h, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].AttributeID != 0x0000 || records[0].Value.(uint8) != 100 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].AttributeID != 0x0055 || records[1].Value.(bool) != true {
		t.Errorf("unexpected second record: %+v", records[1])
	}
}

func TestDecodeAttributesReadAttributesResponseWithFailureStatus(t *testing.T) {
	h := Header{FrameType: FrameTypeGlobal, CommandID: FoundationReadAttributesResponse}
	body := []byte{
		0x00, 0x00, ZCLStatusUnsupportedAttr, // no type/value follows a failure status
		0x01, 0x00, ZCLStatusSuccess, TypeUint16, 0x2C, 0x01, // attr 0x0001, uint16, 300
	}
	records, err := DecodeAttributes(h, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Status != ZCLStatusUnsupportedAttr || records[0].Value != nil {
		t.Errorf("unexpected failed record: %+v", records[0])
	}
	if records[1].Value.(uint16) != 300 {
		t.Errorf("unexpected value: %+v", records[1])
	}
}

func TestDecodeAttributesRejectsClusterSpecificFrame(t *testing.T) {
	h := Header{FrameType: FrameTypeCluster, CommandID: 0x00}
	if _, err := DecodeAttributes(h, []byte{0x00}); err == nil {
		t.Fatal("expected error for cluster-specific frame")
	}
}

func TestDecodeAttributesRejectsNonAttributeCommand(t *testing.T) {
	h := Header{FrameType: FrameTypeGlobal, CommandID: FoundationDefaultResponse}
	if _, err := DecodeAttributes(h, []byte{0x0A, 0x00}); err == nil {
		t.Fatal("expected error for a command with no attribute records")
	}
}

func TestDecodeAttributesTruncated(t *testing.T) {
	h := Header{FrameType: FrameTypeGlobal, CommandID: FoundationReportAttributes}
	if _, err := DecodeAttributes(h, []byte{0x00, 0x00}); err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestClusterNameKnownAndUnknown(t *testing.T) {
	if ClusterName(0x0006) != "OnOff" {
		t.Errorf("ClusterName(0x0006) = %q", ClusterName(0x0006))
	}
	if ClusterName(0x1234) != "0x1234" {
		t.Errorf("ClusterName(0x1234) = %q", ClusterName(0x1234))
	}
}

func TestCommandNameGlobalAndClusterSpecific(t *testing.T) {
	global := Header{FrameType: FrameTypeGlobal, CommandID: FoundationReportAttributes}
	if CommandName(global) != "ReportAttributes" {
		t.Errorf("CommandName(global) = %q", CommandName(global))
	}
	clusterSpecific := Header{FrameType: FrameTypeCluster, CommandID: 0x02}
	if CommandName(clusterSpecific) != "0x02" {
		t.Errorf("CommandName(clusterSpecific) = %q", CommandName(clusterSpecific))
	}
}
