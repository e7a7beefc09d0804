//go:build !no_mqtt

package mqtt

import (
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"deconz-adapter/internal/adapter"
	"deconz-adapter/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memStoreForTest is a minimal in-memory store.Store for exercising the
// device directory without a real database.
type memStoreForTest struct {
	devices map[string]*store.Device
}

func newMemStoreForTest() *memStoreForTest {
	return &memStoreForTest{devices: make(map[string]*store.Device)}
}

func (m *memStoreForTest) SaveDevice(dev *store.Device) error {
	cp := *dev
	m.devices[dev.IEEEAddress] = &cp
	return nil
}
func (m *memStoreForTest) GetDevice(ieee string) (*store.Device, error) {
	d, ok := m.devices[ieee]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}
func (m *memStoreForTest) DeleteDevice(ieee string) error {
	delete(m.devices, ieee)
	return nil
}
func (m *memStoreForTest) ListDevices() ([]*store.Device, error) {
	list := make([]*store.Device, 0, len(m.devices))
	for _, d := range m.devices {
		cp := *d
		list = append(list, &cp)
	}
	return list, nil
}
func (m *memStoreForTest) UpdateDevice(ieee string, fn func(dev *store.Device) error) error {
	d, ok := m.devices[ieee]
	if !ok {
		return store.ErrNotFound
	}
	cp := *d
	if err := fn(&cp); err != nil {
		return err
	}
	m.devices[ieee] = &cp
	return nil
}
func (m *memStoreForTest) SaveNetworkState(s *store.NetworkState) error { return nil }
func (m *memStoreForTest) GetNetworkState() (*store.NetworkState, error) {
	return nil, store.ErrNotFound
}
func (m *memStoreForTest) Close() error { return nil }

func TestEventTopic(t *testing.T) {
	got := eventTopic("deconz", adapter.EventDeviceJoined)
	want := "deconz/bridge/event/deviceJoined"
	if got != want {
		t.Errorf("eventTopic() = %q, want %q", got, want)
	}
}

func TestZclTopic(t *testing.T) {
	got := zclTopic("deconz", "0x00158d00012a3b4c")
	want := "deconz/0x00158d00012a3b4c/zcl"
	if got != want {
		t.Errorf("zclTopic() = %q, want %q", got, want)
	}
}

func TestMustJSON(t *testing.T) {
	result := mustJSON(adapter.AddrEvent{NetworkAddress: 0x1234, IEEEAddr: "0xabc"})
	var parsed map[string]interface{}
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("mustJSON output not valid JSON: %v", err)
	}
	if parsed["ieeeAddr"] != "0xabc" {
		t.Errorf("ieeeAddr = %v, want 0xabc", parsed["ieeeAddr"])
	}
}

func TestMustJSONFallsBackOnUnmarshalableValue(t *testing.T) {
	result := mustJSON(make(chan int))
	if string(result) != "{}" {
		t.Errorf("mustJSON(unmarshalable) = %q, want {}", result)
	}
}

func TestIeeeForZclAddressShortAddressLooksUpDirectory(t *testing.T) {
	logger := testLogger()
	st := newMemStoreForTest()
	dir := adapter.NewDeviceDirectory(st, logger)
	dir.Update("0x0807060504030201", 0x1234)

	got, ok := ieeeForZclAddress(dir, 0x1234)
	if !ok || got != "0x0807060504030201" {
		t.Errorf("ieeeForZclAddress(short) = %q, %v, want 0x0807060504030201, true", got, ok)
	}
}

func TestIeeeForZclAddressRawIEEEFormatsDirectly(t *testing.T) {
	dir := adapter.NewDeviceDirectory(newMemStoreForTest(), testLogger())

	raw := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	address := binary.LittleEndian.Uint64(raw[:])

	got, ok := ieeeForZclAddress(dir, address)
	if !ok || got != "0x0807060504030201" {
		t.Errorf("ieeeForZclAddress(raw) = %q, %v, want 0x0807060504030201, true", got, ok)
	}
}
