package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"deconz-adapter/internal/adapter"
	"deconz-adapter/internal/aps"
	"deconz-adapter/internal/driver"
	"deconz-adapter/internal/store"
)

// fakeDriver is a minimal driver.Driver double, just enough to construct an
// adapter.Adapter for exercising the diagnostic server's handlers.
type fakeDriver struct {
	mu     sync.Mutex
	params map[driver.ParameterID][]byte
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{params: make(map[driver.ParameterID][]byte)}
}

func (d *fakeDriver) Open(ctx context.Context) error { return nil }
func (d *fakeDriver) Close() error                   { return nil }

func (d *fakeDriver) ReadParameter(ctx context.Context, id driver.ParameterID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params[id], nil
}

func (d *fakeDriver) WriteParameter(ctx context.Context, id driver.ParameterID, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params[id] = append([]byte(nil), value...)
	return nil
}

func (d *fakeDriver) ReadFirmwareVersion(ctx context.Context) (driver.FirmwareVersion, error) {
	return driver.FirmwareVersion{Major: 2, Minor: 6}, nil
}

func (d *fakeDriver) ChangeNetworkState(ctx context.Context, state driver.NetworkState) error {
	return nil
}

func (d *fakeDriver) EnqueueSendDataRequest(ctx context.Context, req aps.DataRequest) error {
	return nil
}

func (d *fakeDriver) OnEvent(handler driver.EventHandler) {}

// memStore is a minimal in-memory store.Store for adapter construction.
type memStore struct {
	devices map[string]*store.Device
}

func newMemStore() *memStore {
	return &memStore{devices: make(map[string]*store.Device)}
}

func (m *memStore) SaveDevice(dev *store.Device) error {
	cp := *dev
	m.devices[dev.IEEEAddress] = &cp
	return nil
}
func (m *memStore) GetDevice(ieee string) (*store.Device, error) {
	d, ok := m.devices[ieee]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}
func (m *memStore) DeleteDevice(ieee string) error {
	delete(m.devices, ieee)
	return nil
}
func (m *memStore) ListDevices() ([]*store.Device, error) {
	list := make([]*store.Device, 0, len(m.devices))
	for _, d := range m.devices {
		cp := *d
		list = append(list, &cp)
	}
	return list, nil
}
func (m *memStore) UpdateDevice(ieee string, fn func(dev *store.Device) error) error {
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
func (m *memStore) SaveNetworkState(s *store.NetworkState) error { return nil }
func (m *memStore) GetNetworkState() (*store.NetworkState, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	fd := newFakeDriver()
	events := adapter.NewEventBus(testLogger())
	cfg := adapter.Config{Channel: 11, PanID: 0x1234, Concurrent: 2}
	a := adapter.New(fd, newMemStore(), events, cfg, testLogger())

	s, err := NewServer(a, testLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestHandleAPIVersion(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if _, ok := body["firmware"]; !ok {
		t.Error("response missing firmware field")
	}
}

func TestHandleAPINetworkInfo(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/network", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if _, ok := body["network"]; !ok {
		t.Error("response missing network field")
	}
	if _, ok := body["coordinator"]; !ok {
		t.Error("response missing coordinator field")
	}
}

func TestHandleAPIListDevicesEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var devices []interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &devices); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("len(devices) = %d, want 0", len(devices))
	}
}

func TestAPIKeyRejectsMissingKey(t *testing.T) {
	fd := newFakeDriver()
	events := adapter.NewEventBus(testLogger())
	cfg := adapter.Config{Channel: 11, PanID: 0x1234, Concurrent: 2}
	a := adapter.New(fd, newMemStore(), events, cfg, testLogger())

	s, err := NewServer(a, testLogger(), WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/network", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/network", nil)
	req2.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Errorf("status with valid key = %d, want 200", rec2.Code)
	}
}

func TestIndexUnaffectedByAPIKey(t *testing.T) {
	fd := newFakeDriver()
	events := adapter.NewEventBus(testLogger())
	cfg := adapter.Config{Channel: 11, PanID: 0x1234, Concurrent: 2}
	a := adapter.New(fd, newMemStore(), events, cfg, testLogger())

	s, err := NewServer(a, testLogger(), WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	defer s.Stop()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (index should not require API key)", rec.Code)
	}
}
