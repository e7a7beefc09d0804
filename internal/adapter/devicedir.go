package adapter

import (
	"log/slog"
	"sync"
	"time"

	"deconz-adapter/internal/store"
)

// DeviceDirectory maintains the shortAddr<->ieee index consulted by the
// inbound router's safety rule (§4.6) when the radio delivers an
// indication addressed by IEEE only. Grounded on the teacher's
// DeviceManager.addrIndex (device_manager.go), generalized from a
// single-process cache into one that survives restart by mirroring
// every update into the store.
type DeviceDirectory struct {
	mu      sync.RWMutex
	byShort map[uint16]string // shortAddr -> ieee (hex string, as keyed by the caller)
	byIEEE  map[string]uint16 // ieee -> shortAddr
	store   store.Store
	logger  *slog.Logger
}

// NewDeviceDirectory creates a directory and loads its index from the store.
func NewDeviceDirectory(st store.Store, logger *slog.Logger) *DeviceDirectory {
	dd := &DeviceDirectory{
		byShort: make(map[uint16]string),
		byIEEE:  make(map[string]uint16),
		store:   st,
		logger:  logger,
	}
	dd.rebuild()
	return dd
}

func (dd *DeviceDirectory) rebuild() {
	devices, err := dd.store.ListDevices()
	if err != nil {
		dd.logger.Error("failed to load device directory from store", "error", err)
		return
	}
	dd.mu.Lock()
	defer dd.mu.Unlock()
	for _, d := range devices {
		dd.byShort[d.ShortAddress] = d.IEEEAddress
		dd.byIEEE[d.IEEEAddress] = d.ShortAddress
	}
}

// Update records that ieee is reachable at shortAddr, called on
// deviceJoined, deviceAnnounce, and a successful nodeDescriptor
// exchange (§4.9).
func (dd *DeviceDirectory) Update(ieee string, shortAddr uint16) {
	dd.mu.Lock()
	if prevIEEE, ok := dd.byShort[shortAddr]; ok && prevIEEE != ieee {
		delete(dd.byIEEE, prevIEEE)
	}
	dd.byShort[shortAddr] = ieee
	dd.byIEEE[ieee] = shortAddr
	dd.mu.Unlock()

	now := time.Now()
	err := dd.store.UpdateDevice(ieee, func(dev *store.Device) error {
		dev.IEEEAddress = ieee
		dev.ShortAddress = shortAddr
		if dev.JoinedAt.IsZero() {
			dev.JoinedAt = now
		}
		dev.LastSeen = now
		return nil
	})
	if err == store.ErrNotFound {
		err = dd.store.SaveDevice(&store.Device{
			IEEEAddress:  ieee,
			ShortAddress: shortAddr,
			JoinedAt:     now,
			LastSeen:     now,
		})
	}
	if err != nil {
		dd.logger.Error("failed to persist device directory entry", "ieee", ieee, "error", err)
	}
}

// Touch bumps the last-seen timestamp of an already-known device
// without changing its short address.
func (dd *DeviceDirectory) Touch(ieee string) {
	if err := dd.store.UpdateDevice(ieee, func(dev *store.Device) error {
		dev.LastSeen = time.Now()
		return nil
	}); err != nil && err != store.ErrNotFound {
		dd.logger.Error("failed to touch device directory entry", "ieee", ieee, "error", err)
	}
}

// Remove drops ieee from the directory, called on deviceLeave (§4.9).
func (dd *DeviceDirectory) Remove(ieee string) {
	dd.mu.Lock()
	if shortAddr, ok := dd.byIEEE[ieee]; ok {
		delete(dd.byShort, shortAddr)
	}
	delete(dd.byIEEE, ieee)
	dd.mu.Unlock()

	if err := dd.store.DeleteDevice(ieee); err != nil && err != store.ErrNotFound {
		dd.logger.Error("failed to remove device directory entry", "ieee", ieee, "error", err)
	}
}

// ShortAddrOf resolves ieee's current short address, if known. This is
// the lookup the inbound router's safety rule uses when an indication
// carries only srcAddr64: if it fails, the indication is dropped.
func (dd *DeviceDirectory) ShortAddrOf(ieee string) (uint16, bool) {
	dd.mu.RLock()
	defer dd.mu.RUnlock()
	shortAddr, ok := dd.byIEEE[ieee]
	return shortAddr, ok
}

// IEEEOf resolves the ieee address currently reachable at shortAddr.
func (dd *DeviceDirectory) IEEEOf(shortAddr uint16) (string, bool) {
	dd.mu.RLock()
	defer dd.mu.RUnlock()
	ieee, ok := dd.byShort[shortAddr]
	return ieee, ok
}

// List returns every known device.
func (dd *DeviceDirectory) List() ([]*store.Device, error) {
	return dd.store.ListDevices()
}
