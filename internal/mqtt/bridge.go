//go:build !no_mqtt

package mqtt

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"deconz-adapter/internal/adapter"
)

// Config holds MQTT bridge configuration (§4.10, §6.5).
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge republishes adapter events to MQTT (§4.10). It carries no
// per-device state of its own: every event is republished as-is, as
// soon as it arrives.
type Bridge struct {
	client  pahomqtt.Client
	adapter *adapter.Adapter
	prefix  string
	logger  *slog.Logger
	unsub   func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(a *adapter.Adapter, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "deconz"
	}
	b := &Bridge{
		adapter: a,
		prefix:  cfg.TopicPrefix,
		logger:  logger.With("component", "mqtt"),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("deconz-adapter").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to the adapter's event bus.
func (b *Bridge) Start() {
	b.unsub = b.adapter.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// handleEvent republishes every adapter event under
// <prefix>/bridge/event/<type>, and zclPayload events additionally under
// <prefix>/<ieee>/zcl (§4.10).
func (b *Bridge) handleEvent(event adapter.Event) {
	payload := mustJSON(event.Data)
	b.publish(eventTopic(b.prefix, event.Type), payload, false)

	if event.Type != adapter.EventZclPayload {
		return
	}
	zp, ok := event.Data.(adapter.ZclPayload)
	if !ok {
		return
	}
	ieee, ok := ieeeForZclAddress(b.adapter.Devices(), zp.Address)
	if !ok {
		return
	}
	b.publish(zclTopic(b.prefix, ieee), payload, false)
}

// ieeeForZclAddress resolves the ieee address a zclPayload event's Address
// refers to. Address is a short address when it fits in 16 bits (§4.6:
// destAddrMode != IEEE), otherwise it is itself the raw 64-bit IEEE
// address in the same little-endian byte order ieeeString expects.
func ieeeForZclAddress(dir *adapter.DeviceDirectory, address uint64) (string, bool) {
	if address <= 0xFFFF {
		return dir.IEEEOf(uint16(address))
	}
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], address)
	return formatIEEE(raw), true
}

func formatIEEE(ieee [8]byte) string {
	var rev [8]byte
	for i := 0; i < 8; i++ {
		rev[i] = ieee[7-i]
	}
	return "0x" + hex.EncodeToString(rev[:])
}

func eventTopic(prefix, eventType string) string {
	return prefix + "/bridge/event/" + eventType
}

func zclTopic(prefix, ieee string) string {
	return prefix + "/" + ieee + "/zcl"
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
