//go:build no_mqtt

package main

import (
	"log/slog"

	"deconz-adapter/internal/adapter"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *adapter.Adapter, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
