package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"deconz-adapter/internal/adapter"
	"deconz-adapter/internal/driver"
	"deconz-adapter/internal/store"
	"deconz-adapter/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// Config is the daemon's YAML configuration (§6.5).
type Config struct {
	SerialPortOptions struct {
		Path     string `yaml:"path"`
		BaudRate int    `yaml:"baudRate"`
	} `yaml:"serialPortOptions"`
	AdapterOptions struct {
		Concurrent int `yaml:"concurrent"`
		Delay      int `yaml:"delay"`
	} `yaml:"adapterOptions"`
	NetworkOptions struct {
		PanID         uint16   `yaml:"panID"`
		ExtendedPanID string   `yaml:"extendedPanID"`
		NetworkKey    string   `yaml:"networkKey"`
		ChannelList   []uint8  `yaml:"channelList"`
	} `yaml:"networkOptions"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topicPrefix"`
	} `yaml:"mqtt"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"apiKey"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"web"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if c.SerialPortOptions.Path == "" {
		return fmt.Errorf("serialPortOptions.path is required")
	}
	if len(c.NetworkOptions.ChannelList) == 0 {
		return fmt.Errorf("networkOptions.channelList must name at least one channel")
	}
	channel := c.NetworkOptions.ChannelList[0]
	if channel < 11 || channel > 26 {
		return fmt.Errorf("networkOptions.channelList[0] must be 11-26, got %d", channel)
	}
	if c.NetworkOptions.PanID == 0 || c.NetworkOptions.PanID == 0xFFFF {
		return fmt.Errorf("networkOptions.panID must not be 0x0000 or 0xFFFF")
	}
	return nil
}

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("deconz-adapter starting", "version", version)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	adapterCfg, err := buildAdapterConfig(cfg)
	if err != nil {
		logger.Error("build adapter config", "err", err)
		os.Exit(1)
	}

	drv := driver.NewSerialDriver(cfg.SerialPortOptions.Path, cfg.SerialPortOptions.BaudRate, logger)
	events := adapter.NewEventBus(logger)
	a := adapter.New(drv, db, events, adapterCfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := a.Start(ctx); err != nil {
		logger.Error("start adapter", "err", err)
		cancel()
		os.Exit(1)
	}
	cancel()

	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))

	webServer, err := web.NewServer(a, logger, webOpts...)
	if err != nil {
		logger.Error("create web server", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(a, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	a.Stop()

	logger.Info("goodbye")
}

func buildAdapterConfig(cfg *Config) (adapter.Config, error) {
	extPanID, err := parseHexBytes(cfg.NetworkOptions.ExtendedPanID, 8)
	if err != nil {
		return adapter.Config{}, fmt.Errorf("networkOptions.extendedPanID: %w", err)
	}
	networkKey, err := parseHexBytes(cfg.NetworkOptions.NetworkKey, 16)
	if err != nil {
		return adapter.Config{}, fmt.Errorf("networkOptions.networkKey: %w", err)
	}

	var ac adapter.Config
	ac.Channel = cfg.NetworkOptions.ChannelList[0]
	ac.PanID = cfg.NetworkOptions.PanID
	copy(ac.ExtPanID[:], extPanID)
	copy(ac.NetworkKey[:], networkKey)
	ac.Concurrent = cfg.AdapterOptions.Concurrent
	ac.Delay = cfg.AdapterOptions.Delay
	return ac, nil
}

func parseHexBytes(s string, n int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if s == "" {
		return make([]byte, n), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("want %d bytes, got %d", n, len(b))
	}
	return b, nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SerialPortOptions.BaudRate == 0 {
		cfg.SerialPortOptions.BaudRate = 38400
	}
	if cfg.AdapterOptions.Concurrent == 0 {
		cfg.AdapterOptions.Concurrent = 2
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "deconz-adapter.db"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "deconz"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
