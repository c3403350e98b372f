package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BLERole selects whether the host advertises BLE-MIDI or connects to a peer.
type BLERole string

const (
	BLERoleServer BLERole = "server"
	BLERoleClient BLERole = "client"

	DefaultTRSBaud       = 31250
	DefaultDeviceAPIBaud = 115200
	DefaultRTPPort       = 5004
	DefaultRTPSession    = "Scribble-RTP"
	DefaultBLELocalName  = "Scribble-BLE"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
	Format    string `json:"format"`
}

type TRSConfig struct {
	Enabled bool   `json:"enabled"`
	Port    string `json:"port"`
	Baud    int    `json:"baud"`
}

type USBConfig struct {
	Enabled bool   `json:"enabled"`
	InPort  string `json:"in_port"`
	OutPort string `json:"out_port"`
}

type BLEConfig struct {
	Role      BLERole `json:"role"`
	Adapter   string  `json:"adapter"`
	Address   string  `json:"address"`
	LocalName string  `json:"local_name"`
}

type RTPConfig struct {
	ListenHost  string `json:"listen_host"`
	Port        int    `json:"port"`
	SessionName string `json:"session_name"`
}

// TransportsConfig holds host-side parameters of every MIDI transport.
// Which wireless transport is active is a device setting, not host configuration.
type TransportsConfig struct {
	TRS TRSConfig `json:"trs"`
	USB USBConfig `json:"usb"`
	BLE BLEConfig `json:"ble"`
	RTP RTPConfig `json:"rtp"`
}

type DeviceAPIConfig struct {
	Enabled bool   `json:"enabled"`
	Port    string `json:"port"`
	Baud    int    `json:"baud"`
}

type UIConfig struct {
	StartHidden bool `json:"start_hidden"`
}

// AppConfig is the root persisted host configuration.
type AppConfig struct {
	Logging    LoggingConfig    `json:"logging"`
	Transports TransportsConfig `json:"transports"`
	DeviceAPI  DeviceAPIConfig  `json:"device_api"`
	UI         UIConfig         `json:"ui"`
}

func Default() AppConfig {
	return AppConfig{
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
			Format:    LogFormatText,
		},
		Transports: TransportsConfig{
			TRS: TRSConfig{Baud: DefaultTRSBaud},
			USB: USBConfig{},
			BLE: BLEConfig{
				Role:      BLERoleServer,
				LocalName: DefaultBLELocalName,
			},
			RTP: RTPConfig{
				Port:        DefaultRTPPort,
				SessionName: DefaultRTPSession,
			},
		},
		DeviceAPI: DeviceAPIConfig{Baud: DefaultDeviceAPIBaud},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = normalizeLogFormat(c.Logging.Format)
	if c.Transports.TRS.Baud <= 0 {
		c.Transports.TRS.Baud = DefaultTRSBaud
	}
	c.Transports.BLE.Role = normalizeBLERole(c.Transports.BLE.Role)
	if strings.TrimSpace(c.Transports.BLE.LocalName) == "" {
		c.Transports.BLE.LocalName = DefaultBLELocalName
	}
	if c.Transports.RTP.Port <= 0 {
		c.Transports.RTP.Port = DefaultRTPPort
	}
	if strings.TrimSpace(c.Transports.RTP.SessionName) == "" {
		c.Transports.RTP.SessionName = DefaultRTPSession
	}
	if c.DeviceAPI.Baud <= 0 {
		c.DeviceAPI.Baud = DefaultDeviceAPIBaud
	}
}

func normalizeLogFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case LogFormatJSON:
		return LogFormatJSON
	default:
		return LogFormatText
	}
}

func normalizeBLERole(role BLERole) BLERole {
	switch role {
	case BLERoleClient:
		return BLERoleClient
	default:
		return BLERoleServer
	}
}

func (c AppConfig) Validate() error {
	if c.Transports.TRS.Enabled {
		if strings.TrimSpace(c.Transports.TRS.Port) == "" {
			return errors.New("trs serial port is required")
		}
		if c.Transports.TRS.Baud <= 0 {
			return errors.New("trs baud must be positive")
		}
	}
	if c.Transports.USB.Enabled {
		if strings.TrimSpace(c.Transports.USB.InPort) == "" && strings.TrimSpace(c.Transports.USB.OutPort) == "" {
			return errors.New("usb midi needs an input or output port")
		}
	}
	switch c.Transports.BLE.Role {
	case BLERoleServer:
	case BLERoleClient:
		if strings.TrimSpace(c.Transports.BLE.Address) == "" {
			return errors.New("bluetooth address is required for client role")
		}
	default:
		return fmt.Errorf("unknown ble role: %s", c.Transports.BLE.Role)
	}
	if c.Transports.RTP.Port <= 0 || c.Transports.RTP.Port > 65534 {
		return fmt.Errorf("rtp port out of range: %d", c.Transports.RTP.Port)
	}
	if c.DeviceAPI.Enabled {
		if strings.TrimSpace(c.DeviceAPI.Port) == "" {
			return errors.New("device api serial port is required")
		}
		if c.DeviceAPI.Enabled && c.Transports.TRS.Enabled && c.DeviceAPI.Port == c.Transports.TRS.Port {
			return errors.New("device api and trs cannot share a serial port")
		}
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
