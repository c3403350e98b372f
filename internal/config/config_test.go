package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != LogFormatText {
		t.Fatalf("expected text log format, got %q", cfg.Logging.Format)
	}
	if cfg.Transports.TRS.Baud != DefaultTRSBaud {
		t.Fatalf("expected trs baud %d, got %d", DefaultTRSBaud, cfg.Transports.TRS.Baud)
	}
	if cfg.Transports.BLE.Role != BLERoleServer {
		t.Fatalf("expected default ble role %q, got %q", BLERoleServer, cfg.Transports.BLE.Role)
	}
	if cfg.Transports.RTP.Port != DefaultRTPPort || cfg.Transports.RTP.SessionName != DefaultRTPSession {
		t.Fatalf("unexpected rtp defaults: %+v", cfg.Transports.RTP)
	}
	if cfg.DeviceAPI.Baud != DefaultDeviceAPIBaud {
		t.Fatalf("expected device api baud %d, got %d", DefaultDeviceAPIBaud, cfg.DeviceAPI.Baud)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadNormalizesUnknownValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "logging": {"level": "debug", "format": "XML"},
  "transports": {
    "trs": {"enabled": true, "port": "/dev/ttyAMA0"},
    "ble": {"role": "observer"}
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Logging.Format != LogFormatText {
		t.Fatalf("expected unknown format to fall back to text, got %q", cfg.Logging.Format)
	}
	if cfg.Transports.BLE.Role != BLERoleServer {
		t.Fatalf("expected unknown ble role to fall back to server, got %q", cfg.Transports.BLE.Role)
	}
	if cfg.Transports.TRS.Baud != DefaultTRSBaud {
		t.Fatalf("expected trs baud default, got %d", cfg.Transports.TRS.Baud)
	}
}

func TestAppConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "trs without port", mutate: func(c *AppConfig) { c.Transports.TRS.Enabled = true }, wantErr: true},
		{name: "usb without ports", mutate: func(c *AppConfig) { c.Transports.USB.Enabled = true }, wantErr: true},
		{name: "usb output only", mutate: func(c *AppConfig) {
			c.Transports.USB.Enabled = true
			c.Transports.USB.OutPort = "Scribble Out"
		}},
		{name: "ble client without address", mutate: func(c *AppConfig) { c.Transports.BLE.Role = BLERoleClient }, wantErr: true},
		{name: "rtp port range", mutate: func(c *AppConfig) { c.Transports.RTP.Port = 65535 }, wantErr: true},
		{name: "shared serial port", mutate: func(c *AppConfig) {
			c.Transports.TRS.Enabled = true
			c.Transports.TRS.Port = "/dev/ttyUSB0"
			c.DeviceAPI.Enabled = true
			c.DeviceAPI.Port = "/dev/ttyUSB0"
		}, wantErr: true},
	}

	for _, tc := range tests {
		cfg := Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Transports.USB.Enabled = true
	cfg.Transports.USB.InPort = "Launchpad"
	cfg.Logging.Format = LogFormatJSON

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != cfg {
		t.Fatalf("expected %+v, got %+v", cfg, loaded)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away")
	}
}
