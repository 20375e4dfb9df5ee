package config

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	prodConfigDir  = "/var/lib/relaymate-utils"
	configFileName = "config.yaml"
)

// RelayConfig describes the attached board and how to reach it.
type RelayConfig struct {
	// Transport is "i2c" for a directly attached board or "modbus" for a
	// board behind the RS-485 register bridge.
	Transport string `yaml:"transport"`
	// Bus is the I2C bus name (empty means the first available) or the
	// serial port of the bridge.
	Bus     string `yaml:"bus,omitempty"`
	Address uint16 `yaml:"address"`
	SlaveID byte   `yaml:"slave_id,omitempty"`

	Board        string `yaml:"board"`
	TimingPreset string `yaml:"timing_preset,omitempty"`
	Verification string `yaml:"verification,omitempty"`
	// ProbeRelay is the relay cycled during calibration when the request
	// names none. Channel 1 is the conventional probe.
	ProbeRelay int `yaml:"probe_relay,omitempty"`
}

type Config struct {
	DeviceID        string      `yaml:"device_id"`
	Type            string      `yaml:"type,omitempty"`
	ServeExternally bool        `yaml:"serve_externally,omitempty"`
	Relay           RelayConfig `yaml:"relay"`
}

var (
	cfg     Config
	cfgOnce sync.Once
	cfgMu   sync.RWMutex
)

func init() {
	cfgOnce.Do(func() {
		if err := loadConfig(); err != nil {
			log.Printf("Config: failed to load, using generated values: %v", err)
		}
	})
}

func GetConfig() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

func GetDeviceID() string {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.DeviceID
}

func GetRelayConfig() RelayConfig {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg.Relay
}

// SetTimingPreset persists a calibration result so the next start runs at
// the adopted speed.
func SetTimingPreset(name string) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	cfg.Relay.TimingPreset = name
	return saveConfigLocked(getConfigPath())
}

func getConfigPath() string {
	if dir := os.Getenv("RELAYMATE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, configFileName)
	}
	if info, err := os.Stat(prodConfigDir); err == nil && info.IsDir() {
		testFile := filepath.Join(prodConfigDir, ".write_test")
		if f, err := os.Create(testFile); err == nil {
			f.Close()
			os.Remove(testFile)
			return filepath.Join(prodConfigDir, configFileName)
		}
	}
	return filepath.Join("tmp", configFileName)
}

func generateUUID() (string, error) {
	uuid := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, uuid); err != nil {
		return "", err
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16]), nil
}

func defaultRelayConfig() RelayConfig {
	return RelayConfig{
		Transport:    "i2c",
		Address:      0x6D,
		Board:        "quad",
		Verification: "strict",
		ProbeRelay:   1,
	}
}

func loadConfig() error {
	cfgMu.Lock()
	defer cfgMu.Unlock()

	path := getConfigPath()
	fmt.Println("Config:", path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return createDefaultConfig(path)
		}
		return err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	dirty := false
	if cfg.DeviceID == "" {
		uuid, err := generateUUID()
		if err != nil {
			return err
		}
		cfg.DeviceID = uuid
		dirty = true
	}
	if cfg.Relay.Board == "" {
		cfg.Relay = defaultRelayConfig()
		dirty = true
	}
	if dirty {
		return saveConfigLocked(path)
	}

	return nil
}

func createDefaultConfig(path string) error {
	uuid, err := generateUUID()
	if err != nil {
		return err
	}
	cfg.DeviceID = uuid
	cfg.Type = "relaymate"
	cfg.Relay = defaultRelayConfig()
	return saveConfigLocked(path)
}

func saveConfigLocked(path string) error {
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
