package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the escrowd daemon settings.
type Config struct {
	ListenAddress         string `toml:"ListenAddress"`
	DataDir               string `toml:"DataDir"`
	Env                   string `toml:"Env"`
	VaultAddress          string `toml:"VaultAddress"`
	ReleasePolicy         string `toml:"ReleasePolicy"`
	LockHashAfterShipment bool   `toml:"LockHashAfterShipment"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for mistakes that would only
// surface at runtime otherwise.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if _, err := c.Vault(); err != nil {
		return err
	}
	switch c.ReleasePolicy {
	case "", "open", "parties":
	default:
		return fmt.Errorf("config: ReleasePolicy must be \"open\" or \"parties\", got %q", c.ReleasePolicy)
	}
	return nil
}

// Vault decodes the configured vault address.
func (c *Config) Vault() ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(c.VaultAddress), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("config: malformed VaultAddress: %w", err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("config: VaultAddress must be 20 bytes, got %d", len(raw))
	}
	copy(addr[:], raw)
	if addr == ([20]byte{}) {
		return addr, fmt.Errorf("config: VaultAddress must be non-zero")
	}
	return addr, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./escrowd-data"
	}
	if strings.TrimSpace(cfg.ReleasePolicy) == "" {
		cfg.ReleasePolicy = "open"
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8645",
		DataDir:       "./escrowd-data",
		VaultAddress:  "0x" + strings.Repeat("ec", 20),
		ReleasePolicy: "open",
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
