// Package config loads the YAML device/runtime configuration for bfltool,
// following the same decode-then-validate-then-resolve-paths shape as the
// sibling tools' configuration loaders in this codebase.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full on-disk configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Target  TargetConfig  `yaml:"target,omitempty"`
}

// DeviceConfig identifies the USB device and its flash addressing scheme.
type DeviceConfig struct {
	VID            uint16 `yaml:"vid"`
	PID            uint16 `yaml:"pid"`
	FlashBase      uint32 `yaml:"flash_base"`
	FlashBaseOld   uint32 `yaml:"flash_base_old"`
	FlashNoRemap   bool   `yaml:"flash_noremap"`
}

// RuntimeConfig tunes the baud rate, call timeout and re-enumeration polling.
// BlockSize is stored here, but no transfer reads it: chunk sizes come from
// session.Config.MTUBoot and the endpoint's max-packet size.
type RuntimeConfig struct {
	BlockSize      int           `yaml:"block_size"`
	ChangedBaud    uint32        `yaml:"changed_baud"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	ReenumAttempts int           `yaml:"reenum_attempts"`
	ReenumInterval time.Duration `yaml:"reenum_interval"`
}

// TargetConfig names the pre-installed FDL profile directory and default
// target, overridable per invocation by CLI flags.
type TargetConfig struct {
	FDLDir  string `yaml:"fdl_dir,omitempty"`
	Default string `yaml:"default,omitempty"`
}

// Load reads, strictly decodes (rejecting unknown fields), resolves
// relative paths against the config file's directory, and validates cfg.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills in defaults for zero values: VID 0x1782, PID 0x4D00, flash
// bases 0x10000000/0x30000000, 4096-byte block size, 921600 baud, 120s call
// timeout, 50 re-enumeration attempts 100ms apart, target
// "sc6531efm_generic".
func (c *Config) Validate() error {
	if c.Device.VID == 0 {
		c.Device.VID = 0x1782
	}
	if c.Device.PID == 0 {
		c.Device.PID = 0x4D00
	}
	if c.Device.FlashBase == 0 {
		c.Device.FlashBase = 0x10000000
	}
	if c.Device.FlashBaseOld == 0 {
		c.Device.FlashBaseOld = 0x30000000
	}
	if c.Runtime.BlockSize <= 0 {
		c.Runtime.BlockSize = 4096
	}
	if c.Runtime.ChangedBaud == 0 {
		c.Runtime.ChangedBaud = 921600
	}
	if c.Runtime.CallTimeout <= 0 {
		c.Runtime.CallTimeout = 120 * time.Second
	}
	if c.Runtime.ReenumAttempts <= 0 {
		c.Runtime.ReenumAttempts = 50
	}
	if c.Runtime.ReenumInterval <= 0 {
		c.Runtime.ReenumInterval = 100 * time.Millisecond
	}
	if strings.TrimSpace(c.Target.Default) == "" {
		c.Target.Default = "sc6531efm_generic"
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	if strings.TrimSpace(c.Target.FDLDir) == "" {
		return
	}
	configDir := filepath.Dir(configPath)
	c.Target.FDLDir = resolvePath(configDir, c.Target.FDLDir)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
