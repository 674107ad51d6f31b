package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfgPath := writeConfig(t, `
device:
  vid: 0
  pid: 0
runtime:
  block_size: 0
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.VID != 0x1782 || cfg.Device.PID != 0x4D00 {
		t.Fatalf("device defaults not applied: %+v", cfg.Device)
	}
	if cfg.Device.FlashBase != 0x10000000 || cfg.Device.FlashBaseOld != 0x30000000 {
		t.Fatalf("flash base defaults not applied: %+v", cfg.Device)
	}
	if cfg.Runtime.BlockSize != 4096 {
		t.Fatalf("runtime.block_size default not applied: %d", cfg.Runtime.BlockSize)
	}
	if cfg.Target.Default != "sc6531efm_generic" {
		t.Fatalf("target.default not applied: %q", cfg.Target.Default)
	}
}

func TestLoadResolvesRelativeFDLDir(t *testing.T) {
	cfgPath := writeConfig(t, `
target:
  fdl_dir: fdls
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join(filepath.Dir(cfgPath), "fdls")
	if cfg.Target.FDLDir != want {
		t.Fatalf("fdl_dir = %q, want %q", cfg.Target.FDLDir, want)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	cfgPath := writeConfig(t, `
device:
  not_a_real_field: true
`)
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadOverridesExplicitValues(t *testing.T) {
	cfgPath := writeConfig(t, `
device:
  vid: 6000
  pid: 19712
  flash_noremap: true
runtime:
  changed_baud: 115200
`)
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.VID != 6000 || cfg.Device.PID != 19712 {
		t.Fatalf("explicit VID/PID not preserved: %+v", cfg.Device)
	}
	if !cfg.Device.FlashNoRemap {
		t.Fatalf("flash_noremap not preserved")
	}
	if cfg.Runtime.ChangedBaud != 115200 {
		t.Fatalf("changed_baud not preserved: %d", cfg.Runtime.ChangedBaud)
	}
}
