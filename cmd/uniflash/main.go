// Command uniflash drives the full BFL handshake/FDL-bootstrap/flash
// procedure over USB: mode "flash" writes a file to a flash offset, mode
// "dump" reads a flash region to a file, and mode "stone-unpack" unpacks a
// stone image without touching any device.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/gousb"

	"github.com/unisoc-tools/bfltool/internal/config"
	"github.com/unisoc-tools/bfltool/internal/fdlfile"
	"github.com/unisoc-tools/bfltool/internal/usbtransport"
	"github.com/unisoc-tools/bfltool/pkg/session"
	"github.com/unisoc-tools/bfltool/pkg/stone"
)

func main() {
	mode := flag.String("mode", "", "operation mode: flash, dump, or stone-unpack (required)")
	file := flag.String("file", "", "file to write (flash mode), write to (dump mode), or unpack (stone-unpack mode)")
	partID := flag.Uint("p", 0, "partition id (dump mode)")
	start := flag.Uint64("s", 0, "start offset within flash (flash/dump modes)")
	length := flag.Uint64("l", 0, "length in bytes (dump mode; erase length for -force-erase in flash mode)")
	target := flag.String("t", "", "target profile name (overrides config default)")
	directory := flag.String("d", ".", "output directory (stone-unpack mode) or FDL profile directory override")
	flashNoRemap := flag.Bool("flash-noremap", false, "treat -s as an absolute flash address instead of an offset from flash-base")
	forceErase := flag.Bool("force-erase", false, "erase the target region before writing (flash mode)")
	enableWriteFlash := flag.Bool("enable-write-flash", false, "issue EnableWriteFlash before writing (flash mode)")
	blockSize := flag.Int("bs", 0, "runtime.block_size override (stored in the config; the session's chunk size does not read it)")
	deviceVID := flag.Uint("dv", 0, "USB vendor id override")
	devicePID := flag.Uint("dp", 0, "USB product id override")
	fdl1File := flag.String("fdl1-file", "", "FDL1 file override")
	fdl1Addr := flag.Uint64("fdl1-addr", 0, "FDL1 load address override")
	fdl2File := flag.String("fdl2-file", "", "FDL2 file override")
	fdl2Addr := flag.Uint64("fdl2-addr", 0, "FDL2 load address override")
	singleFDLFile := flag.String("single-fdl-file", "", "single combined FDL file override")
	singleFDLAddr := flag.Uint64("single-fdl-addr", 0, "single combined FDL load address override")
	configPath := flag.String("config", "", "path to YAML config file")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var logger *slog.Logger
	if *logFormat == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	slog.SetDefault(logger)

	if *mode == "stone-unpack" {
		runStoneUnpack(*file, *directory)
		return
	}
	if *mode != "flash" && *mode != "dump" {
		log.Fatalf("uniflash: -mode must be one of flash, dump, stone-unpack")
	}

	cfg := config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("uniflash: config load failed: %v", err)
		}
		cfg = *loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("uniflash: config validate failed: %v", err)
	}
	if *deviceVID != 0 {
		cfg.Device.VID = uint16(*deviceVID)
	}
	if *devicePID != 0 {
		cfg.Device.PID = uint16(*devicePID)
	}
	if *flashNoRemap {
		cfg.Device.FlashNoRemap = true
	}
	if *blockSize != 0 {
		cfg.Runtime.BlockSize = *blockSize
	}
	targetName := cfg.Target.Default
	if *target != "" {
		targetName = *target
	}
	fdlDir := cfg.Target.FDLDir
	if *directory != "." {
		fdlDir = *directory
	}

	prof, err := resolveProfile(fdlDir, targetName, *fdl1File, *fdl1Addr, *fdl2File, *fdl2Addr, *singleFDLFile, *singleFDLAddr)
	if err != nil {
		log.Fatalf("uniflash: resolve FDL profile: %v", err)
	}

	utCfg := usbtransport.Config{
		VID:        gousb.ID(cfg.Device.VID),
		PID:        gousb.ID(cfg.Device.PID),
		Interface:  0,
		AltSetting: 0,
	}
	tr, err := usbtransport.Open(utCfg)
	if err != nil {
		log.Fatalf("uniflash: open device: %v", err)
	}
	defer tr.Close()

	sessCfg := session.DefaultConfig()
	sessCfg.FlashBase = cfg.Device.FlashBase
	sessCfg.ChangedBaud = cfg.Runtime.ChangedBaud
	sessCfg.CallTimeout = cfg.Runtime.CallTimeout
	sessCfg.ReenumAttempts = cfg.Runtime.ReenumAttempts
	sessCfg.ReenumInterval = cfg.Runtime.ReenumInterval

	sess := session.New(sessCfg, tr, logger)
	ctx := context.Background()

	if err := bootstrap(ctx, sess, tr, utCfg, cfg, prof); err != nil {
		log.Fatalf("uniflash: bootstrap failed: %v", err)
	}

	addr := flashAddress(cfg, *start)
	switch *mode {
	case "flash":
		runFlash(ctx, sess, *file, addr, *forceErase, *enableWriteFlash, *length)
	case "dump":
		runDump(ctx, sess, *file, uint32(*partID), uint32(*length), addr)
	}

	if err := sess.NormalReset(ctx); err != nil {
		slog.Warn("normal reset failed", "error", err)
	}
}

func flashAddress(cfg config.Config, start uint64) uint32 {
	if cfg.Device.FlashNoRemap {
		return uint32(start)
	}
	return cfg.Device.FlashBase + uint32(start)
}

func resolveProfile(dir, target, fdl1File string, fdl1Addr uint64, fdl2File string, fdl2Addr uint64, singleFile string, singleAddr uint64) (fdlfile.Profile, error) {
	var prof fdlfile.Profile
	if dir != "" {
		scanned, err := fdlfile.ScanProfile(dir, target)
		if err != nil {
			return prof, err
		}
		prof = scanned
	}
	if fdl1File != "" {
		prof.FDL1 = &fdlfile.Entry{Tag: fdlfile.TagFDL1, Addr: uint32(fdl1Addr), Path: fdl1File}
	}
	if fdl2File != "" {
		prof.FDL2 = &fdlfile.Entry{Tag: fdlfile.TagFDL2, Addr: uint32(fdl2Addr), Path: fdl2File}
	}
	if singleFile != "" {
		prof.Single = &fdlfile.Entry{Tag: fdlfile.TagSingle, Addr: uint32(singleAddr), Path: singleFile}
	}
	return prof, nil
}

// bootstrap runs CheckBaud/Connect, loads and executes whichever FDL stages
// the profile names, and leaves sess in Ready state.
func bootstrap(ctx context.Context, sess *session.Session, tr *usbtransport.Transport, utCfg usbtransport.Config, cfg config.Config, prof fdlfile.Profile) error {
	if err := sess.Handshake(ctx); err != nil {
		return err
	}

	if prof.SingleMode() {
		return loadExecAndHandshake(ctx, sess, tr, utCfg, cfg, prof.Single, session.Fdl2Running, true)
	}

	if prof.FDL1 != nil {
		if err := loadExecAndHandshake(ctx, sess, tr, utCfg, cfg, prof.FDL1, session.Fdl1Running, false); err != nil {
			return err
		}
	}
	if prof.FDL2 != nil {
		data, err := fdlfile.Load(prof.FDL2.Path)
		if err != nil {
			return err
		}
		if err := sess.LoadFDL(ctx, prof.FDL2.Addr, data, session.Fdl2Loaded); err != nil {
			return err
		}
		if err := sess.ExecFDL(ctx, prof.FDL2.Addr, session.Fdl2Running); err != nil {
			return err
		}
	}
	return sess.ChangeBaud(ctx)
}

// loadExecAndHandshake loads entry, executes it, reconnects over USB, and
// re-handshakes in Fdl mode. When final is true the baud is also switched,
// leaving the session Ready.
func loadExecAndHandshake(ctx context.Context, sess *session.Session, tr *usbtransport.Transport, utCfg usbtransport.Config, cfg config.Config, entry *fdlfile.Entry, runningState session.State, final bool) error {
	data, err := fdlfile.Load(entry.Path)
	if err != nil {
		return err
	}
	if err := sess.LoadFDL(ctx, entry.Addr, data, session.Fdl1Loaded); err != nil {
		return err
	}
	if err := sess.ExecFDL(ctx, entry.Addr, runningState); err != nil {
		return err
	}

	newTr, err := usbtransport.Reopen(utCfg, tr, cfg.Runtime.ReenumAttempts, cfg.Runtime.ReenumInterval)
	if err != nil {
		return err
	}
	*tr = *newTr
	sess.SetTransport(tr)
	sess.EnterFdlMode(tr.MaxPacketSize())

	if err := sess.Handshake(ctx); err != nil {
		return err
	}
	if final {
		return sess.ChangeBaud(ctx)
	}
	return nil
}

func runFlash(ctx context.Context, sess *session.Session, file string, addr uint32, forceErase, enableWrite bool, length uint64) {
	if err := sess.RequireReady(); err != nil {
		log.Fatalf("uniflash: %v", err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatalf("uniflash: read %s: %v", file, err)
	}
	if enableWrite {
		if err := sess.EnableWriteFlash(ctx); err != nil {
			log.Fatalf("uniflash: enable write flash: %v", err)
		}
	}
	if forceErase {
		eraseLen := uint32(len(data))
		if length != 0 {
			eraseLen = uint32(length)
		}
		if err := sess.EraseFlash(ctx, addr, eraseLen); err != nil {
			log.Fatalf("uniflash: erase flash: %v", err)
		}
	}
	if err := sess.WriteFlash(ctx, addr, data); err != nil {
		log.Fatalf("uniflash: write flash: %v", err)
	}
	slog.Info("flash write complete", "file", file, "addr", addr, "bytes", len(data))
}

func runDump(ctx context.Context, sess *session.Session, file string, partID, length, offset uint32) {
	if err := sess.RequireReady(); err != nil {
		log.Fatalf("uniflash: %v", err)
	}
	data, err := sess.ReadFlash(ctx, partID, length, offset)
	if err != nil {
		log.Fatalf("uniflash: read flash: %v", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		log.Fatalf("uniflash: write %s: %v", file, err)
	}
	slog.Info("flash dump complete", "file", file, "bytes", len(data))
}

func runStoneUnpack(file, dir string) {
	if file == "" {
		log.Fatal("uniflash: -file is required for stone-unpack mode")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		log.Fatalf("uniflash: read %s: %v", file, err)
	}
	artifacts, err := stone.Unpack(data)
	if err != nil {
		log.Fatalf("uniflash: unpack %s: %v", file, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("uniflash: create output directory %s: %v", dir, err)
	}
	for _, a := range artifacts {
		outPath := filepath.Join(dir, a.Name)
		if err := os.WriteFile(outPath, a.Data, 0o644); err != nil {
			log.Fatalf("uniflash: write %s: %v", outPath, err)
		}
		slog.Info("wrote artifact", "name", a.Name, "path", outPath, "bytes", len(a.Data))
	}
}
