// Command stoned unpacks a stone-format flash image into its constituent
// artifacts, mirroring the reference stoned tool's file + directory flag
// pair.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/unisoc-tools/bfltool/pkg/stone"
)

func main() {
	file := flag.String("file", "", "path to the stone image to unpack (required)")
	dir := flag.String("directory", ".", "directory to write unpacked artifacts into")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *file == "" {
		log.Fatal("stoned: -file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("stoned: read %s: %v", *file, err)
	}

	artifacts, err := stone.Unpack(data)
	if err != nil {
		log.Fatalf("stoned: unpack %s: %v", *file, err)
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("stoned: create output directory %s: %v", *dir, err)
	}

	for _, a := range artifacts {
		outPath := filepath.Join(*dir, a.Name)
		if err := os.WriteFile(outPath, a.Data, 0o644); err != nil {
			log.Fatalf("stoned: write %s: %v", outPath, err)
		}
		slog.Info("wrote artifact", "name", a.Name, "path", outPath, "bytes", len(a.Data))
	}
	fmt.Printf("Unpacked %d artifact(s) into %s\n", len(artifacts), *dir)
}
