// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"ai-sentinel/internal/platform/config"
	"ai-sentinel/internal/utils"
)

// SetupTestConfig returns a valid simulated configuration whose file sinks
// live under t.TempDir.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.IP = "127.0.0.1"
	cfg.Log.Level = "ERROR"
	cfg.Log.Dir = t.TempDir()
	cfg.Log.File = "test.log"
	cfg.Detector.Mode = config.ModeSimulated
	cfg.Detector.SimulationDelays = make([]time.Duration, 4)
	cfg.History.Driver = config.HistoryDriverMemory
	return cfg
}

// SetupTestLogger returns a console logger that discards everything below
// ERROR.
func SetupTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	return utils.NewConsoleLogger(io.Discard, "ERROR")
}

// PNG encodes a w x h image with one coloured pixel.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	return buf.Bytes()
}
