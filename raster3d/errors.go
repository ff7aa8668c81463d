// SPDX-License-Identifier: MIT

package raster3d

import (
	"errors"
	"strconv"
)

// Sentinel errors returned by Map and Cache operations (§7). Callers
// use errors.Is against these rather than matching on formatted text.
var (
	// ErrClosed is returned by any Map method called after Close.
	ErrClosed = errors.New("raster3d: map is closed")

	// ErrOutOfRange is returned when a cell or tile coordinate falls
	// outside the volume's geometry.
	ErrOutOfRange = errors.New("raster3d: coordinate out of range")

	// ErrReadOnly is returned when a write is attempted against a map
	// opened with OpenOld in read-only mode.
	ErrReadOnly = errors.New("raster3d: map opened read-only")

	// ErrIncompatibleWindow names the case of a requested window whose
	// cell type or resampling requirement cannot be satisfied without an
	// explicit resampler (§4.E). No function in raster3d returns it.
	ErrIncompatibleWindow = errors.New("raster3d: window incompatible with map geometry")

	// ErrCorruptIndex is returned when the on-disk index table fails
	// its internal consistency checks on open.
	ErrCorruptIndex = errors.New("raster3d: corrupt index table")

	// ErrMemoryLimit is returned instead of allocating when
	// Config.MemoryPolicy is MemoryFail and a request would exceed
	// Config.MemoryLimitBytes.
	ErrMemoryLimit = errors.New("raster3d: allocation exceeds memory limit")
)

// Warning reports a recoverable condition encountered while decoding a
// volume that the teacher's own tools log and continue past rather
// than aborting (cmd/qrank-builder logs malformed input lines the same
// way). Warnings accumulate on the stats recorder the caller passes to
// Map; they are never returned as errors.
type Warning struct {
	Op      string // e.g. "ReadTile", "OpenOld"
	TileIdx int
	Message string
}

func (w Warning) String() string {
	if w.TileIdx >= 0 {
		return "raster3d: " + w.Op + ": tile " + strconv.Itoa(w.TileIdx) + ": " + w.Message
	}
	return "raster3d: " + w.Op + ": " + w.Message
}

// WarningRecorder collects Warnings emitted during a Map's lifetime.
// Maps default to discarding them; install LoggingWarnings (or a
// caller-side accumulator) via SetWarningRecorder to keep them.
type WarningRecorder interface {
	Warn(Warning)
}

// discardWarnings is the default WarningRecorder used when a Map is
// opened without one.
type discardWarnings struct{}

func (discardWarnings) Warn(Warning) {}

// LoggingWarnings forwards every Warning to Logger, matching the
// teacher's pattern of logging and continuing on malformed input.
type LoggingWarnings struct{}

func (LoggingWarnings) Warn(w Warning) {
	Logger.Print(w.String())
}
