// SPDX-License-Identifier: MIT

package raster3d

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync/atomic"
)

// MemoryPolicy controls what happens when a single allocation would
// exceed Config.MemoryLimit (§5).
type MemoryPolicy int

const (
	// MemoryIgnore silently allocates above the cap.
	MemoryIgnore MemoryPolicy = iota
	// MemoryWarn logs a warning and allocates anyway.
	MemoryWarn
	// MemoryFail aborts the operation instead of allocating.
	MemoryFail
)

// Config is the process-wide, immutable-after-first-open configuration
// the teacher models as a single package-level logger plus flags; §9
// asks for an explicit value instead, built once and passed to every
// Map constructor. Build one with NewConfigFromEnv or DefaultConfig,
// then never mutate it again — the first OpenNew/OpenOld call freezes
// it (frozen tracks that via an atomic flag).
type Config struct {
	Compression      bool
	Precision        int // -1 means MaxPrecision32/64 depending on CellType
	CellType         CellType
	CacheSize        int // tile count
	MaxCacheBytes    int64
	TileDims         TileDims
	TmpDir           string // STREAM_TMPDIR; mandatory at runtime
	DefaultWindow3D  string
	MemoryLimitBytes int64
	MemoryPolicy     MemoryPolicy

	frozen *atomic.Bool
}

// DefaultConfig returns hard-coded fallback values matching the
// teacher's own defaults-by-constant style (no env, no flags).
func DefaultConfig() Config {
	return Config{
		Compression:      true,
		Precision:        -1,
		CellType:         CellF32,
		CacheSize:        64,
		MaxCacheBytes:    256 << 20,
		TileDims:         TileDims{X: 16, Y: 16, Z: 8},
		TmpDir:           os.TempDir(),
		DefaultWindow3D:  "default",
		MemoryLimitBytes: 512 << 20,
		MemoryPolicy:     MemoryWarn,
		frozen:           new(atomic.Bool),
	}
}

// NewConfigFromEnv builds a Config by reading §6.2's environment
// variables, falling back to DefaultConfig for anything unset — the
// same "flag, else env, else default" precedence the teacher's
// cmd/qrank-builder/main.go uses for S3 credentials.
func NewConfigFromEnv() (Config, error) {
	c := DefaultConfig()

	if v := os.Getenv("STREAM_TMPDIR"); v != "" {
		c.TmpDir = v
	}
	if _, ok := os.LookupEnv("RASTER3D_USE_COMPRESSION"); ok {
		c.Compression = true
	}
	if _, ok := os.LookupEnv("RASTER3D_NO_COMPRESSION"); ok {
		c.Compression = false
	}
	if v := os.Getenv("RASTER3D_PRECISION"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.Precision = p
	}
	if _, ok := os.LookupEnv("RASTER3D_MAX_PRECISION"); ok {
		c.Precision = -1
	}
	if v := os.Getenv("RASTER3D_DEFAULT_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.CacheSize = n
	}
	if v := os.Getenv("RASTER3D_MAX_CACHE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, err
		}
		c.MaxCacheBytes = n
	}
	if _, ok := os.LookupEnv("RASTER3D_WRITE_FLOAT"); ok {
		c.CellType = CellF32
	}
	if _, ok := os.LookupEnv("RASTER3D_WRITE_DOUBLE"); ok {
		c.CellType = CellF64
	}
	if v := os.Getenv("RASTER3D_TILE_DIMENSION_X"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.TileDims.X = n
	}
	if v := os.Getenv("RASTER3D_TILE_DIMENSION_Y"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.TileDims.Y = n
	}
	if v := os.Getenv("RASTER3D_TILE_DIMENSION_Z"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		c.TileDims.Z = n
	}
	if v := os.Getenv("RASTER3D_DEFAULT_WINDOW3D"); v != "" {
		c.DefaultWindow3D = v
	}
	c.frozen = new(atomic.Bool)
	return c, nil
}

// checkAlloc applies the §5 memory policy to a single large allocation
// of nbytes: under MemoryFail the allocation is refused with
// ErrMemoryLimit, under MemoryWarn one line is logged and the
// allocation proceeds, and under MemoryIgnore nothing happens.
func (c Config) checkAlloc(op string, nbytes int64) error {
	if c.MemoryLimitBytes <= 0 || nbytes <= c.MemoryLimitBytes {
		return nil
	}
	switch c.MemoryPolicy {
	case MemoryFail:
		Logger.Printf("%s: refusing %d-byte allocation over the %d-byte memory limit", op, nbytes, c.MemoryLimitBytes)
		return fmt.Errorf("raster3d: %s: %d bytes requested, limit %d: %w", op, nbytes, c.MemoryLimitBytes, ErrMemoryLimit)
	case MemoryWarn:
		Logger.Printf("%s: allocation of %d bytes exceeds the %d-byte memory limit", op, nbytes, c.MemoryLimitBytes)
	}
	return nil
}

// freeze marks the config as in-use by an opened map. Per §5, callers
// must not mutate a Config after this point; freeze itself does not
// enforce that (Config has no setters once constructed, only exported
// fields set before the first Open call), it just records the fact for
// diagnostics.
func (c *Config) freeze() {
	if c.frozen == nil {
		c.frozen = new(atomic.Bool)
	}
	if !c.frozen.Swap(true) {
		Logger.Printf("raster3d: configuration frozen on first map open")
	}
}

// Logger is the package-wide logger, matching the teacher's
// package-level *log.Logger (cmd/qrank-builder/main.go). raster3d
// logs here from its memory-limit checks, when a Config is frozen,
// when Close fails to write or mirror the range sidecar or to close or
// remove the spill file, and from the LoggingWarnings recorder; most
// errors are returned to the caller without a log line.
var Logger = log.New(os.Stderr, "raster3d: ", log.Ldate|log.Ltime|log.Lshortfile)
