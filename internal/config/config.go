// Package config holds the process-wide, read-once-at-start configuration
// value described in spec.md §9 ("global mutable settings"). Apart from
// cmd/podflow, which reads its blocklist and storage-key variables itself,
// nothing in the module reads an environment variable or a package-level
// global directly; Config is threaded explicitly from main into the
// scheduler, cache and reducers.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config is immutable once constructed by Default/FromEnv.
type Config struct {
	Port            uint32
	MetricsPort     uint32
	MetricsEnabled  bool
	CacheSizeMB     uint64
	NThreads        int
	ChunkBudget     int
	TrustedProxies  []string
	StorageAccounts []string
	Debug           bool
}

// Default is the zero-config baseline (8080 / 8081 / no metrics / no cache)
// plus two engine-specific knobs: NThreads defaults to the host's CPU count
// (spec.md §5) and ChunkBudget defaults to a conservative one million cells
// per reduce tile (spec.md §4.2/§4.9).
func Default() Config {
	return Config{
		Port:        8080,
		MetricsPort: 8081,
		NThreads:    runtime.NumCPU(),
		ChunkBudget: 1_000_000,
	}
}

func parseUint32(fallback uint32, v string) uint32 {
	if v == "" {
		return fallback
	}
	out, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(out)
}

func parseUint64(fallback uint64, v string) uint64 {
	if v == "" {
		return fallback
	}
	out, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return out
}

func parseInt(fallback int, v string) int {
	if v == "" {
		return fallback
	}
	out, err := strconv.Atoi(v)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func parseBool(fallback bool, v string) bool {
	out, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return out
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	items := strings.Split(v, ",")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}

// FromEnv overlays environment variables onto the defaults, using a
// PODFLOW_* prefix throughout.
func FromEnv() Config {
	c := Default()
	c.Port = parseUint32(c.Port, os.Getenv("PODFLOW_PORT"))
	c.MetricsPort = parseUint32(c.MetricsPort, os.Getenv("PODFLOW_METRICS_PORT"))
	c.MetricsEnabled = parseBool(c.MetricsEnabled, os.Getenv("PODFLOW_METRICS"))
	c.CacheSizeMB = parseUint64(c.CacheSizeMB, os.Getenv("PODFLOW_CACHE_SIZE"))
	c.NThreads = parseInt(c.NThreads, os.Getenv("PODFLOW_THREADS"))
	c.ChunkBudget = parseInt(c.ChunkBudget, os.Getenv("PODFLOW_CHUNK_BUDGET"))
	c.TrustedProxies = parseList(os.Getenv("PODFLOW_TRUSTED_PROXIES"))
	c.StorageAccounts = parseList(os.Getenv("PODFLOW_STORAGE_ACCOUNTS"))
	c.Debug = parseBool(c.Debug, os.Getenv("PODFLOW_DEBUG"))
	return c
}
