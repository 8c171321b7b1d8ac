package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Pool multipliers, in workers per available CPU.
const (
	cpuBound = 1.0
	ioBound  = 2.0
	mixed    = 1.5
)

// Count sizes a pool as multiplier workers per available CPU, clamped
// to at least one and to limit when limit is positive. GOMAXPROCS
// already reflects container CPU quotas, so no cgroup probing is
// needed here. The INGEST_WORKERS environment variable overrides the
// calculation; the limit still applies.
func Count(multiplier float64, limit int) int {
	if v := os.Getenv("INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return clamp(n, limit)
		}
	}
	return clamp(int(float64(runtime.GOMAXPROCS(0))*multiplier), limit)
}

func clamp(n, limit int) int {
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU sizes a pool for CPU-bound work such as image decoding.
func ForCPU(limit int) int { return Count(cpuBound, limit) }

// ForIO sizes a pool for IO-bound work such as fingerprinting files.
func ForIO(limit int) int { return Count(ioBound, limit) }

// ForMixed sizes a pool for the ingest path, which interleaves
// decoding with exiftool calls and database writes.
func ForMixed(limit int) int { return Count(mixed, limit) }
