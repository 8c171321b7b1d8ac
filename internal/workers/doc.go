/*
Package workers provides utilities for determining optimal worker pool sizes
in containerized environments.

When running in a container, the number of available CPUs may be limited by
cgroup constraints. Go 1.19+ sets GOMAXPROCS from the container CPU limit,
but runtime.NumCPU() still reports the host machine's count. The helpers
here derive worker counts from GOMAXPROCS so batch work respects resource
limits.

	// CPU-intensive work (decoding, resizing)
	n := workers.ForCPU(8)

	// I/O-bound work (hashing files, external tool calls)
	n := workers.ForIO(16)

	// Mixed work (ingestion: read file, decode, insert)
	n := workers.ForMixed(12)

All functions respect the INGEST_WORKERS environment variable, allowing
operators to override the automatic calculation:

	INGEST_WORKERS=4 photocat ingest /photos

All functions are safe for concurrent use.
*/
package workers
