package backoff

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
)

// ContainerSeed derives a per-process seed from host identity and process id.
// Two governor instances running in separate containers get uncorrelated jitter
// without any coordination channel; the same process always derives the same
// seed for its lifetime.
func ContainerSeed() int64 {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return SeedFor(host, os.Getpid())
}

// SeedFor derives the seed for an explicit host identity and pid. Split out so
// tests and fleet simulations can derive seeds for synthetic instances.
func SeedFor(host string, pid int) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%d", host, pid)))
	return int64(binary.BigEndian.Uint64(sum[:8])) //nolint:gosec // intentional wrap to signed
}
