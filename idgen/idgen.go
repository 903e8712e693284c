// Package idgen generates the identifiers attached to widget runs and slot
// records.
//
// Constructors that need IDs accept a Generator so tests can pin them.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// v7 IDs sort by creation time, which keeps slot history ordered.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator ("<prefix>1", "<prefix>2", ...).
// Not safe for concurrent use; meant for tests and golden output.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// Run is the generator used for pipeline run IDs.
var Run Generator = Prefixed("run_", UUIDv7())

// NewRun produces a run ID using the Run generator.
func NewRun() string {
	return Run()
}

// RunUUID extracts and validates the UUID part of a run ID.
func RunUUID(runID string) (uuid.UUID, error) {
	if len(runID) < 4 || runID[:4] != "run_" {
		return uuid.Nil, fmt.Errorf("idgen: %q is not a run id", runID)
	}
	u, err := uuid.Parse(runID[4:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("idgen: invalid run id: %w", err)
	}
	return u, nil
}
