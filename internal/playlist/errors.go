package playlist

import (
	"errors"
	"fmt"
)

// ErrCorrupt marks a view that is no longer a well formed doubly linked
// list, or an operation that references a node that does not exist.
// Callers must not repair it locally; the only recovery is a full resync.
var ErrCorrupt = errors.New("playlist: protocol corruption")

type CorruptionError struct {
	Op     string
	Hash   string
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Hash == "" {
		return fmt.Sprintf("playlist: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("playlist: %s %q: %s", e.Op, e.Hash, e.Reason)
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorrupt
}

func corrupt(op, hash, reason string) error {
	return &CorruptionError{Op: op, Hash: hash, Reason: reason}
}
