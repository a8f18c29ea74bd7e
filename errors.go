package ragp

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is by callers that need to
// distinguish failure kinds: validation, runtime-absent, routing.
var (
	ErrUnknownNode     = errors.New("ragp: unknown node id")
	ErrAsyncNotStarted = errors.New("ragp: async runtime not started")
	ErrAsyncRouting    = errors.New("ragp: failed to route message to owner shard")
)

// UnknownNodeError names the role ("sender", "receiver", "seed") and id
// that failed validation, so callers can report exactly which endpoint
// of a request was unrecognized.
type UnknownNodeError struct {
	Role string
	ID   uint64
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("ragp: unknown %s id %d", e.Role, e.ID)
}

func (e *UnknownNodeError) Is(target error) bool { return target == ErrUnknownNode }

func unknownNode(role string, id uint64) error {
	return &UnknownNodeError{Role: role, ID: id}
}
