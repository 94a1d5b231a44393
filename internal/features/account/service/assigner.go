package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// TribeAssigner decides which tribe a new account joins when the caller
// does not name one. Strategies are injected at startup so the policy is
// explicit and testable rather than baked into the provisioning call.
type TribeAssigner interface {
	Assign(ctx context.Context) (int64, error)
}

type fixedAssigner struct {
	tribeID int64
}

// NewFixedAssigner always assigns the given tribe.
func NewFixedAssigner(tribeID int64) TribeAssigner {
	return &fixedAssigner{tribeID: tribeID}
}

func (a *fixedAssigner) Assign(ctx context.Context) (int64, error) {
	return a.tribeID, nil
}

type randomAssigner struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	tribeIDs []int64
}

// NewRandomAssigner assigns a uniformly random tribe from tribeIDs.
// The rand source is injected so tests can seed it.
func NewRandomAssigner(tribeIDs []int64, rnd *rand.Rand) (TribeAssigner, error) {
	if len(tribeIDs) == 0 {
		return nil, fmt.Errorf("random assigner requires at least one tribe")
	}
	ids := make([]int64, len(tribeIDs))
	copy(ids, tribeIDs)
	return &randomAssigner{rnd: rnd, tribeIDs: ids}, nil
}

func (a *randomAssigner) Assign(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tribeIDs[a.rnd.Intn(len(a.tribeIDs))], nil
}
