// Package events implements the ledger's in-process event bus: a
// lifecycle-scoped publish/subscribe mechanism with typed events for
// commit, reject, repair, and checkpoint notifications. There is no
// process-wide singleton; each ledger instance owns its own Bus.
package events

import (
	"sync"

	"github.com/chittyos/chittychain/internal/ledger/contradiction"
)

// BlockCommitted is published once a block has been appended to the
// chain.
type BlockCommitted struct {
	Index int64
	Hash  []byte
}

// ArtifactMinted is published once per surviving artifact in a committed
// block.
type ArtifactMinted struct {
	ID         string
	BlockIndex int64
}

// ArtifactRejected is published once per candidate rejected during a
// minting pass, including contradiction losers.
type ArtifactRejected struct {
	ID     string
	Reason string
}

// ContradictionRecorded is published once per detected conflict,
// regardless of which side won.
type ContradictionRecorded struct {
	Record contradiction.Record
}

// CheckpointCreated is published whenever the recovery service writes a
// new checkpoint.
type CheckpointCreated struct {
	ID string
}

// RecoveryPerformed is published after an auto_recover run completes.
type RecoveryPerformed struct {
	Strategy string
	Outcome  string
}

// Handler receives one event value per call. Handlers run synchronously on
// the writer's goroutine after the corresponding state change has already
// committed; they must not block for long and must not mutate ledger
// state (no re-entrant writer calls).
type Handler func(event any)

// Bus is a synchronous, lifecycle-scoped publish/subscribe hub. A Bus has
// no relationship to any other Bus instance; callers obtain one per ledger
// and pass it by reference.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
}

// New constructs an empty event bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers handler to receive every future published event. It
// returns an unsubscribe function.
func (b *Bus) Subscribe(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	idx := len(b.handlers) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.handlers) {
			b.handlers[idx] = nil
		}
	}
}

// Publish delivers event to every live subscriber, in subscription order,
// on the calling goroutine. Callers must only publish from the single
// writer after a state change has committed, preserving commit-order
// delivery.
func (b *Bus) Publish(event any) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(event)
		}
	}
}
