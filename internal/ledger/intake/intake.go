// Package intake implements the candidate intake queue: a pre-mint holding
// area for artifacts a caller has submitted but not yet run through a
// minting pass. Candidates here are not yet tamper-evident; they become so
// only once sealed into a block.
package intake

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chittyos/chittychain/internal/ledgererr"
	"github.com/chittyos/chittychain/pkg/evidence"
)

// DefaultCapacity bounds how many candidates a Queue constructed by New
// will hold before Add starts refusing submissions.
const DefaultCapacity = 1024

// ErrAlreadyQueued is returned by Add when a candidate with the same id is
// already waiting in the queue.
var ErrAlreadyQueued = fmt.Errorf("candidate already queued: %w", ledgererr.ErrDuplicateID)

// ErrQueueFull is returned by Add once the queue holds its capacity of
// waiting candidates; the caller retries after the next drain.
var ErrQueueFull = errors.New("intake queue is at capacity")

// Queue holds candidate artifacts accepted from callers but not yet
// submitted to the minting pipeline. It has no opinion on admission policy;
// that is internal/ledger/validator's job once a batch is drained.
type Queue struct {
	mu         sync.RWMutex
	candidates map[string]*evidence.Artifact
	order      []string
	capacity   int
}

// New constructs an empty intake Queue holding at most DefaultCapacity
// waiting candidates.
func New() *Queue {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity constructs an empty intake Queue holding at most
// capacity waiting candidates; capacity <= 0 falls back to
// DefaultCapacity.
func NewWithCapacity(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{candidates: make(map[string]*evidence.Artifact), capacity: capacity}
}

// Add enqueues candidate. It refuses a second candidate with the same id
// already waiting, since the minting pipeline's own batch-level dedup only
// covers a single Drain call, not queue build-up across calls, and it
// refuses outright once the queue is at capacity.
func (q *Queue) Add(candidate *evidence.Artifact) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.candidates[candidate.ID]; exists {
		return fmt.Errorf("intake: id %s: %w", candidate.ID, ErrAlreadyQueued)
	}
	if len(q.order) >= q.capacity {
		return fmt.Errorf("intake: id %s: %w", candidate.ID, ErrQueueFull)
	}
	q.candidates[candidate.ID] = candidate
	q.order = append(q.order, candidate.ID)
	return nil
}

// Remove drops a candidate from the queue without submitting it, e.g. if a
// caller withdraws a submission before the next batch drains.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.candidates[id]; !ok {
		return
	}
	delete(q.candidates, id)
	for i, existing := range q.order {
		if existing == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of candidates currently waiting.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order)
}

// Drain removes and returns up to limit candidates in submission order, for
// handoff to the minting pipeline as one batch. limit <= 0 drains
// everything.
func (q *Queue) Drain(limit int) []*evidence.Artifact {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.order)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*evidence.Artifact, 0, n)
	for _, id := range q.order[:n] {
		out = append(out, q.candidates[id])
		delete(q.candidates, id)
	}
	q.order = q.order[n:]
	return out
}
