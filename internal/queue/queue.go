// Package queue holds the pending identifiers of a single fetch run.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/torosent/rangefetch/internal/resource"
)

var (
	ErrAlreadySeeded = errors.New("queue already seeded")
	ErrDuplicateID   = errors.New("duplicate identifier")
)

// Queue is a seed-once, drain-concurrently collection of identifiers.
//
// Seed fills a channel buffered to exactly the number of identifiers and
// closes it, so TryDequeue never blocks: it either receives the next
// identifier or observes the closed, drained channel. Each identifier is
// handed to exactly one caller.
type Queue struct {
	mu     sync.Mutex
	items  chan resource.ID
	seeded bool
}

func New() *Queue {
	return &Queue{}
}

// Seed populates the queue. It may be called exactly once, before any consumer starts.
func (q *Queue) Seed(ids []resource.ID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seeded {
		return ErrAlreadySeeded
	}

	seen := make(map[resource.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}

	items := make(chan resource.ID, len(ids))
	for _, id := range ids {
		items <- id
	}
	close(items)

	q.items = items
	q.seeded = true
	return nil
}

// TryDequeue returns the next identifier, or false once the queue is empty.
// After the first false every subsequent call also returns false.
func (q *Queue) TryDequeue() (resource.ID, bool) {
	items := q.channel()
	if items == nil {
		return 0, false
	}
	select {
	case id, ok := <-items:
		return id, ok
	default:
		return 0, false
	}
}

// Len returns the number of identifiers not yet dequeued.
func (q *Queue) Len() int {
	items := q.channel()
	if items == nil {
		return 0
	}
	return len(items)
}

func (q *Queue) channel() chan resource.ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items
}
