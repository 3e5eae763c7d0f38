package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"equilex/pkg/requestcontext"
)

// Store persists the ordered event log. AppendBatch assigns sequence numbers
// and is atomic: either every event in the batch becomes durable or none does.
// Events are never rewritten.
type Store interface {
	AppendBatch(ctx context.Context, events []Event) ([]Event, error)
	ListAfter(ctx context.Context, afterSeq uint64, limit int, kinds []Kind) ([]Event, error)
}

// Emitter is the write side services see. Emits are staged and only reach the
// store when the enclosing action commits, so a failed action leaves no events.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Publisher stages events for the current action and flushes them to the store
// on commit. The dispatcher serializes actions, so a single publisher instance
// is shared by all services without extra locking.
type Publisher struct {
	store   Store
	pending []Event
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit stages an event. Timestamps default to the request-scoped clock and IDs
// are assigned here so services stay free of uuid plumbing.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = requestcontext.Now(ctx)
	}
	if event.ID == (uuid.UUID{}) {
		event.ID = uuid.New()
	}
	p.pending = append(p.pending, event)
}

// Flush appends all staged events to the store in order. Fail-closed: an
// append error aborts the enclosing action, and the atomic batch append
// guarantees no event of a failed action is observable.
func (p *Publisher) Flush(ctx context.Context) ([]Event, error) {
	if len(p.pending) == 0 {
		return nil, nil
	}
	appended, err := p.store.AppendBatch(ctx, p.pending)
	if err != nil {
		return nil, fmt.Errorf("flush outbox events: %w", err)
	}
	p.pending = nil
	return appended, nil
}

// Discard drops staged events after a failed action.
func (p *Publisher) Discard() {
	p.pending = nil
}

// PendingCount reports staged events awaiting flush.
func (p *Publisher) PendingCount() int { return len(p.pending) }
