package outbox

import (
	"context"
	"sync"
)

const defaultListLimit = 100

// InMemoryStore keeps the event log in process memory. It is the authoritative
// store for single-node deployments and for tests; the postgres store provides
// durability when configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AppendBatch(_ context.Context, events []Event) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appended := make([]Event, 0, len(events))
	for _, event := range events {
		event.Seq = uint64(len(s.events)) + 1
		s.events = append(s.events, event)
		appended = append(appended, event)
	}
	return appended, nil
}

func (s *InMemoryStore) ListAfter(_ context.Context, afterSeq uint64, limit int, kinds []Kind) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = defaultListLimit
	}

	wanted := func(Kind) bool { return true }
	if len(kinds) > 0 {
		set := make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			set[k] = true
		}
		wanted = func(k Kind) bool { return set[k] }
	}

	var out []Event
	for _, event := range s.events {
		if event.Seq <= afterSeq || !wanted(event.Kind) {
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
