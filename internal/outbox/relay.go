package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// EventProducer is the broker side of the relay. Satisfied by the Kafka
// producer in internal/platform/kafka.
type EventProducer interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Relay tails the event log and mirrors it to the synchronizer's topic. It
// tracks its own cursor, so a restart replays from the beginning and relies on
// consumer-side idempotency keyed by event ID.
type Relay struct {
	store    Store
	producer EventProducer
	logger   *slog.Logger
	interval time.Duration
	cursor   uint64
}

func NewRelay(store Store, producer EventProducer, logger *slog.Logger) *Relay {
	return &Relay{
		store:    store,
		producer: producer,
		logger:   logger,
		interval: time.Second,
	}
}

// Run drains new events until the context is cancelled. Publish failures stop
// the relay so the supervisor can restart it; the cursor only advances past
// events the broker accepted.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	for {
		events, err := r.store.ListAfter(ctx, r.cursor, defaultListLimit, nil)
		if err != nil {
			return fmt.Errorf("relay list events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, event := range events {
			value, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("relay marshal event: %w", err)
			}
			if err := r.producer.Publish(ctx, []byte(event.Key()), value); err != nil {
				return fmt.Errorf("relay publish seq %d: %w", event.Seq, err)
			}
			r.cursor = event.Seq
		}
		r.logger.DebugContext(ctx, "relayed events", "through_seq", r.cursor)
	}
}
