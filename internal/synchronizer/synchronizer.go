// Package synchronizer defines the contract between the engine and the
// external synchronizer that mirrors back-office state into it. The
// synchronizer itself runs elsewhere; this package only fixes the two surfaces
// it touches: action submission and ordered event consumption.
package synchronizer

import (
	"context"

	"equilex/internal/dispatch"
	"equilex/internal/outbox"
)

// Submitter accepts action envelopes for atomic application. The synchronizer
// may retry freely: every action is rejected rather than double-applied when
// its effect already holds.
type Submitter interface {
	Submit(ctx context.Context, env dispatch.Envelope) (*dispatch.Receipt, error)
}

// EventSink is the ordered poll surface over the engine's event log. Callers
// track the last sequence they have durably consumed and pass it back as
// afterSeq; kinds narrows the poll to a subset of event kinds, nil means all.
type EventSink interface {
	ListAfter(ctx context.Context, afterSeq uint64, limit int, kinds []outbox.Kind) ([]outbox.Event, error)
}
