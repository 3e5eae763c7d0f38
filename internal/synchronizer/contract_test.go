package synchronizer

import (
	"equilex/internal/dispatch"
	"equilex/internal/outbox"
)

// The engine's concrete types must keep satisfying the synchronizer contract.
var (
	_ Submitter = (*dispatch.Dispatcher)(nil)
	_ EventSink = (*outbox.InMemoryStore)(nil)
	_ EventSink = (*outbox.PostgresStore)(nil)
)
