package queue

import (
	"context"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

type (
	// Handler processes one claimed entry. StatusOK completes the entry;
	// StatusIgnore moves it to the dead-letter queue.
	Handler interface {
		Handle(ctx context.Context, entry *Entry) spool.Status
	}

	// HandlerFunc adapts a function to Handler
	HandlerFunc func(ctx context.Context, entry *Entry) spool.Status
)

func (f HandlerFunc) Handle(ctx context.Context, entry *Entry) spool.Status {
	return f(ctx, entry)
}

// SpoolHandler hands entry payloads to the spooler's dispatcher.
func SpoolHandler(s *spool.Spooler) Handler {
	return HandlerFunc(func(ctx context.Context, entry *Entry) spool.Status {
		return s.HandlePayload(ctx, entry.Payload)
	})
}
