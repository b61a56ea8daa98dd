package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Task records the spooled task name under the key "task".
func Task(name string) slog.Attr {
	return slog.String("task", name)
}

// JobID records the deferred job identifier under the key "job_id".
// If id is nil, it returns an empty Attr.
func JobID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("job_id", id)
}

func EntryID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("entry_id", id)
}

func WorkerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("worker_id", id)
}

// Attempt records the 1-based attempt number under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// RetriesLeft records the remaining retry budget under the key "retries_left".
func RetriesLeft(n int) slog.Attr {
	return slog.Int("retries_left", n)
}

// State records a dispatch state under the key "state".
func State(s string) slog.Attr {
	return slog.String("state", s)
}

func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// Delay records a reschedule delay under the key "delay".
func Delay(d time.Duration) slog.Attr {
	return slog.Duration("delay", d)
}

// Duration records an elapsed duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Discard returns a logger that drops every record.
// Tests and examples use it to keep output quiet.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
