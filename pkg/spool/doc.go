// Package spool turns plain functions into spoolable tasks: calls that run
// in a background worker when one is available and in the caller otherwise.
//
// A task is declared with a Descriptor and registered on a Spooler, which owns
// an explicit Registry, a deferred execution Backend and the retry policy:
//
//	sp := spool.New(spool.WithBackend(queue.NewBackend(enqueuer)))
//	send := sp.MustRegister(spool.Descriptor{
//	    Name:          "send",
//	    Params:        []spool.Param{spool.Arg("to"), spool.Arg("subject"), spool.Kwarg("context")},
//	    EnvelopeParam: "ctx",
//	    Retries:       2,
//	    RetryOn:       []error{ErrConnection},
//	    BulkyParams:   []string{"context"},
//	    Func: func(ctx context.Context, call *spool.Call) error {
//	        var args struct {
//	            To      string         `json:"to"`
//	            Subject string         `json:"subject"`
//	            Context map[string]any `json:"context"`
//	        }
//	        if err := call.Bind(&args); err != nil {
//	            return err
//	        }
//	        ...
//	    },
//	})
//
//	err := send.Invoke(ctx, []any{"user@example.com", "hi"}, map[string]any{"context": big})
//
// # Execution
//
// Invoke checks the arguments against the declared parameters, then either
// submits a Job to the backend (deferred) or runs the body in the calling
// goroutine (synchronous). Deferred invocations are one-way: the caller sees
// submission errors only. Synchronous runs retry retryable errors in place,
// pausing briefly between attempts, and return the final error.
//
// Every run receives an Envelope through Call telling the body whether it is
// deferred, which attempt it is and how many retries remain.
//
// # Dispatch
//
// The worker framework hands each job to Spooler.Handle. Handle decodes the
// arguments, looks the task up, runs it and reports StatusOK or, for jobs it
// does not recognise, StatusIgnore. Retry is owned by the spooler: a
// retryable failure with budget left is resubmitted as a new job with one
// retry fewer and a delay of attempt*period. Malformed payloads and
// non-retryable failures are logged and dropped.
//
// Handle does not deduplicate; a job delivered twice runs twice.
//
// # Bulky parameters
//
// Keyword arguments named in BulkyParams travel in the job body rather than
// in the argument payload. With WithBodyStore the body is written to a
// BodyStore and only a reference travels with the job.
package spool
