package queue_test

import (
	"context"
	"fmt"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

// Example_spooledTask defers a task through the in-memory queue and runs it
// in a worker.
func Example_spooledTask() {
	storage := queue.NewMemoryStorage()
	enqueuer, err := queue.NewEnqueuer(storage)
	if err != nil {
		panic(err)
	}

	sp := spool.New(
		spool.WithLogger(logger.Discard()),
		spool.WithBackend(queue.NewBackend(enqueuer)),
	)
	greet := sp.MustRegister(spool.Descriptor{
		Name:   "greet",
		Params: []spool.Param{spool.Arg("name")},
		Func: func(_ context.Context, call *spool.Call) error {
			var name string
			if err := call.Arg(0, &name); err != nil {
				return err
			}
			fmt.Printf("hello %s (deferred: %v)\n", name, call.Envelope.Deferred())
			return nil
		},
	})

	if err := greet.Call(context.Background(), "world"); err != nil {
		panic(err)
	}
	fmt.Println("task spooled")

	worker, err := queue.NewWorker(storage, queue.SpoolHandler(sp), queue.WithWorkerLogger(logger.Discard()))
	if err != nil {
		panic(err)
	}
	if _, err := worker.ProcessNext(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// task spooled
	// hello world (deferred: true)
}
