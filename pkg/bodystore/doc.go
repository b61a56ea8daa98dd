// Package bodystore keeps the bulky parameters of spooled jobs out of the
// queue payload.
//
// A spool.Spooler configured with WithBodyStore puts the encoded bulky
// parameters of every deferred job into the store, carries only the returned
// reference in the job, fetches the body when the job runs and deletes it
// once the job reaches a terminal state. Reschedules keep the same body.
//
// Two implementations are provided:
//
//   - Memory keeps bodies in process. Producer and worker must share it.
//   - S3 writes one object per job to an S3 or S3-compatible bucket.
//
//	store, err := bodystore.NewS3(ctx, bodystore.S3Config{Bucket: "spool", Region: "eu-west-2"})
//	sp := spool.New(spool.WithBackend(backend), spool.WithBodyStore(store))
package bodystore
