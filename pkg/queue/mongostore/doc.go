// Package mongostore implements the queue repositories on MongoDB.
//
//	client, err := mongostore.Connect(ctx, cfg)
//	store := mongostore.New(client.Database(cfg.Database), cfg.CollectionPrefix)
//	if err := store.EnsureIndexes(ctx); err != nil { ... }
//
// Entry ids are stored as strings in _id. Claims use FindOneAndUpdate sorted
// by run-at time.
package mongostore
