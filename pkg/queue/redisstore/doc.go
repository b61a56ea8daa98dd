// Package redisstore implements the queue repositories on Redis.
//
// Layout, with every key under the configured prefix:
//
//	<prefix>:entries             hash, entry id -> entry JSON
//	<prefix>:pending:<queue>     sorted set, entry id scored by run-at (unix ms)
//	<prefix>:processing          sorted set, entry id scored by lock expiry
//	<prefix>:dead                hash, dead entry id -> dead entry JSON
//	<prefix>:dead:index          sorted set, dead entry id scored by failure time
//
// Transitions run as Lua scripts, so moving an id out of one sorted set,
// rewriting its entry and adding it to the next set happen together. Only the
// worker whose script removed the id from pending owns the entry. Completed
// entries are deleted. On Redis Cluster use a hash-tagged prefix such as
// "{spool}" so all keys share a slot.
//
//	client, err := redisstore.Connect(ctx, cfg)
//	store := redisstore.New(client, redisstore.WithKeyPrefix(cfg.KeyPrefix))
//	enqueuer, _ := queue.NewEnqueuer(store)
package redisstore
