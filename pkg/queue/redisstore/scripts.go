package redisstore

import "github.com/redis/go-redis/v9"

// Every state transition touches the entries hash and at least one sorted
// set. The scripts run them as one unit so an id is never in two sets, or in
// none while its entry still exists.

// createScript: KEYS entries, pending. ARGV id, entry JSON, run-at score.
var createScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// moveScript moves an id between sorted sets and rewrites its entry.
// KEYS from, to, entries. ARGV id, entry JSON, new score, and an optional
// bound the id's current score must be below.
var moveScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not current then
	return 0
end
if ARGV[4] ~= '' and tonumber(current) >= tonumber(ARGV[4]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// completeScript: KEYS processing, entries. ARGV id.
var completeScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HDEL', KEYS[2], ARGV[1])
return 1
`)

// reviveScript: KEYS entries, pending, dead, dead index.
// ARGV entry id, entry JSON, run-at score, dead entry id.
var reviveScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[3], ARGV[4]) == 0 then
	return -1
end
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[4])
redis.call('ZREM', KEYS[4], ARGV[4])
return 1
`)
