// Package redis provides a Redis-backed checkpoint store.
//
// Checkpoints are stored as JSON strings under "<prefix>checkpoint:<id>" and
// indexed per thread in a sorted set "<prefix>thread:<thread>:checkpoints"
// scored by version, so the latest checkpoint is a single ZREVRANGE away.
//
//	s := redis.NewRedisCheckpointStore(redis.RedisOptions{
//		Addr:   "localhost:6379",
//		Prefix: "canvas:",
//		TTL:    24 * time.Hour,
//	})
package redis
