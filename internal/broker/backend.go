package broker

import "context"

// Subscription is a scoped acquisition of a channel receive path. Close
// must be safe to call more than once and must release the underlying
// backend resource on every exit path.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Backend is the external pub/sub + ordered-cache collaborator the
// broker is built over: channel publish/subscribe, sorted-set
// append/range-by-score/trim, and key TTL. Any system offering these
// primitives satisfies it; the production implementation is
// internal/broker/redisbackend, the secondary one is
// internal/broker/natsbackend.
type Backend interface {
	// Publish sends payload to every current subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe opens a receive path for one or more channels. The
	// caller owns the returned Subscription and must Close it.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)

	// CacheAppend adds member to the ordered set at key, scored by
	// score (the event_id).
	CacheAppend(ctx context.Context, key string, score float64, member []byte) error

	// CacheTrim keeps only the highest-scored keepLast members at key,
	// dropping the rest.
	CacheTrim(ctx context.Context, key string, keepLast int64) error

	// CacheExpire (re)sets key's TTL.
	CacheExpire(ctx context.Context, key string, ttlSeconds int64) error

	// CacheRangeByScore returns members at key scored in (minExclusive, +inf),
	// ascending by score.
	CacheRangeByScore(ctx context.Context, key string, minExclusive float64) ([][]byte, error)

	// CacheRevRange returns up to count members at key, newest (highest
	// scored) first.
	CacheRevRange(ctx context.Context, key string, count int64) ([][]byte, error)
}
