// Package natsbackend wraps a NATS connection as a secondary
// broker.Backend. NATS core pub/sub covers the channel half of the
// contract directly; the
// sorted-set cache half has no native NATS equivalent, so it is
// emulated with a JetStream key/value bucket holding one JSON-encoded,
// score-sorted entry list per cache key. This makes natsbackend usable
// for small jobs and for environments that already run NATS instead of
// Redis, at the cost of a read-modify-write on every cache mutation
// (documented as a known limitation, not attempted to be hidden).
package natsbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/cncaiprojem/progressd/internal/broker"
)

// Backend adapts a *nats.Conn plus a JetStream KV bucket to
// broker.Backend.
type Backend struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	mu     sync.Mutex // serializes the cache bucket's read-modify-write
}

type Config struct {
	URL        string
	BucketName string
}

// Dial connects to NATS and ensures the cache bucket exists.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("natsbackend: connect: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsbackend: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: cfg.BucketName,
		TTL:    broker.CacheTTLSeconds * time.Second,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsbackend: kv bucket: %w", err)
	}
	return &Backend{conn: conn, kv: kv}, nil
}

func (b *Backend) Close() {
	b.conn.Close()
}

func (b *Backend) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("natsbackend: publish %s: %w", channel, err)
	}
	return nil
}

func (b *Backend) Subscribe(ctx context.Context, channels ...string) (broker.Subscription, error) {
	sub := newSubscription()
	for _, ch := range channels {
		natsSub, err := b.conn.Subscribe(ch, sub.deliver)
		if err != nil {
			sub.Close()
			return nil, fmt.Errorf("natsbackend: subscribe %s: %w", ch, err)
		}
		sub.track(natsSub)
	}
	return sub, nil
}

type scoredMember struct {
	Score  float64 `json:"score"`
	Member []byte  `json:"member"`
}

func (b *Backend) readEntries(ctx context.Context, key string) ([]scoredMember, uint64, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("natsbackend: kv get %s: %w", key, err)
	}
	var entries []scoredMember
	if err := json.Unmarshal(entry.Value(), &entries); err != nil {
		return nil, 0, fmt.Errorf("natsbackend: decode cache entry %s: %w", key, err)
	}
	return entries, entry.Revision(), nil
}

func (b *Backend) writeEntries(ctx context.Context, key string, entries []scoredMember, revision uint64) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("natsbackend: encode cache entry %s: %w", key, err)
	}
	if revision == 0 {
		_, err = b.kv.Create(ctx, key, data)
	} else {
		_, err = b.kv.Update(ctx, key, data, revision)
	}
	if err != nil {
		return fmt.Errorf("natsbackend: kv put %s: %w", key, err)
	}
	return nil
}

func (b *Backend) CacheAppend(ctx context.Context, key string, score float64, member []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, revision, err := b.readEntries(ctx, key)
	if err != nil {
		return err
	}
	entries = append(entries, scoredMember{Score: score, Member: member})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score < entries[j].Score })
	return b.writeEntries(ctx, key, entries, revision)
}

func (b *Backend) CacheTrim(ctx context.Context, key string, keepLast int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, revision, err := b.readEntries(ctx, key)
	if err != nil {
		return err
	}
	if int64(len(entries)) <= keepLast {
		return nil
	}
	entries = entries[int64(len(entries))-keepLast:]
	return b.writeEntries(ctx, key, entries, revision)
}

// CacheExpire is a no-op: the bucket's TTL is configured once at
// creation time rather than refreshed per key, since JetStream KV TTLs
// apply bucket-wide, not per entry. This is a known divergence from
// the Redis backend's per-key refresh; documented, not hidden.
func (b *Backend) CacheExpire(ctx context.Context, key string, ttlSeconds int64) error {
	return nil
}

func (b *Backend) CacheRangeByScore(ctx context.Context, key string, minExclusive float64) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, _, err := b.readEntries(ctx, key)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for _, e := range entries {
		if e.Score > minExclusive {
			out = append(out, e.Member)
		}
	}
	return out, nil
}

func (b *Backend) CacheRevRange(ctx context.Context, key string, count int64) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, _, err := b.readEntries(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, count)
	for i := len(entries) - 1; i >= 0 && int64(len(out)) < count; i-- {
		out = append(out, entries[i].Member)
	}
	return out, nil
}
