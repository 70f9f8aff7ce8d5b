package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/broker/redisbackend"
	"github.com/cncaiprojem/progressd/internal/progress"
)

func newTestBroker(t *testing.T) *broker.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	backend := redisbackend.New(client)
	return broker.New(backend, zerolog.Nop())
}

func progressMsg(jobID, eventID int64, milestone bool) *progress.Message {
	return &progress.Message{
		JobID:     jobID,
		EventID:   eventID,
		EventType: progress.EventProgressUpdate,
		Milestone: milestone,
	}
}

func TestPublishThenGetMissed(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	for i := int64(1); i <= 4; i++ {
		res, err := b.Publish(ctx, progressMsg(42, i, true), false)
		require.NoError(t, err)
		require.Equal(t, broker.Published, res)
	}

	missed, err := b.GetMissed(ctx, 42, 1)
	require.NoError(t, err)
	require.Len(t, missed, 3)
	require.Equal(t, int64(2), missed[0].EventID)
	require.Equal(t, int64(3), missed[1].EventID)
	require.Equal(t, int64(4), missed[2].EventID)
}

func TestThrottleDropsRapidNonMilestones(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	first, err := b.Publish(ctx, progressMsg(7, 1, false), false)
	require.NoError(t, err)
	require.Equal(t, broker.Published, first)

	second, err := b.Publish(ctx, progressMsg(7, 2, false), false)
	require.NoError(t, err)
	require.Equal(t, broker.Throttled, second)
}

func TestMilestoneBypassesThrottle(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	for i := int64(1); i <= 3; i++ {
		res, err := b.Publish(ctx, progressMsg(9, i, true), false)
		require.NoError(t, err)
		require.Equal(t, broker.Published, res)
	}
}

func TestForceBypassesThrottle(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	_, err := b.Publish(ctx, progressMsg(5, 1, false), false)
	require.NoError(t, err)

	res, err := b.Publish(ctx, progressMsg(5, 2, false), true)
	require.NoError(t, err)
	require.Equal(t, broker.Published, res)
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	for i := int64(1); i <= 3; i++ {
		_, err := b.Publish(ctx, progressMsg(11, i, true), false)
		require.NoError(t, err)
	}

	recent, err := b.Recent(ctx, 11, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, int64(3), recent[0].EventID)
	require.Equal(t, int64(2), recent[1].EventID)
}

func TestSubscribeReceivesPublishedMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b := newTestBroker(t)

	sub, err := b.Subscribe(ctx, 13)
	require.NoError(t, err)
	defer sub.Close()

	_, err = b.Publish(ctx, progressMsg(13, 1, true), false)
	require.NoError(t, err)

	select {
	case payload := <-sub.Messages():
		msg, err := progress.Decode(payload)
		require.NoError(t, err)
		require.Equal(t, int64(13), msg.JobID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for published message")
	}
}

func TestPublishAssignsFallbackEventIDWhenUnset(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t)

	msg := &progress.Message{JobID: 21, EventType: progress.EventPhase, Milestone: true}
	_, err := b.Publish(ctx, msg, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), msg.EventID)
}
