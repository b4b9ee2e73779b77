package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() RoomEvent {
	return RoomEvent{
		BidID:       uuid.New(),
		RoomID:      uuid.New(),
		ItemID:      uuid.New(),
		BidderID:    uuid.New(),
		BidderName:  "Ana",
		BidderEmail: "ana@example.com",
		Price:       decimal.RequireFromString("80000.50"),
	}
}

func collect(t *testing.T, f Fanout) (context.CancelFunc, <-chan RoomEvent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan RoomEvent, 4)
	require.NoError(t, f.Subscribe(ctx, func(ev RoomEvent) { got <- ev }))
	return cancel, got
}

func awaitEvent(t *testing.T, ch <-chan RoomEvent) RoomEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("room event not delivered")
		return RoomEvent{}
	}
}

func TestRedisFanoutReachesEverySubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
	// two processes, each with its own client
	procA := NewRedis(newClient())
	procB := NewRedis(newClient())

	cancelA, gotA := collect(t, procA)
	defer cancelA()
	cancelB, gotB := collect(t, procB)
	defer cancelB()

	ev := sampleEvent()
	require.NoError(t, procA.Publish(context.Background(), ev))

	for _, ch := range []<-chan RoomEvent{gotA, gotB} {
		got := awaitEvent(t, ch)
		assert.Equal(t, ev.BidID, got.BidID)
		assert.Equal(t, ev.RoomID, got.RoomID)
		assert.True(t, ev.Price.Equal(got.Price))
		assert.Equal(t, "Ana", got.BidderName)
	}
}

func TestLocalFanoutStopsAfterCancel(t *testing.T) {
	l := NewLocal()
	cancel, got := collect(t, l)

	ev := sampleEvent()
	require.NoError(t, l.Publish(context.Background(), ev))
	assert.Equal(t, ev.BidID, awaitEvent(t, got).BidID)

	cancel()
	require.Eventually(t, func() bool {
		l.mu.RLock()
		defer l.mu.RUnlock()
		return len(l.handlers) == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, l.Publish(context.Background(), ev))
	select {
	case <-got:
		t.Fatal("event delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}
