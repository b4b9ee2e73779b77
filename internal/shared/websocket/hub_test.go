package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func newRegistered(h *Hub, id string) *Client {
	c := h.NewClient(nil, id)
	h.RegisterClient(c)
	return c
}

func receive(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		require.True(t, ok, "send channel closed for %s", c.ID)
		return string(msg)
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", c.ID)
		return ""
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected message for %s: %s", c.ID, msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastReachesOnlyChannelMembers(t *testing.T) {
	h := startHub(t)
	a := newRegistered(h, "a")
	b := newRegistered(h, "b")
	outsider := newRegistered(h, "outsider")

	h.Join(a, "room-1")
	h.Join(b, "room-1")
	h.Join(outsider, "room-2")

	h.BroadcastToChannel("room-1", []byte("hello"))

	assert.Equal(t, "hello", receive(t, a))
	assert.Equal(t, "hello", receive(t, b))
	assertSilent(t, outsider)
}

func TestBroadcastFuncRendersByPrivateChannel(t *testing.T) {
	h := startHub(t)
	tab1 := newRegistered(h, "tab1")
	tab2 := newRegistered(h, "tab2")
	other := newRegistered(h, "other")

	for _, c := range []*Client{tab1, tab2, other} {
		h.Join(c, "room")
	}
	h.Join(tab1, "user:alice")
	h.Join(tab2, "user:alice")
	h.Join(other, "user:bob")

	h.BroadcastFunc("room", func(c *Client) []byte {
		if c.In("user:alice") {
			return []byte("self")
		}
		return []byte("other")
	})

	assert.Equal(t, "self", receive(t, tab1))
	assert.Equal(t, "self", receive(t, tab2))
	assert.Equal(t, "other", receive(t, other))
}

func TestJoinAndLeaveAreIdempotent(t *testing.T) {
	h := startHub(t)
	c := newRegistered(h, "c")

	h.Join(c, "room")
	h.Join(c, "room")
	assert.Equal(t, 1, h.Stats().Channels["room"])

	h.Leave(c, "room")
	h.Leave(c, "room")
	_, ok := h.Stats().Channels["room"]
	assert.False(t, ok, "empty channel should be removed")

	h.BroadcastToChannel("room", []byte("x"))
	assertSilent(t, c)
}

func TestUnregisterRemovesAllMemberships(t *testing.T) {
	h := startHub(t)
	c := newRegistered(h, "c")
	h.Join(c, "room")
	h.Join(c, "user:1")

	h.UnregisterClient(c)
	h.UnregisterClient(c)

	stats := h.Stats()
	assert.Equal(t, 0, stats.Clients)
	assert.Empty(t, stats.Channels)

	_, ok := <-c.Send
	assert.False(t, ok, "send channel should be closed")
	assert.False(t, c.Enqueue([]byte("late")))
}

func TestJoinIgnoresUnregisteredClient(t *testing.T) {
	h := startHub(t)
	c := h.NewClient(nil, "ghost")

	h.Join(c, "room")

	assert.Empty(t, h.Stats().Channels)
}

func TestSlowClientIsDropped(t *testing.T) {
	h := startHub(t)
	slow := newRegistered(h, "slow")
	h.Join(slow, "room")

	for i := 0; i < sendBufferSize+1; i++ {
		h.BroadcastToChannel("room", []byte("tick"))
	}

	require.Eventually(t, func() bool {
		return h.Stats().Clients == 0
	}, time.Second, 10*time.Millisecond)
}
