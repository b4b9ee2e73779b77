package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cristianortiz/artAuction/internal/auction/application"
	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/auction/infra/fanout"
	"github.com/cristianortiz/artAuction/internal/auction/infra/repository/memory"
	"github.com/cristianortiz/artAuction/internal/auction/infra/session"
	"github.com/cristianortiz/artAuction/internal/auth"
	"github.com/cristianortiz/artAuction/internal/shared/events"
	"github.com/cristianortiz/artAuction/internal/shared/httpserver"
	"github.com/cristianortiz/artAuction/internal/shared/websocket"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	addr     string
	tokens   *auth.TokenService
	ledger   *application.BidLedger
	sessions *session.RedisStore
	room     *domain.Room
	users    map[string]userdomain.User
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))
	store := memory.NewStore(clock)
	users := map[string]userdomain.User{}
	for _, name := range []string{"Ana", "Bo"} {
		u := userdomain.User{ID: uuid.New(), Name: name, Email: fmt.Sprintf("%s@example.com", name)}
		store.Users().Add(u)
		users[name] = u
	}
	item := domain.Item{
		ID:        uuid.New(),
		ItemName:  "Nocturne",
		StartDate: clock.Now().Add(-time.Hour),
		EndDate:   clock.Now().Add(time.Hour),
	}
	store.AddItem(item)

	ledger := application.NewBidLedger(store, store.Users())
	scheduler := application.NewRoomLifecycleScheduler(store, ledger, events.NopPublisher{}, clock,
		application.SchedulerOptions{Interval: time.Hour})
	orders := application.NewOrderTransaction(store, ledger, events.NopPublisher{}, clock)
	service := application.NewAuctionService(ledger, scheduler, orders, events.NopPublisher{})

	_, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	room, err := scheduler.FindOne(ctx, item.ID)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hub := websocket.NewHub()
	go hub.Run(ctx)

	tokens := auth.NewTokenService("test-secret", time.Hour)
	sessions := session.NewRedisStore(rdb, time.Hour)
	gateway := NewGateway(service, sessions, fanout.NewLocal(), hub, tokens,
		store.Users(), Options{BidTimeout: 2 * time.Second, SessionTTL: time.Hour})
	require.NoError(t, gateway.Listen(ctx))

	server := httpserver.NewServer()
	gateway.Register(server.App(), "/ws")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	return &testServer{
		addr:     ln.Addr().String(),
		tokens:   tokens,
		ledger:   ledger,
		sessions: sessions,
		room:     room,
		users:    users,
	}
}

type frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *testServer) url(itemID, roomID uuid.UUID) string {
	return fmt.Sprintf("ws://%s/ws?item_id=%s&room_id=%s", s.addr, itemID, roomID)
}

// dial connects as user with the given session cookie, empty means none
func (s *testServer) dial(t *testing.T, user, sessionID string) *gws.Conn {
	t.Helper()
	conn, resp, err := s.dialRoom(t, user, sessionID, s.room.ItemID, s.room.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	ack := read(t, conn)
	require.Equal(t, MessageTypeJoin, ack.Type, string(ack.Payload))
	return conn
}

func (s *testServer) dialRoom(t *testing.T, user, sessionID string, itemID, roomID uuid.UUID) (*gws.Conn, *http.Response, error) {
	t.Helper()
	token, err := s.tokens.IssueToken(s.users[user].ID)
	require.NoError(t, err)
	cookie := auth.AccessTokenCookie + "=" + token
	if sessionID != "" {
		cookie += "; " + SessionCookie + "=" + sessionID
	}
	header := http.Header{}
	header.Set("Cookie", cookie)
	return gws.DefaultDialer.Dial(s.url(itemID, roomID), header)
}

func read(t *testing.T, conn *gws.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func readBidText(t *testing.T, conn *gws.Conn) string {
	t.Helper()
	f := read(t, conn)
	require.Equal(t, MessageTypeBid, f.Type, string(f.Payload))
	var b BidBroadcast
	require.NoError(t, json.Unmarshal(f.Payload, &b))
	return b.Text
}

func send(t *testing.T, conn *gws.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(msg)))
}

func TestBidBroadcastUsesSelfAndOtherPhrasing(t *testing.T) {
	s := startServer(t)
	anaTab1 := s.dial(t, "Ana", "sess-ana")
	anaTab2 := s.dial(t, "Ana", "sess-ana")
	bo := s.dial(t, "Bo", "sess-bo")

	send(t, anaTab1, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":"9000"}}`, s.room.ID))

	assert.Equal(t, "You bid 9000", readBidText(t, anaTab1))
	assert.Equal(t, "You bid 9000", readBidText(t, anaTab2))
	assert.Equal(t, "Ana (Ana@example.com) bid 9000", readBidText(t, bo))

	send(t, bo, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":80000}}`, s.room.ID))

	assert.Equal(t, "You bid 80000", readBidText(t, bo))
	assert.Equal(t, "Bo (Bo@example.com) bid 80000", readBidText(t, anaTab1))
	assert.Equal(t, "Bo (Bo@example.com) bid 80000", readBidText(t, anaTab2))

	highest, err := s.ledger.FindHighest(context.Background(), s.room.ItemID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(80000).Equal(highest.Price))
	assert.Equal(t, "Bo", highest.BidderName)
}

func TestHandshakeWithoutSessionMintsOne(t *testing.T) {
	s := startServer(t)
	conn := s.dial(t, "Ana", "")

	send(t, conn, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":150}}`, s.room.ID))
	assert.Equal(t, "You bid 150", readBidText(t, conn))
}

func TestSessionOfAnotherUserIsNotReused(t *testing.T) {
	s := startServer(t)
	ana := s.dial(t, "Ana", "sess-ana")
	bo := s.dial(t, "Bo", "sess-ana")

	owner, found, err := s.sessions.Find(context.Background(), "sess-ana")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, s.users["Ana"].ID, owner)

	send(t, bo, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":300}}`, s.room.ID))
	assert.Equal(t, "You bid 300", readBidText(t, bo))
	assert.Equal(t, "Bo (Bo@example.com) bid 300", readBidText(t, ana))

	send(t, ana, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":400}}`, s.room.ID))
	assert.Equal(t, "You bid 400", readBidText(t, ana))
	assert.Equal(t, "Ana (Ana@example.com) bid 400", readBidText(t, bo))
}

func TestBidFailsWhenSessionRebindsToAnotherUser(t *testing.T) {
	s := startServer(t)
	ana := s.dial(t, "Ana", "shared")
	require.NoError(t, s.sessions.Save(context.Background(), "shared", s.users["Bo"].ID))

	send(t, ana, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":500}}`, s.room.ID))
	assertErrorThenClose(t, ana, "another user")

	highest, err := s.ledger.FindHighest(context.Background(), s.room.ItemID)
	require.NoError(t, err)
	assert.False(t, highest.Exists(), "no bid may be placed under the other user")
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	s := startServer(t)
	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-token")

	_, resp, err := gws.DefaultDialer.Dial(s.url(s.room.ItemID, s.room.ID), header)
	require.ErrorIs(t, err, gws.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func assertErrorThenClose(t *testing.T, conn *gws.Conn, contains string) {
	t.Helper()
	f := read(t, conn)
	require.Equal(t, MessageTypeError, f.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	assert.Contains(t, p.Details, contains)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed after an error event")
}

func TestHandshakeWithUnknownRoomFailsClosed(t *testing.T) {
	s := startServer(t)
	conn, resp, err := s.dialRoom(t, "Ana", "sess-ana", s.room.ItemID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	assertErrorThenClose(t, conn, "not found")
}

func TestBidOnRoomNotJoinedFailsClosed(t *testing.T) {
	s := startServer(t)
	conn := s.dial(t, "Ana", "sess-ana")

	send(t, conn, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":10}}`, uuid.New()))
	assertErrorThenClose(t, conn, "not joined")
}

func TestNonPositiveBidFailsClosed(t *testing.T) {
	s := startServer(t)
	conn := s.dial(t, "Ana", "sess-ana")

	send(t, conn, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":0}}`, s.room.ID))
	assertErrorThenClose(t, conn, "greater than zero")
}

func TestLeaveStopsRoomBroadcasts(t *testing.T) {
	s := startServer(t)
	ana := s.dial(t, "Ana", "sess-ana")
	bo := s.dial(t, "Bo", "sess-bo")

	send(t, bo, fmt.Sprintf(`{"type":"leave","payload":{"roomId":%q}}`, s.room.ID))
	ack := read(t, bo)
	require.Equal(t, MessageTypeLeave, ack.Type)

	send(t, ana, fmt.Sprintf(`{"type":"bid","payload":{"roomId":%q,"price":10}}`, s.room.ID))
	assert.Equal(t, "You bid 10", readBidText(t, ana))

	require.NoError(t, bo.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bo.ReadMessage()
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}
