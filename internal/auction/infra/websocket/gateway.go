package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cristianortiz/artAuction/internal/auction/application"
	"github.com/cristianortiz/artAuction/internal/auction/infra/fanout"
	"github.com/cristianortiz/artAuction/internal/auction/infra/session"
	"github.com/cristianortiz/artAuction/internal/auth"
	"github.com/cristianortiz/artAuction/internal/shared/logger"
	"github.com/cristianortiz/artAuction/internal/shared/metrics"
	"github.com/cristianortiz/artAuction/internal/shared/websocket"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const (
	SessionCookie = "socket_session_id"

	localUser      = "ws.user"
	localSessionID = "ws.sessionID"
	localItemID    = "ws.itemID"
	localRoomID    = "ws.roomID"
)

func roomChannel(roomID uuid.UUID) string    { return "room:" + roomID.String() }
func privateChannel(userID uuid.UUID) string { return "user:" + userID.String() }

// Gateway accepts auction websocket connections (the bounded context's real-time edge)
type Gateway struct {
	service    application.AuctionService
	sessions   session.Store
	fanout     fanout.Fanout
	hub        *websocket.Hub
	tokens     auth.TokenValidator
	users      userdomain.Repository
	validate   *validator.Validate
	bidTimeout time.Duration
	sessionTTL time.Duration
}

type Options struct {
	BidTimeout time.Duration
	SessionTTL time.Duration
}

// NewGateway creates a new instance of Gateway
func NewGateway(service application.AuctionService, sessions session.Store, fan fanout.Fanout,
	hub *websocket.Hub, tokens auth.TokenValidator, users userdomain.Repository, opts Options) *Gateway {

	return &Gateway{
		service:    service,
		sessions:   sessions,
		fanout:     fan,
		hub:        hub,
		tokens:     tokens,
		users:      users,
		validate:   validator.New(),
		bidTimeout: opts.BidTimeout,
		sessionTTL: opts.SessionTTL,
	}
}

// Register mounts the websocket endpoint on path
func (g *Gateway) Register(router fiber.Router, path string) {
	router.Use(path, auth.RequireUser(g.tokens, g.users), g.handshake)
	router.Get(path, fiberws.New(g.serve))
}

// Listen relays the room events of every process to the local members of each room.
// Returns once the subscription is active.
func (g *Gateway) Listen(ctx context.Context) error {
	return g.fanout.Subscribe(ctx, func(ev fanout.RoomEvent) {
		g.hub.BroadcastFunc(roomChannel(ev.RoomID), renderBid(ev))
	})
}

// renderBid picks the phrasing per recipient by private channel membership, so every tab of
// the bidder reads "You bid"
func renderBid(ev fanout.RoomEvent) websocket.RenderFunc {
	self, errSelf := json.Marshal(ServerMessage{Type: MessageTypeBid, Payload: BidBroadcast{
		Text:   fmt.Sprintf("You bid %s", ev.Price.String()),
		Price:  ev.Price,
		RoomID: ev.RoomID,
	}})
	other, errOther := json.Marshal(ServerMessage{Type: MessageTypeBid, Payload: BidBroadcast{
		Text:   fmt.Sprintf("%s (%s) bid %s", ev.BidderName, ev.BidderEmail, ev.Price.String()),
		Price:  ev.Price,
		RoomID: ev.RoomID,
	}})
	if errSelf != nil || errOther != nil {
		log.Error("failed to marshal bid broadcast", zap.String("bidID", ev.BidID.String()))
		return func(*websocket.Client) []byte { return nil }
	}

	bidder := privateChannel(ev.BidderID)
	return func(c *websocket.Client) []byte {
		if c.In(bidder) {
			return self
		}
		return other
	}
}

// handshake runs after RequireUser: it only admits upgrades and pins the session id.
// The id comes from the session cookie; a missing one, or one bound to another user, is replaced
// by a freshly minted cookie.
func (g *Gateway) handshake(c *fiber.Ctx) error {
	if !fiberws.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	user := auth.CurrentUser(c)

	sessionID := c.Cookies(SessionCookie)
	if sessionID != "" {
		owner, found, err := g.sessions.Find(c.UserContext(), sessionID)
		if err != nil {
			return err
		}
		if found && owner != user.ID {
			log.Info("Session bound to another user, minting a new one", zap.String("userID", user.ID.String()))
			sessionID = ""
		}
	}
	if sessionID == "" {
		sessionID = g.mintSession(c)
	}

	c.Locals(localUser, user)
	c.Locals(localSessionID, sessionID)
	c.Locals(localItemID, c.Query("item_id"))
	c.Locals(localRoomID, c.Query("room_id"))
	return c.Next()
}

func (g *Gateway) mintSession(c *fiber.Ctx) string {
	sessionID := uuid.NewString()
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(g.sessionTTL.Seconds()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return sessionID
}

// serve owns one connection from admission to close
func (g *Gateway) serve(conn *fiberws.Conn) {
	user, _ := conn.Locals(localUser).(*userdomain.User)
	sessionID, _ := conn.Locals(localSessionID).(string)
	itemID, _ := conn.Locals(localItemID).(string)
	roomID, _ := conn.Locals(localRoomID).(string)

	client := g.hub.NewClient(conn, uuid.NewString())
	g.hub.RegisterClient(client)
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	log.Info("WebSocket client connected",
		zap.String("clientID", client.ID),
		zap.String("userID", user.ID.String()),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	written := make(chan struct{})
	go func() {
		defer close(written)
		client.WritePump(ctx)
	}()

	authed := &authenticatedConn{g: g, client: client, user: user, sessionID: sessionID}
	joined, err := authed.join(ctx, itemID, roomID)
	if err != nil {
		authed.fail(err)
		<-written
		return
	}

	client.ReadPump(ctx, func(data []byte) {
		joined.handle(ctx, data)
	})
	cancel()
	<-written
}
