package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/auction/application"
	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/auction/infra/fanout"
	"github.com/cristianortiz/artAuction/internal/shared/metrics"
	"github.com/cristianortiz/artAuction/internal/shared/websocket"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errBadFrame = fmt.Errorf("malformed message: %w", domain.ErrInvalid)

// authenticatedConn passed the handshake but has not joined its auction yet.
// Only join is defined on it.
type authenticatedConn struct {
	g         *Gateway
	client    *websocket.Client
	user      *userdomain.User
	sessionID string
	closed    bool
}

// joinedConn is a member of at least its handshake room, the only state that accepts frames
type joinedConn struct {
	*authenticatedConn
	// joined rooms and the item each one auctions
	rooms map[uuid.UUID]uuid.UUID
}

// join moves the connection to Joined: the handshake room, the user's private channel and
// the session binding
func (a *authenticatedConn) join(ctx context.Context, rawItemID, rawRoomID string) (*joinedConn, error) {
	itemID, err := uuid.Parse(rawItemID)
	if err != nil {
		return nil, fmt.Errorf("item_id %q: %w", rawItemID, domain.ErrInvalid)
	}
	roomID, err := uuid.Parse(rawRoomID)
	if err != nil {
		return nil, fmt.Errorf("room_id %q: %w", rawRoomID, domain.ErrInvalid)
	}

	j := &joinedConn{authenticatedConn: a, rooms: make(map[uuid.UUID]uuid.UUID)}
	room, err := j.enter(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.ItemID != itemID {
		return nil, fmt.Errorf("room %s does not auction item %s: %w", roomID, itemID, domain.ErrRoomNotFound)
	}
	a.g.hub.Join(a.client, privateChannel(a.user.ID))

	if a.sessionID != "" {
		owner, found, err := a.g.sessions.Find(ctx, a.sessionID)
		if err != nil {
			return nil, err
		}
		if found && owner != a.user.ID {
			return nil, domain.ErrSessionTaken
		}
		if err := a.g.sessions.Save(ctx, a.sessionID, a.user.ID); err != nil {
			return nil, err
		}
	}
	a.send(MessageTypeJoin, JoinAck{RoomID: room.ID, ItemID: room.ItemID})
	return j, nil
}

// enter validates the room and joins its channel, entering twice is a no-op
func (j *joinedConn) enter(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room, err := j.g.service.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	j.g.hub.Join(j.client, roomChannel(room.ID))
	j.rooms[room.ID] = room.ItemID
	return room, nil
}

func (j *joinedConn) leave(roomID uuid.UUID) {
	j.g.hub.Leave(j.client, roomChannel(roomID))
	delete(j.rooms, roomID)
	j.send(MessageTypeLeave, LeaveAck{RoomID: roomID})
}

// handle processes one inbound frame. Any failure reports an error and closes the connection.
func (j *joinedConn) handle(ctx context.Context, data []byte) {
	if j.closed {
		return
	}
	var msg BaseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		j.fail(errBadFrame)
		return
	}

	switch msg.Type {
	case MessageTypeJoin, MessageTypeLeave:
		var p RoomPayload
		if err := j.decode(msg.Payload, &p); err != nil {
			j.fail(err)
			return
		}
		if msg.Type == MessageTypeLeave {
			j.leave(p.RoomID)
			return
		}
		room, err := j.enter(ctx, p.RoomID)
		if err != nil {
			j.fail(err)
			return
		}
		j.send(MessageTypeJoin, JoinAck{RoomID: room.ID, ItemID: room.ItemID})

	case MessageTypeBid:
		var p BidPayload
		if err := j.decode(msg.Payload, &p); err != nil {
			metrics.Bids.WithLabelValues("rejected").Inc()
			j.fail(err)
			return
		}
		if err := j.bid(ctx, p); err != nil {
			metrics.Bids.WithLabelValues("failed").Inc()
			j.fail(err)
			return
		}
		metrics.Bids.WithLabelValues("ok").Inc()

	default:
		j.fail(fmt.Errorf("unknown message type %q: %w", msg.Type, domain.ErrInvalid))
	}
}

func (j *joinedConn) decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errBadFrame
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadFrame
	}
	if err := j.g.validate.Struct(v); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), domain.ErrInvalid)
	}
	return nil
}

// bid checks the session binding against the connection's user, persists the bid and fans it out.
// It runs detached from the connection so a disconnect never aborts a bid half way.
func (j *joinedConn) bid(ctx context.Context, p BidPayload) error {
	itemID, ok := j.rooms[p.RoomID]
	if !ok {
		return fmt.Errorf("room %s not joined: %w", p.RoomID, domain.ErrRoomNotFound)
	}
	if !p.Price.IsPositive() {
		return domain.ErrInvalidPrice
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.g.bidTimeout)
	defer cancel()

	userID, found, err := j.g.sessions.Find(ctx, j.sessionID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNoSession
	}
	// the binding must still name the authenticated user
	if userID != j.user.ID {
		return domain.ErrSessionTaken
	}
	bidder := j.user

	bid, err := j.g.service.PlaceBid(ctx, application.PlaceBidDTO{
		RoomID: p.RoomID,
		ItemID: itemID,
		UserID: bidder.ID,
		Price:  p.Price,
	})
	if err != nil {
		return err
	}

	return j.g.fanout.Publish(ctx, fanout.RoomEvent{
		BidID:       bid.ID,
		RoomID:      p.RoomID,
		ItemID:      itemID,
		BidderID:    bidder.ID,
		BidderName:  bidder.Name,
		BidderEmail: bidder.Email,
		Price:       bid.Price,
	})
}

func (a *authenticatedConn) send(t MessageType, payload any) {
	data, err := json.Marshal(ServerMessage{Type: t, Payload: payload})
	if err != nil {
		log.Error("failed to marshal server message", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if !a.client.Enqueue(data) {
		log.Warn("client send channel full or closed, message dropped",
			zap.String("clientID", a.client.ID),
			zap.String("type", string(t)),
		)
	}
}

// fail emits the error event and unregisters the client; the write pump flushes the
// error before the close frame
func (a *authenticatedConn) fail(err error) {
	if a.closed {
		return
	}
	a.closed = true
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrInvalid) {
		log.Info("Closing connection", zap.String("clientID", a.client.ID), zap.String("userID", a.user.ID.String()), zap.Error(err))
	} else {
		log.Error("Closing connection after internal error", zap.String("clientID", a.client.ID), zap.String("userID", a.user.ID.String()), zap.Error(err))
	}
	a.send(MessageTypeError, ErrorPayload{Details: errorDetails(err)})
	a.g.hub.UnregisterClient(a.client)
}

func errorDetails(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalid):
		return err.Error()
	default:
		return "internal error"
	}
}
