package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MessageType defines ws type message, the same names are used in both directions
type MessageType string

const (
	MessageTypeJoin  MessageType = "join"  // enter a room / room entered
	MessageTypeLeave MessageType = "leave" // leave a room / room left
	MessageTypeBid   MessageType = "bid"   // place a bid / a bid was placed in the room
	MessageTypeError MessageType = "error" // server msg sent right before closing the connection
)

// BaseMessage is the envelope of every frame, Payload is decoded once Type is known
type BaseMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomPayload is the client payload of join and leave
type RoomPayload struct {
	RoomID uuid.UUID `json:"roomId" validate:"required"`
}

// BidPayload is the client payload of bid, price may be a json number or string
type BidPayload struct {
	RoomID uuid.UUID       `json:"roomId" validate:"required"`
	Price  decimal.Decimal `json:"price"`
}

// ServerMessage is the envelope of every frame sent by the server
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// BidBroadcast carries "You bid X" to the bidder's connections and "name (email) bid X" to the rest
type BidBroadcast struct {
	Text   string          `json:"text"`
	Price  decimal.Decimal `json:"price"`
	RoomID uuid.UUID       `json:"roomId"`
}

type JoinAck struct {
	RoomID uuid.UUID `json:"roomId"`
	ItemID uuid.UUID `json:"itemId"`
}

type LeaveAck struct {
	RoomID uuid.UUID `json:"roomId"`
}

type ErrorPayload struct {
	Details string `json:"details"`
}
