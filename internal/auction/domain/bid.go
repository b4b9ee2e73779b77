package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is an immutable offer on an item made inside its room. RoomID is null once the room
// is settled and removed, only the winning bid survives that.
type Bid struct {
	ID        uuid.UUID       `json:"id"`
	Price     decimal.Decimal `json:"price"`
	UserID    uuid.UUID       `json:"userId"`
	ItemID    uuid.UUID       `json:"itemId"`
	RoomID    uuid.NullUUID   `json:"roomId"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewBid creates a new Bid instance, CreatedAt is assigned by the repository on insert
func NewBid(price decimal.Decimal, userID, itemID, roomID uuid.UUID) *Bid {
	return &Bid{
		ID:     uuid.New(),
		Price:  price,
		UserID: userID,
		ItemID: itemID,
		RoomID: uuid.NullUUID{UUID: roomID, Valid: true},
	}
}

// HighestBid is the leading bid of a room enriched with the bidder display fields.
// A zero Price with a nil BidID means nobody has bid yet.
type HighestBid struct {
	BidID       uuid.UUID       `json:"id,omitempty"`
	Price       decimal.Decimal `json:"price"`
	BidderName  string          `json:"name,omitempty"`
	BidderEmail string          `json:"email,omitempty"`
}

// Exists reports whether a bid backs this result
func (h *HighestBid) Exists() bool {
	return h.BidID != uuid.Nil
}
