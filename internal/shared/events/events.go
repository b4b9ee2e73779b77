package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BidPlaced struct {
	BidID  uuid.UUID       `json:"bidId"`
	RoomID uuid.UUID       `json:"roomId"`
	ItemID uuid.UUID       `json:"itemId"`
	UserID uuid.UUID       `json:"userId"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

type RoomOpened struct {
	RoomID uuid.UUID `json:"roomId"`
	ItemID uuid.UUID `json:"itemId"`
	At     time.Time `json:"at"`
}

// RoomClosed carries the winning bid, WinningBidID is nil when nobody bid
type RoomClosed struct {
	RoomID       uuid.UUID       `json:"roomId"`
	ItemID       uuid.UUID       `json:"itemId"`
	WinningBidID uuid.UUID       `json:"winningBidId"`
	WinningPrice decimal.Decimal `json:"winningPrice"`
	Discarded    int64           `json:"discarded"`
	At           time.Time       `json:"at"`
}

type OrderCreated struct {
	OrderID     uuid.UUID       `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	UserID      uuid.UUID       `json:"userId"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Quantity    int             `json:"quantity"`
	At          time.Time       `json:"at"`
}
