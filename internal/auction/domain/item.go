package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is an artwork put up for auction. Only the room lifecycle scheduler flips AuctionStatus.
type Item struct {
	ID            uuid.UUID       `json:"id"`
	ItemName      string          `json:"itemName"`
	ArtistName    string          `json:"artistName"`
	Description   string          `json:"description"`
	InitialBid    decimal.Decimal `json:"initialBid"`
	StartDate     time.Time       `json:"startDate"`
	EndDate       time.Time       `json:"endDate"`
	AuctionStatus bool            `json:"auctionStatus"`
	SellerID      uuid.UUID       `json:"sellerId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// InWindow reports startDate <= now <= endDate
func (i *Item) InWindow(now time.Time) bool {
	return !now.Before(i.StartDate) && !now.After(i.EndDate)
}

// Closed reports whether the auction for this item has been settled (or never opened)
func (i *Item) Closed() bool {
	return !i.AuctionStatus
}
