package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Room is the live channel of exactly one Item, it exists only while the item's window is open
type Room struct {
	ID          uuid.UUID `json:"id"`
	ItemID      uuid.UUID `json:"itemId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	// Item as it was when the room opened
	Item      Item      `json:"item"`
	CreatedAt time.Time `json:"createdAt"`
}

const dateLayout = "2006-01-02"

// NewRoomForItem builds the room opened for item, embedding a snapshot of it
func NewRoomForItem(item Item, now time.Time) *Room {
	return &Room{
		ID:          uuid.New(),
		ItemID:      item.ID,
		Name:        fmt.Sprintf("%s auction room", item.ItemName),
		Description: fmt.Sprintf("Opens %s, closes %s", item.StartDate.Format(dateLayout), item.EndDate.Format(dateLayout)),
		StartDate:   item.StartDate,
		EndDate:     item.EndDate,
		Item:        item,
		CreatedAt:   now,
	}
}
