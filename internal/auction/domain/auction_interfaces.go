package domain

import (
	"context"

	"github.com/google/uuid"
)

type ItemRepository interface {
	FindAll(ctx context.Context) ([]*Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	// Lock reads the item and holds it until the unit of work ends
	Lock(ctx context.Context, id uuid.UUID) (*Item, error)
	UpdateAuctionStatus(ctx context.Context, id uuid.UUID, open bool) error
}

type RoomRepository interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*Room, error)
	FindByItemID(ctx context.Context, itemID uuid.UUID) (*Room, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type BidRepository interface {
	Create(ctx context.Context, bid *Bid) error
	// FindHighestInRoom orders by numeric price, oldest first on ties. Returns nil, nil without bids.
	FindHighestInRoom(ctx context.Context, roomID uuid.UUID) (*Bid, error)
	FindAllForUser(ctx context.Context, userID uuid.UUID) ([]*Bid, error)
	// LockAllForUser is FindAllForUser holding the rows until the unit of work ends
	LockAllForUser(ctx context.Context, userID uuid.UUID) ([]*Bid, error)
	FindPageForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Bid, int, error)
	DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error)
	DeleteAllExcept(ctx context.Context, roomID, keepID uuid.UUID) (int64, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	FindPageForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Order, int, error)
}

// Repositories groups the auction repositories bound to one connection or transaction
type Repositories interface {
	Items() ItemRepository
	Rooms() RoomRepository
	Bids() BidRepository
	Orders() OrderRepository
}

// UnitOfWork is an open transaction. Exactly one of Commit or Rollback must be called;
// Rollback after Commit is a no-op so it can be deferred.
type UnitOfWork interface {
	Repositories
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store exposes non transactional repositories and starts units of work
type Store interface {
	Repositories
	Begin(ctx context.Context) (UnitOfWork, error)
}
