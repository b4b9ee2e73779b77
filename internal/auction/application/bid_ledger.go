package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/logger"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// BidLedger persists and queries bids. The zero value is not usable, build it with NewBidLedger.
type BidLedger struct {
	repos domain.Repositories
	users userdomain.Repository
}

// NewBidLedger creates a ledger running on repos, usually the non transactional store
func NewBidLedger(repos domain.Repositories, users userdomain.Repository) *BidLedger {
	return &BidLedger{repos: repos, users: users}
}

// In returns a ledger whose reads and writes join uow
func (l *BidLedger) In(uow domain.UnitOfWork) *BidLedger {
	return &BidLedger{repos: uow, users: l.users}
}

// Create validates that the bidder, item and room exist and that the room belongs to the
// item, then appends the bid. Bids are not serialized against each other.
func (l *BidLedger) Create(ctx context.Context, price decimal.Decimal, userID, itemID, roomID uuid.UUID) (*domain.Bid, error) {
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if _, err := l.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, userdomain.ErrUserNotFound) {
			return nil, domain.ErrBidderNotFound
		}
		return nil, fmt.Errorf("bid ledger: find bidder %s: %w", userID, err)
	}
	if _, err := l.repos.Items().GetByID(ctx, itemID); err != nil {
		return nil, fmt.Errorf("bid ledger: find item %s: %w", itemID, err)
	}
	room, err := l.repos.Rooms().GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("bid ledger: find room %s: %w", roomID, err)
	}
	if room.ItemID != itemID {
		return nil, fmt.Errorf("bid ledger: room %s is not auctioning item %s: %w", roomID, itemID, domain.ErrRoomNotFound)
	}

	bid := domain.NewBid(price, userID, itemID, roomID)
	if err := l.repos.Bids().Create(ctx, bid); err != nil {
		return nil, fmt.Errorf("bid ledger: create bid: %w", err)
	}
	return bid, nil
}

// FindHighest returns the leading bid of the item's live room with the bidder display
// fields. A room without bids yields a zero price, a missing room is ErrRoomNotFound.
func (l *BidLedger) FindHighest(ctx context.Context, itemID uuid.UUID) (*domain.HighestBid, error) {
	room, err := l.repos.Rooms().FindByItemID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("bid ledger: room for item %s: %w", itemID, err)
	}
	bid, err := l.repos.Bids().FindHighestInRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("bid ledger: highest bid in room %s: %w", room.ID, err)
	}
	if bid == nil {
		return &domain.HighestBid{Price: decimal.Zero}, nil
	}

	highest := &domain.HighestBid{BidID: bid.ID, Price: bid.Price}
	bidder, err := l.users.FindByID(ctx, bid.UserID)
	if err != nil {
		// settlement only needs the bid, display fields are best effort
		log.Warn("BidLedger: highest bidder lookup failed",
			zap.String("bidID", bid.ID.String()),
			zap.String("userID", bid.UserID.String()),
			zap.Error(err),
		)
		return highest, nil
	}
	highest.BidderName = bidder.Name
	highest.BidderEmail = bidder.Email
	return highest, nil
}

func (l *BidLedger) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Bid, error) {
	bids, err := l.repos.Bids().FindAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("bid ledger: bids of user %s: %w", userID, err)
	}
	return bids, nil
}

// LockAllForUser reads the user's bids for consumption, only meaningful inside a unit of work
func (l *BidLedger) LockAllForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Bid, error) {
	bids, err := l.repos.Bids().LockAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("bid ledger: lock bids of user %s: %w", userID, err)
	}
	return bids, nil
}

// FindForUser lists the user's bids newest first
func (l *BidLedger) FindForUser(ctx context.Context, userID uuid.UUID, page, limit int) (*Page[*domain.Bid], error) {
	page, limit = normalizePage(page, limit)
	bids, total, err := l.repos.Bids().FindPageForUser(ctx, userID, offsetOf(page, limit), limit)
	if err != nil {
		return nil, fmt.Errorf("bid ledger: bids page of user %s: %w", userID, err)
	}
	return newPage(bids, page, limit, total)
}

func (l *BidLedger) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	n, err := l.repos.Bids().DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("bid ledger: delete %d bids: %w", len(ids), err)
	}
	return n, nil
}

// DeleteAllExcept discards every bid of the room except keepBidID
func (l *BidLedger) DeleteAllExcept(ctx context.Context, roomID, keepBidID uuid.UUID) (int64, error) {
	n, err := l.repos.Bids().DeleteAllExcept(ctx, roomID, keepBidID)
	if err != nil {
		return 0, fmt.Errorf("bid ledger: settle room %s: %w", roomID, err)
	}
	return n, nil
}
