package application

import (
	"context"
	"errors"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlaceBidDTO is DTO input for PlaceBid, contains the necesary data to make a bid
type PlaceBidDTO struct {
	RoomID uuid.UUID
	ItemID uuid.UUID
	UserID uuid.UUID
	Price  decimal.Decimal
}

// AuctionService defines application interface layer of auction module
// exposes uses cases to external layer, aka infra (gateway and REST handlers)
type AuctionService interface {
	// PlaceBid persists a bid made from a live room
	PlaceBid(ctx context.Context, cmd PlaceBidDTO) (*domain.Bid, error)
	FindHighest(ctx context.Context, itemID uuid.UUID) (*domain.HighestBid, error)
	// FindRoom looks the live room up by item, GetRoom by its own id
	FindRoom(ctx context.Context, itemID uuid.UUID) (*domain.Room, error)
	GetRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	ListBids(ctx context.Context, userID uuid.UUID, page, limit int) (*Page[*domain.Bid], error)
	CreateOrder(ctx context.Context, shipping domain.ShippingDetails, userID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, page, limit int) (*Page[*domain.Order], error)
}

// concret implementation of AuctionService (struct)
type auctionService struct {
	ledger    *BidLedger
	scheduler *RoomLifecycleScheduler
	orders    *OrderTransaction
	events    events.Publisher
}

func NewAuctionService(ledger *BidLedger, scheduler *RoomLifecycleScheduler, orders *OrderTransaction,
	publisher events.Publisher) AuctionService {

	return &auctionService{
		ledger:    ledger,
		scheduler: scheduler,
		orders:    orders,
		events:    publisher,
	}
}

func (as *auctionService) PlaceBid(ctx context.Context, cmd PlaceBidDTO) (*domain.Bid, error) {
	bid, err := as.ledger.Create(ctx, cmd.Price, cmd.UserID, cmd.ItemID, cmd.RoomID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalid) {
			log.Error("PlaceBid: failed to persist bid",
				zap.String("roomID", cmd.RoomID.String()),
				zap.String("userID", cmd.UserID.String()),
				zap.String("price", cmd.Price.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	log.Debug("Bid placed",
		zap.String("bidID", bid.ID.String()),
		zap.String("roomID", cmd.RoomID.String()),
		zap.String("userID", cmd.UserID.String()),
		zap.String("price", bid.Price.String()),
	)
	events.PublishAsync(as.events, events.SubjectBidPlaced, events.BidPlaced{
		BidID:  bid.ID,
		RoomID: cmd.RoomID,
		ItemID: cmd.ItemID,
		UserID: cmd.UserID,
		Price:  bid.Price,
		At:     bid.CreatedAt,
	})
	return bid, nil
}

func (as *auctionService) FindHighest(ctx context.Context, itemID uuid.UUID) (*domain.HighestBid, error) {
	return as.ledger.FindHighest(ctx, itemID)
}

func (as *auctionService) FindRoom(ctx context.Context, itemID uuid.UUID) (*domain.Room, error) {
	return as.scheduler.FindOne(ctx, itemID)
}

func (as *auctionService) GetRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	return as.scheduler.Room(ctx, roomID)
}

func (as *auctionService) ListBids(ctx context.Context, userID uuid.UUID, page, limit int) (*Page[*domain.Bid], error) {
	return as.ledger.FindForUser(ctx, userID, page, limit)
}

func (as *auctionService) CreateOrder(ctx context.Context, shipping domain.ShippingDetails, userID uuid.UUID) (*domain.Order, error) {
	return as.orders.Create(ctx, shipping, userID)
}

func (as *auctionService) ListOrders(ctx context.Context, userID uuid.UUID, page, limit int) (*Page[*domain.Order], error) {
	return as.orders.FindForUser(ctx, userID, page, limit)
}
