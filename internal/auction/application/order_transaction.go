package application

import (
	"context"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/events"
	"github.com/cristianortiz/artAuction/internal/shared/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderTransaction turns the bids a user won on settled auctions into one order
type OrderTransaction struct {
	store  domain.Store
	ledger *BidLedger
	events events.Publisher
	clock  clockwork.Clock
}

func NewOrderTransaction(store domain.Store, ledger *BidLedger, publisher events.Publisher, clock clockwork.Clock) *OrderTransaction {
	return &OrderTransaction{store: store, ledger: ledger, events: publisher, clock: clock}
}

// Create persists the order and deletes the bids it consumed in a single unit of work.
// Only bids on closed items are orderable; with none it fails with a NotFound error and writes nothing.
func (o *OrderTransaction) Create(ctx context.Context, shipping domain.ShippingDetails, userID uuid.UUID) (order *domain.Order, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.Orders.WithLabelValues(result).Inc()
	}()

	uow, err := o.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("order transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := uow.Rollback(ctx); rbErr != nil {
				log.Warn("Order transaction: rollback failed", zap.String("userID", userID.String()), zap.Error(rbErr))
			}
		}
	}()

	ledger := o.ledger.In(uow)
	bids, err := ledger.LockAllForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("order transaction: %w", err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("order transaction: user %s: %w", userID, domain.ErrBidNotFound)
	}

	eligible, err := o.eligible(ctx, uow, bids)
	if err != nil {
		return nil, fmt.Errorf("order transaction: %w", err)
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("order transaction: user %s: %w", userID, domain.ErrNoEligibleBids)
	}

	order = &domain.Order{
		ID:              uuid.New(),
		OrderNumber:     uuid.NewString(),
		OrderDate:       o.clock.Now(),
		TotalPrice:      decimal.Zero,
		TotalQuantity:   len(eligible),
		ShippingDetails: shipping,
		UserID:          userID,
	}
	ids := make([]uuid.UUID, 0, len(eligible))
	seen := make(map[uuid.UUID]bool, len(eligible))
	for _, bid := range eligible {
		order.TotalPrice = order.TotalPrice.Add(bid.Price)
		ids = append(ids, bid.ID)
		if !seen[bid.ItemID] {
			seen[bid.ItemID] = true
			order.ItemIDs = append(order.ItemIDs, bid.ItemID)
		}
	}

	if err := uow.Orders().Create(ctx, order); err != nil {
		return nil, fmt.Errorf("order transaction: create order: %w", err)
	}
	deleted, err := ledger.DeleteMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("order transaction: %w", err)
	}
	// another order consumed some of these bids first
	if deleted != int64(len(ids)) {
		return nil, fmt.Errorf("order transaction: user %s: %d of %d bids: %w", userID, len(ids)-int(deleted), len(ids), domain.ErrBidConsumed)
	}
	if err := uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("order transaction: %w", err)
	}
	committed = true

	log.Info("Order created",
		zap.String("orderID", order.ID.String()),
		zap.String("userID", userID.String()),
		zap.String("totalPrice", order.TotalPrice.String()),
		zap.Int("quantity", order.TotalQuantity),
	)
	events.PublishAsync(o.events, events.SubjectOrderCreated, events.OrderCreated{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      userID,
		TotalPrice:  order.TotalPrice,
		Quantity:    order.TotalQuantity,
		At:          order.OrderDate,
	})
	return order, nil
}

// eligible keeps the bids whose item auction is closed
func (o *OrderTransaction) eligible(ctx context.Context, uow domain.UnitOfWork, bids []*domain.Bid) ([]*domain.Bid, error) {
	closed := make(map[uuid.UUID]bool)
	var out []*domain.Bid
	for _, bid := range bids {
		isClosed, ok := closed[bid.ItemID]
		if !ok {
			item, err := uow.Items().GetByID(ctx, bid.ItemID)
			if err != nil {
				return nil, fmt.Errorf("item %s of bid %s: %w", bid.ItemID, bid.ID, err)
			}
			isClosed = item.Closed()
			closed[bid.ItemID] = isClosed
		}
		if isClosed {
			out = append(out, bid)
		}
	}
	return out, nil
}

// FindForUser lists the user's orders newest first
func (o *OrderTransaction) FindForUser(ctx context.Context, userID uuid.UUID, page, limit int) (*Page[*domain.Order], error) {
	page, limit = normalizePage(page, limit)
	orders, total, err := o.store.Orders().FindPageForUser(ctx, userID, offsetOf(page, limit), limit)
	if err != nil {
		return nil, fmt.Errorf("order transaction: orders of user %s: %w", userID, err)
	}
	return newPage(orders, page, limit, total)
}
