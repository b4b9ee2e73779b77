package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/events"
	"github.com/cristianortiz/artAuction/internal/shared/metrics"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SchedulerOptions controls when RunOnce fires
type SchedulerOptions struct {
	Interval time.Duration
	// Location is where AlignMidnight computes midnight, UTC when nil
	Location      *time.Location
	AlignMidnight bool
	RunOnStart    bool
}

// RunSummary counts what a single pass did
type RunSummary struct {
	Opened int
	Closed int
	Failed int
}

type transition string

const (
	transitionNone  transition = ""
	transitionOpen  transition = "open"
	transitionClose transition = "close"
)

// RoomLifecycleScheduler opens a room when an item enters its auction window and settles
// and removes it when the item leaves the window. It is the only writer of rooms.
type RoomLifecycleScheduler struct {
	store  domain.Store
	ledger *BidLedger
	events events.Publisher
	clock  clockwork.Clock
	opts   SchedulerOptions
}

func NewRoomLifecycleScheduler(store domain.Store, ledger *BidLedger, publisher events.Publisher,
	clock clockwork.Clock, opts SchedulerOptions) *RoomLifecycleScheduler {

	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &RoomLifecycleScheduler{
		store:  store,
		ledger: ledger,
		events: publisher,
		clock:  clock,
		opts:   opts,
	}
}

// Start runs passes on the configured cadence until ctx is done
func (s *RoomLifecycleScheduler) Start(ctx context.Context) error {
	log.Info("Room scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.String("location", s.opts.Location.String()),
		zap.Bool("alignMidnight", s.opts.AlignMidnight),
	)
	if s.opts.RunOnStart {
		s.run(ctx)
	}
	if s.opts.AlignMidnight {
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.untilMidnight()):
			s.run(ctx)
		}
	}

	ticker := s.clock.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Room scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.run(ctx)
		}
	}
}

func (s *RoomLifecycleScheduler) untilMidnight() time.Duration {
	now := s.clock.Now().In(s.opts.Location)
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.opts.Location)
	return next.Sub(now)
}

func (s *RoomLifecycleScheduler) run(ctx context.Context) {
	summary, err := s.RunOnce(ctx)
	if err != nil {
		log.Error("Room scheduler pass failed", zap.Error(err))
		return
	}
	log.Info("Room scheduler pass finished",
		zap.Int("opened", summary.Opened),
		zap.Int("closed", summary.Closed),
		zap.Int("failed", summary.Failed),
	)
}

// RunOnce checks every item once. A failing item is logged and counted, it never stops
// the pass; only failing to list the items is returned as an error.
func (s *RoomLifecycleScheduler) RunOnce(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	items, err := s.store.Items().FindAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("room scheduler: list items: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		kind, err := s.transition(ctx, item.ID)
		if err != nil {
			summary.Failed++
			label := string(kind)
			if kind == transitionNone {
				label = "check"
			}
			metrics.RoomTransitions.WithLabelValues(label, "error").Inc()
			log.Error("Room scheduler: item transition failed",
				zap.String("itemID", item.ID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			continue
		}
		switch kind {
		case transitionOpen:
			summary.Opened++
		case transitionClose:
			summary.Closed++
		default:
			continue
		}
		metrics.RoomTransitions.WithLabelValues(string(kind), "ok").Inc()
	}
	return summary, nil
}

// transition applies at most one open or close to the item inside its own unit of work.
// The item row is locked first so concurrent passes see each other's result.
func (s *RoomLifecycleScheduler) transition(ctx context.Context, itemID uuid.UUID) (kind transition, err error) {
	uow, err := s.store.Begin(ctx)
	if err != nil {
		return transitionNone, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := uow.Rollback(ctx); rbErr != nil {
				log.Warn("Room scheduler: rollback failed", zap.String("itemID", itemID.String()), zap.Error(rbErr))
			}
		}
	}()

	item, err := uow.Items().Lock(ctx, itemID)
	if err != nil {
		return transitionNone, err
	}
	room, err := uow.Rooms().FindByItemID(ctx, itemID)
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		return transitionNone, err
	}

	now := s.clock.Now()
	var after func()
	switch inWindow := item.InWindow(now); {
	case inWindow && room == nil:
		kind = transitionOpen
		after, err = s.open(ctx, uow, item, now)
	case !inWindow && room != nil:
		kind = transitionClose
		after, err = s.close(ctx, uow, room, now)
	default:
		return transitionNone, nil
	}
	if err != nil {
		return kind, err
	}

	if err := uow.Commit(ctx); err != nil {
		return kind, err
	}
	committed = true
	after()
	return kind, nil
}

func (s *RoomLifecycleScheduler) open(ctx context.Context, uow domain.UnitOfWork, item *domain.Item, now time.Time) (func(), error) {
	snapshot := *item
	snapshot.AuctionStatus = true
	room := domain.NewRoomForItem(snapshot, now)

	if err := uow.Rooms().Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if err := uow.Items().UpdateAuctionStatus(ctx, item.ID, true); err != nil {
		return nil, fmt.Errorf("open item: %w", err)
	}

	return func() {
		log.Info("Auction room opened",
			zap.String("roomID", room.ID.String()),
			zap.String("itemID", item.ID.String()),
		)
		events.PublishAsync(s.events, events.SubjectRoomOpened, events.RoomOpened{
			RoomID: room.ID,
			ItemID: item.ID,
			At:     now,
		})
	}, nil
}

// close settles the room: the highest bid survives with its room detached, every other bid is discarded
func (s *RoomLifecycleScheduler) close(ctx context.Context, uow domain.UnitOfWork, room *domain.Room, now time.Time) (func(), error) {
	ledger := s.ledger.In(uow)
	highest, err := ledger.FindHighest(ctx, room.ItemID)
	if err != nil {
		return nil, fmt.Errorf("find winning bid: %w", err)
	}
	if err := uow.Items().UpdateAuctionStatus(ctx, room.ItemID, false); err != nil {
		return nil, fmt.Errorf("close item: %w", err)
	}

	var discarded int64
	if highest.Exists() {
		if discarded, err = ledger.DeleteAllExcept(ctx, room.ID, highest.BidID); err != nil {
			return nil, err
		}
	}
	if err := uow.Rooms().Delete(ctx, room.ID); err != nil {
		return nil, fmt.Errorf("delete room: %w", err)
	}

	return func() {
		log.Info("Auction room closed",
			zap.String("roomID", room.ID.String()),
			zap.String("itemID", room.ItemID.String()),
			zap.String("winningPrice", highest.Price.String()),
			zap.Int64("discardedBids", discarded),
		)
		events.PublishAsync(s.events, events.SubjectRoomClosed, events.RoomClosed{
			RoomID:       room.ID,
			ItemID:       room.ItemID,
			WinningBidID: highest.BidID,
			WinningPrice: highest.Price,
			Discarded:    discarded,
			At:           now,
		})
	}, nil
}

// FindOne returns the live room of the item
func (s *RoomLifecycleScheduler) FindOne(ctx context.Context, itemID uuid.UUID) (*domain.Room, error) {
	return s.store.Rooms().FindByItemID(ctx, itemID)
}

// Room returns a live room by its own id
func (s *RoomLifecycleScheduler) Room(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	return s.store.Rooms().GetByID(ctx, roomID)
}
