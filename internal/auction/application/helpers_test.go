package application

import (
	"context"
	"testing"
	"time"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/auction/infra/repository/memory"
	"github.com/cristianortiz/artAuction/internal/shared/events"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type env struct {
	ctx       context.Context
	clock     *clockwork.FakeClock
	store     *memory.Store
	ledger    *BidLedger
	scheduler *RoomLifecycleScheduler
	orders    *OrderTransaction
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithStore(t, nil)
}

// newEnvWithStore lets a test wrap the memory store, wrap may be nil
func newEnvWithStore(t *testing.T, wrap func(*memory.Store) domain.Store) *env {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC))
	mem := memory.NewStore(clock)
	var store domain.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	ledger := NewBidLedger(store, mem.Users())
	return &env{
		ctx:       context.Background(),
		clock:     clock,
		store:     mem,
		ledger:    ledger,
		scheduler: NewRoomLifecycleScheduler(store, ledger, events.NopPublisher{}, clock, SchedulerOptions{Interval: time.Hour}),
		orders:    NewOrderTransaction(store, ledger, events.NopPublisher{}, clock),
	}
}

func (e *env) addUser(name string) uuid.UUID {
	u := userdomain.User{ID: uuid.New(), Name: name, Email: name + "@example.com"}
	e.store.Users().Add(u)
	return u.ID
}

// addItem seeds an item whose window is relative to the current fake time
func (e *env) addItem(name string, startIn, endIn time.Duration) domain.Item {
	now := e.clock.Now()
	item := domain.Item{
		ID:         uuid.New(),
		ItemName:   name,
		ArtistName: "Unknown",
		InitialBid: decimal.NewFromInt(100),
		StartDate:  now.Add(startIn),
		EndDate:    now.Add(endIn),
		CreatedAt:  now,
	}
	e.store.AddItem(item)
	return item
}

// openRoom runs a scheduler pass and returns the live room of item
func (e *env) openRoom(t *testing.T, item domain.Item) *domain.Room {
	t.Helper()
	_, err := e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	room, err := e.scheduler.FindOne(e.ctx, item.ID)
	require.NoError(t, err)
	return room
}

func (e *env) bid(t *testing.T, userID uuid.UUID, room *domain.Room, price string) *domain.Bid {
	t.Helper()
	bid, err := e.ledger.Create(e.ctx, decimal.RequireFromString(price), userID, room.ItemID, room.ID)
	require.NoError(t, err)
	return bid
}
