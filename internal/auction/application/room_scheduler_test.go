package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/auction/infra/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// faultyStore fails selected operations inside units of work
type faultyStore struct {
	*memory.Store
	lockFails  map[uuid.UUID]bool
	roomDelete bool
	// bidsGone makes DeleteMany report no rows, as after a concurrent order
	bidsGone bool
}

func (s *faultyStore) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyUnit{UnitOfWork: uow, store: s}, nil
}

type faultyUnit struct {
	domain.UnitOfWork
	store *faultyStore
}

func (u *faultyUnit) Items() domain.ItemRepository {
	return faultyItems{ItemRepository: u.UnitOfWork.Items(), fails: u.store.lockFails}
}

func (u *faultyUnit) Rooms() domain.RoomRepository {
	return faultyRooms{RoomRepository: u.UnitOfWork.Rooms(), failDelete: u.store.roomDelete}
}

func (u *faultyUnit) Bids() domain.BidRepository {
	return faultyBids{BidRepository: u.UnitOfWork.Bids(), gone: u.store.bidsGone}
}

type faultyItems struct {
	domain.ItemRepository
	fails map[uuid.UUID]bool
}

func (r faultyItems) Lock(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	if r.fails[id] {
		return nil, errInjected
	}
	return r.ItemRepository.Lock(ctx, id)
}

type faultyBids struct {
	domain.BidRepository
	gone bool
}

func (r faultyBids) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if r.gone {
		return 0, nil
	}
	return r.BidRepository.DeleteMany(ctx, ids)
}

type faultyRooms struct {
	domain.RoomRepository
	failDelete bool
}

func (r faultyRooms) Delete(ctx context.Context, id uuid.UUID) error {
	if r.failDelete {
		return errInjected
	}
	return r.RoomRepository.Delete(ctx, id)
}

func TestSchedulerOpensRoomOnce(t *testing.T) {
	e := newEnv(t)
	item := e.addItem("Nocturne", -time.Hour, time.Hour)
	e.addItem("Later", time.Hour, 2*time.Hour)

	summary, err := e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Opened: 1}, summary)

	room, err := e.scheduler.FindOne(e.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nocturne", room.Item.ItemName)
	assert.True(t, room.Item.AuctionStatus)

	stored, err := e.store.Items().GetByID(e.ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, stored.AuctionStatus)

	summary, err = e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{}, summary)

	again, err := e.scheduler.FindOne(e.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
}

func TestSchedulerCloseKeepsOnlyWinningBid(t *testing.T) {
	e := newEnv(t)
	ana := e.addUser("ana")
	bo := e.addUser("bo")
	item := e.addItem("Nocturne", -time.Hour, time.Hour)
	room := e.openRoom(t, item)

	e.bid(t, ana, room, "3000")
	winner := e.bid(t, bo, room, "9000")
	e.bid(t, ana, room, "5000")

	e.clock.Advance(2 * time.Hour)
	summary, err := e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Closed: 1}, summary)

	_, err = e.scheduler.FindOne(e.ctx, item.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	stored, err := e.store.Items().GetByID(e.ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, stored.AuctionStatus)

	anaBids, err := e.ledger.FindAllForUser(e.ctx, ana)
	require.NoError(t, err)
	assert.Empty(t, anaBids)

	boBids, err := e.ledger.FindAllForUser(e.ctx, bo)
	require.NoError(t, err)
	require.Len(t, boBids, 1)
	assert.Equal(t, winner.ID, boBids[0].ID)
	assert.Equal(t, "9000", boBids[0].Price.String())
	assert.False(t, boBids[0].RoomID.Valid)

	summary, err = e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{}, summary)
}

func TestSchedulerClosesRoomWithoutBids(t *testing.T) {
	e := newEnv(t)
	item := e.addItem("Nocturne", -time.Hour, time.Hour)
	e.openRoom(t, item)

	e.clock.Advance(2 * time.Hour)
	summary, err := e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Closed: 1}, summary)

	_, err = e.scheduler.FindOne(e.ctx, item.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestSchedulerIsolatesFailingItems(t *testing.T) {
	var faulty *faultyStore
	e := newEnvWithStore(t, func(s *memory.Store) domain.Store {
		faulty = &faultyStore{Store: s, lockFails: map[uuid.UUID]bool{}}
		return faulty
	})
	broken := e.addItem("Broken", -time.Hour, time.Hour)
	healthy := e.addItem("Healthy", -30*time.Minute, time.Hour)
	faulty.lockFails[broken.ID] = true

	summary, err := e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Opened: 1, Failed: 1}, summary)

	_, err = e.scheduler.FindOne(e.ctx, healthy.ID)
	assert.NoError(t, err)
	_, err = e.scheduler.FindOne(e.ctx, broken.ID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestSchedulerCloseIsAtomic(t *testing.T) {
	var faulty *faultyStore
	e := newEnvWithStore(t, func(s *memory.Store) domain.Store {
		faulty = &faultyStore{Store: s, lockFails: map[uuid.UUID]bool{}}
		return faulty
	})
	ana := e.addUser("ana")
	item := e.addItem("Nocturne", -time.Hour, time.Hour)
	room := e.openRoom(t, item)
	e.bid(t, ana, room, "100")
	e.bid(t, ana, room, "200")

	faulty.roomDelete = true
	e.clock.Advance(2 * time.Hour)
	summary, err := e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Failed: 1}, summary)

	stored, err := e.store.Items().GetByID(e.ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, stored.AuctionStatus, "item status must roll back")
	bids, err := e.ledger.FindAllForUser(e.ctx, ana)
	require.NoError(t, err)
	assert.Len(t, bids, 2, "losing bids must roll back")

	faulty.roomDelete = false
	summary, err = e.scheduler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, RunSummary{Closed: 1}, summary)
}

func TestSchedulerStartRunsOnTicker(t *testing.T) {
	e := newEnv(t)
	item := e.addItem("Nocturne", 30*time.Minute, 3*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.scheduler.Start(ctx) }()

	require.NoError(t, e.clock.BlockUntilContext(ctx, 1))
	e.clock.Advance(time.Hour)

	require.Eventually(t, func() bool {
		_, err := e.scheduler.FindOne(e.ctx, item.ID)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestUntilMidnightUsesConfiguredZone(t *testing.T) {
	e := newEnv(t)
	kst := time.FixedZone("KST", 9*60*60)
	s := NewRoomLifecycleScheduler(e.store, e.ledger, nil, e.clock, SchedulerOptions{
		Interval:      24 * time.Hour,
		Location:      kst,
		AlignMidnight: true,
	})

	// 10:00 UTC is 19:00 KST
	assert.Equal(t, 5*time.Hour, s.untilMidnight())
}
