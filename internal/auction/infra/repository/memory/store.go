// Package memory is an in-process implementation of domain.Store. A unit of work holds the
// store lock for its whole life and works on a copy of the state that Commit swaps in.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	userdomain "github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var errTxDone = errors.New("unit of work already finished")

type bidRow struct {
	bid domain.Bid
	seq int64
}

type state struct {
	items  map[uuid.UUID]domain.Item
	rooms  map[uuid.UUID]domain.Room
	bids   map[uuid.UUID]bidRow
	orders map[uuid.UUID]domain.Order
	seq    int64
}

func newState() *state {
	return &state{
		items:  make(map[uuid.UUID]domain.Item),
		rooms:  make(map[uuid.UUID]domain.Room),
		bids:   make(map[uuid.UUID]bidRow),
		orders: make(map[uuid.UUID]domain.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.bids {
		c.bids[k] = v
	}
	for k, v := range s.orders {
		v.ItemIDs = append([]uuid.UUID(nil), v.ItemIDs...)
		c.orders[k] = v
	}
	return c
}

// access runs fn against the state a repository is bound to
type access func(fn func(st *state) error) error

type Store struct {
	mu    sync.Mutex
	st    *state
	clock clockwork.Clock
	users *UserRepository
	repos repositories
}

func NewStore(clock clockwork.Clock) *Store {
	s := &Store{st: newState(), clock: clock, users: newUserRepository()}
	s.repos = newRepositories(s.locked, clock, s.users)
	return s
}

func (s *Store) locked(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) Items() domain.ItemRepository   { return s.repos.items }
func (s *Store) Rooms() domain.RoomRepository   { return s.repos.rooms }
func (s *Store) Bids() domain.BidRepository     { return s.repos.bids }
func (s *Store) Orders() domain.OrderRepository { return s.repos.orders }

// Users is the user directory backing bidder lookups
func (s *Store) Users() *UserRepository { return s.users }

// AddItem seeds an item, used by tests and the memory storage driver
func (s *Store) AddItem(item domain.Item) {
	_ = s.locked(func(st *state) error {
		st.items[item.ID] = item
		return nil
	})
}

// Begin blocks until no other unit of work is open
func (s *Store) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	locked := make(chan struct{})
	go func() {
		s.mu.Lock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-ctx.Done():
		// the lock is released as soon as it is acquired
		go func() {
			<-locked
			s.mu.Unlock()
		}()
		return nil, ctx.Err()
	}

	u := &unitOfWork{store: s, st: s.st.clone()}
	u.repos = newRepositories(u.access, s.clock, s.users)
	return u, nil
}

type unitOfWork struct {
	store *Store
	st    *state
	done  bool
	repos repositories
}

func (u *unitOfWork) access(fn func(st *state) error) error {
	if u.done {
		return errTxDone
	}
	return fn(u.st)
}

func (u *unitOfWork) Items() domain.ItemRepository   { return u.repos.items }
func (u *unitOfWork) Rooms() domain.RoomRepository   { return u.repos.rooms }
func (u *unitOfWork) Bids() domain.BidRepository     { return u.repos.bids }
func (u *unitOfWork) Orders() domain.OrderRepository { return u.repos.orders }

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return errTxDone
	}
	u.done = true
	u.store.st = u.st
	u.store.mu.Unlock()
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.mu.Unlock()
	return nil
}

// UserRepository implements the user directory in memory. Users are not part of units of work.
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]userdomain.User
}

func newUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]userdomain.User)}
}

func (r *UserRepository) Add(u userdomain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*userdomain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, userdomain.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) exists(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[id]
	return ok
}

var (
	_ domain.Store          = (*Store)(nil)
	_ domain.UnitOfWork     = (*unitOfWork)(nil)
	_ userdomain.Repository = (*UserRepository)(nil)
)
