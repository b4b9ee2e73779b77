package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type repositories struct {
	items  *itemRepository
	rooms  *roomRepository
	bids   *bidRepository
	orders *orderRepository
}

func newRepositories(with access, clock clockwork.Clock, users *UserRepository) repositories {
	return repositories{
		items:  &itemRepository{with: with, clock: clock},
		rooms:  &roomRepository{with: with},
		bids:   &bidRepository{with: with, clock: clock, users: users},
		orders: &orderRepository{with: with, users: users},
	}
}

type itemRepository struct {
	with  access
	clock clockwork.Clock
}

func (r *itemRepository) FindAll(ctx context.Context) ([]*domain.Item, error) {
	var items []*domain.Item
	err := r.with(func(st *state) error {
		for _, it := range st.items {
			it := it
			items = append(items, &it)
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool { return items[i].StartDate.Before(items[j].StartDate) })
	return items, err
}

func (r *itemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	var item *domain.Item
	err := r.with(func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return domain.ErrItemNotFound
		}
		item = &it
		return nil
	})
	return item, err
}

// Lock is GetByID, the unit of work already holds the store exclusively
func (r *itemRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return r.GetByID(ctx, id)
}

func (r *itemRepository) UpdateAuctionStatus(ctx context.Context, id uuid.UUID, open bool) error {
	return r.with(func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return domain.ErrItemNotFound
		}
		it.AuctionStatus = open
		it.UpdatedAt = r.clock.Now()
		st.items[id] = it
		return nil
	})
}

type roomRepository struct {
	with access
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	return r.with(func(st *state) error {
		if _, ok := st.items[room.ItemID]; !ok {
			return domain.ErrItemNotFound
		}
		for _, existing := range st.rooms {
			if existing.ItemID == room.ItemID {
				return fmt.Errorf("room for item %s already open: %w", room.ItemID, domain.ErrInvalid)
			}
		}
		st.rooms[room.ID] = *room
		return nil
	})
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	var room *domain.Room
	err := r.with(func(st *state) error {
		rm, ok := st.rooms[id]
		if !ok {
			return domain.ErrRoomNotFound
		}
		room = &rm
		return nil
	})
	return room, err
}

func (r *roomRepository) FindByItemID(ctx context.Context, itemID uuid.UUID) (*domain.Room, error) {
	var room *domain.Room
	err := r.with(func(st *state) error {
		for _, rm := range st.rooms {
			if rm.ItemID == itemID {
				rm := rm
				room = &rm
				return nil
			}
		}
		return domain.ErrRoomNotFound
	})
	return room, err
}

// Delete removes the room and detaches its remaining bids
func (r *roomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.with(func(st *state) error {
		if _, ok := st.rooms[id]; !ok {
			return domain.ErrRoomNotFound
		}
		delete(st.rooms, id)
		for bidID, row := range st.bids {
			if row.bid.RoomID.Valid && row.bid.RoomID.UUID == id {
				row.bid.RoomID = uuid.NullUUID{}
				st.bids[bidID] = row
			}
		}
		return nil
	})
}

type bidRepository struct {
	with  access
	clock clockwork.Clock
	users *UserRepository
}

func (r *bidRepository) Create(ctx context.Context, bid *domain.Bid) error {
	return r.with(func(st *state) error {
		if !r.users.exists(bid.UserID) {
			return fmt.Errorf("%w: bid user %s", domain.ErrNotFound, bid.UserID)
		}
		if _, ok := st.items[bid.ItemID]; !ok {
			return domain.ErrItemNotFound
		}
		if bid.RoomID.Valid {
			if _, ok := st.rooms[bid.RoomID.UUID]; !ok {
				return domain.ErrRoomNotFound
			}
		}
		st.seq++
		bid.CreatedAt = r.clock.Now()
		st.bids[bid.ID] = bidRow{bid: *bid, seq: st.seq}
		return nil
	})
}

func (r *bidRepository) FindHighestInRoom(ctx context.Context, roomID uuid.UUID) (*domain.Bid, error) {
	var best *bidRow
	err := r.with(func(st *state) error {
		for _, row := range st.bids {
			if !row.bid.RoomID.Valid || row.bid.RoomID.UUID != roomID {
				continue
			}
			if best == nil || outbids(row, *best) {
				row := row
				best = &row
			}
		}
		return nil
	})
	if err != nil || best == nil {
		return nil, err
	}
	return &best.bid, nil
}

// outbids orders by price, then the earlier bid wins a tie
func outbids(a, b bidRow) bool {
	if c := a.bid.Price.Cmp(b.bid.Price); c != 0 {
		return c > 0
	}
	if !a.bid.CreatedAt.Equal(b.bid.CreatedAt) {
		return a.bid.CreatedAt.Before(b.bid.CreatedAt)
	}
	return a.seq < b.seq
}

func (r *bidRepository) userRows(userID uuid.UUID) ([]bidRow, error) {
	var rows []bidRow
	err := r.with(func(st *state) error {
		for _, row := range st.bids {
			if row.bid.UserID == userID {
				rows = append(rows, row)
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	return rows, err
}

func (r *bidRepository) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Bid, error) {
	rows, err := r.userRows(userID)
	if err != nil {
		return nil, err
	}
	bids := make([]*domain.Bid, 0, len(rows))
	for i := range rows {
		bids = append(bids, &rows[i].bid)
	}
	return bids, nil
}

// LockAllForUser needs no row locks, a unit of work already holds the whole store
func (r *bidRepository) LockAllForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Bid, error) {
	return r.FindAllForUser(ctx, userID)
}

func (r *bidRepository) FindPageForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*domain.Bid, int, error) {
	rows, err := r.userRows(userID)
	if err != nil {
		return nil, 0, err
	}
	var bids []*domain.Bid
	for i := len(rows) - 1 - offset; i >= 0 && len(bids) < limit; i-- {
		bids = append(bids, &rows[i].bid)
	}
	return bids, len(rows), nil
}

func (r *bidRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		for _, id := range ids {
			if _, ok := st.bids[id]; ok {
				delete(st.bids, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *bidRepository) DeleteAllExcept(ctx context.Context, roomID, keepID uuid.UUID) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		for id, row := range st.bids {
			if id == keepID || !row.bid.RoomID.Valid || row.bid.RoomID.UUID != roomID {
				continue
			}
			delete(st.bids, id)
			n++
		}
		return nil
	})
	return n, err
}

type orderRepository struct {
	with  access
	users *UserRepository
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	return r.with(func(st *state) error {
		if !r.users.exists(order.UserID) {
			return fmt.Errorf("%w: order user %s", domain.ErrNotFound, order.UserID)
		}
		for _, itemID := range order.ItemIDs {
			if _, ok := st.items[itemID]; !ok {
				return domain.ErrItemNotFound
			}
		}
		o := *order
		o.ItemIDs = append([]uuid.UUID(nil), order.ItemIDs...)
		st.orders[o.ID] = o
		return nil
	})
}

func (r *orderRepository) FindPageForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*domain.Order, int, error) {
	var all []*domain.Order
	err := r.with(func(st *state) error {
		for _, o := range st.orders {
			if o.UserID == userID {
				o := o
				all = append(all, &o)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OrderDate.After(all[j].OrderDate) })
	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}
