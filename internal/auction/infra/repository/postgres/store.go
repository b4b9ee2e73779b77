package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repositories struct {
	items  *ItemRepository
	rooms  *RoomRepository
	bids   *BidRepository
	orders *OrderRepository
}

func newRepositories(q db.Querier) repositories {
	return repositories{
		items:  NewItemRepository(q),
		rooms:  NewRoomRepository(q),
		bids:   NewBidRepository(q),
		orders: NewOrderRepository(q),
	}
}

func (r repositories) Items() domain.ItemRepository   { return r.items }
func (r repositories) Rooms() domain.RoomRepository   { return r.rooms }
func (r repositories) Bids() domain.BidRepository     { return r.bids }
func (r repositories) Orders() domain.OrderRepository { return r.orders }

// Store implements domain.Store on top of a pgx pool
type Store struct {
	repositories
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{repositories: newRepositories(pool), pool: pool}
}

// Begin opens a transaction, the returned repositories all run on it
func (s *Store) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &unitOfWork{repositories: newRepositories(tx), tx: tx}, nil
}

type unitOfWork struct {
	repositories
	tx pgx.Tx
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

var (
	_ domain.Store      = (*Store)(nil)
	_ domain.UnitOfWork = (*unitOfWork)(nil)
)
