package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const itemColumns = `id, item_name, artist_name, description, initial_bid::text, start_date, end_date,
        auction_status, seller_id, created_at, updated_at`

// ItemRepository implements domain.ItemRepository interface
type ItemRepository struct {
	db db.Querier
}

// NewItemRepository creates a new instance of ItemRepository, q is a pool or an open transaction
func NewItemRepository(q db.Querier) *ItemRepository {
	return &ItemRepository{db: q}
}

// FindAll recupera todos los items, el scheduler los recorre en cada ejecución
func (r *ItemRepository) FindAll(ctx context.Context) ([]*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY start_date ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// GetByID recupera un item por su ID.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// Lock is GetByID with a row lock held until the surrounding transaction ends
func (r *ItemRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *ItemRepository) UpdateAuctionStatus(ctx context.Context, id uuid.UUID, open bool) error {
	query := `
        UPDATE items
        SET auction_status = $2, updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, open)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *ItemRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.Item, error) {
	item, err := scanItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func scanItem(row pgx.Row) (*domain.Item, error) {
	item := &domain.Item{}
	var initialBid string
	var seller uuid.NullUUID // NULL for items imported without seller

	err := row.Scan(
		&item.ID,
		&item.ItemName,
		&item.ArtistName,
		&item.Description,
		&initialBid,
		&item.StartDate,
		&item.EndDate,
		&item.AuctionStatus,
		&seller,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if item.InitialBid, err = decimal.NewFromString(initialBid); err != nil {
		return nil, fmt.Errorf("item %s: parse initial bid %q: %w", item.ID, initialBid, err)
	}
	item.SellerID = seller.UUID
	return item, nil
}
