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

const bidColumns = `id, price::text, user_id, item_id, room_id, created_at`

// BidRepository implements domain.BidRepository interface
type BidRepository struct {
	db db.Querier
}

// NewBidRepository creates new instance of BidRepository.
func NewBidRepository(q db.Querier) *BidRepository {
	return &BidRepository{db: q}
}

// Create only inserts the bid. created_at comes from clock_timestamp() so bids in the
// same transaction still get distinct, ordered timestamps.
func (r *BidRepository) Create(ctx context.Context, bid *domain.Bid) error {
	query := `
        INSERT INTO bids (id, price, user_id, item_id, room_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at
    `
	err := r.db.QueryRow(ctx, query,
		bid.ID,
		bid.Price.String(),
		bid.UserID,
		bid.ItemID,
		bid.RoomID,
	).Scan(&bid.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: bid references a missing user, item or room", domain.ErrNotFound)
	}
	return err
}

// FindHighestInRoom returns the leading bid of the room, or nil if nobody has bid yet
func (r *BidRepository) FindHighestInRoom(ctx context.Context, roomID uuid.UUID) (*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE room_id = $1
        ORDER BY price DESC, created_at ASC
        LIMIT 1
    `
	bid, err := scanBid(r.db.QueryRow(ctx, query, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return bid, nil
}

func (r *BidRepository) FindAllForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE user_id = $1
        ORDER BY created_at ASC
    `
	return r.list(ctx, query, userID)
}

// LockAllForUser bloquea las pujas del usuario hasta el fin de la transacción,
// una orden concurrente espera y luego ya no ve las pujas que consumió la primera
func (r *BidRepository) LockAllForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE user_id = $1
        ORDER BY created_at ASC
        FOR UPDATE
    `
	return r.list(ctx, query, userID)
}

// FindPageForUser returns newest first, together with the total number of bids of the user
func (r *BidRepository) FindPageForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*domain.Bid, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE user_id = $1
        ORDER BY created_at DESC
        OFFSET $2 LIMIT $3
    `
	bids, err := r.list(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return bids, total, nil
}

func (r *BidRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM bids WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAllExcept removes every bid of the room but keepID, keepID may be uuid.Nil
func (r *BidRepository) DeleteAllExcept(ctx context.Context, roomID, keepID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM bids WHERE room_id = $1 AND id <> $2`, roomID, keepID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *BidRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Bid, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}

func scanBid(row pgx.Row) (*domain.Bid, error) {
	bid := &domain.Bid{}
	var price string
	err := row.Scan(
		&bid.ID,
		&price,
		&bid.UserID,
		&bid.ItemID,
		&bid.RoomID,
		&bid.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if bid.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("bid %s: parse price %q: %w", bid.ID, price, err)
	}
	return bid, nil
}
