package postgres

import (
	"context"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/db"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderRepository implements domain.OrderRepository interface
type OrderRepository struct {
	db db.Querier
}

func NewOrderRepository(q db.Querier) *OrderRepository {
	return &OrderRepository{db: q}
}

// Create inserts the order and its item links. Run it inside a unit of work, the two
// statements are not atomic on a bare pool.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
        INSERT INTO orders (id, order_number, order_date, total_price, total_quantity,
                            street_address, address, zipcode, user_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.db.Exec(ctx, query,
		order.ID,
		order.OrderNumber,
		order.OrderDate,
		order.TotalPrice.String(),
		order.TotalQuantity,
		order.StreetAddress,
		order.Address,
		order.Zipcode,
		order.UserID,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: order user %s", domain.ErrNotFound, order.UserID)
		}
		return err
	}

	for _, itemID := range order.ItemIDs {
		_, err := r.db.Exec(ctx, `
            INSERT INTO order_items (order_id, item_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING
        `, order.ID, itemID)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return domain.ErrItemNotFound
			}
			return err
		}
	}
	return nil
}

// FindPageForUser returns newest first, together with the total number of orders of the user
func (r *OrderRepository) FindPageForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*domain.Order, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT o.id, o.order_number, o.order_date, o.total_price::text, o.total_quantity,
               o.street_address, o.address, o.zipcode, o.user_id,
               COALESCE(array_agg(oi.item_id) FILTER (WHERE oi.item_id IS NOT NULL), '{}')
        FROM orders o
        LEFT JOIN order_items oi ON oi.order_id = o.id
        WHERE o.user_id = $1
        GROUP BY o.id
        ORDER BY o.order_date DESC
        OFFSET $2 LIMIT $3
    `
	rows, err := r.db.Query(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o := &domain.Order{}
		var total string
		err := rows.Scan(
			&o.ID,
			&o.OrderNumber,
			&o.OrderDate,
			&total,
			&o.TotalQuantity,
			&o.StreetAddress,
			&o.Address,
			&o.Zipcode,
			&o.UserID,
			&o.ItemIDs,
		)
		if err != nil {
			return nil, 0, err
		}
		if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, 0, fmt.Errorf("order %s: parse total %q: %w", o.ID, total, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
