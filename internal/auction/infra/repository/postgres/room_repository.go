package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/auction/domain"
	"github.com/cristianortiz/artAuction/internal/shared/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const roomColumns = `id, item_id, name, description, start_date, end_date, item_snapshot, created_at`

// RoomRepository implements domain.RoomRepository interface
type RoomRepository struct {
	db db.Querier
}

func NewRoomRepository(q db.Querier) *RoomRepository {
	return &RoomRepository{db: q}
}

// Create inserts the room with its item snapshot stored as JSONB
func (r *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	snapshot, err := json.Marshal(room.Item)
	if err != nil {
		return fmt.Errorf("marshal item snapshot: %w", err)
	}
	query := `
        INSERT INTO rooms (id, item_id, name, description, start_date, end_date, item_snapshot, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err = r.db.Exec(ctx, query,
		room.ID,
		room.ItemID,
		room.Name,
		room.Description,
		room.StartDate,
		room.EndDate,
		snapshot,
		room.CreatedAt,
	)
	switch {
	case db.IsForeignKeyViolation(err):
		return domain.ErrItemNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("room for item %s already open: %w", room.ItemID, domain.ErrInvalid)
	}
	return err
}

func (r *RoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *RoomRepository) FindByItemID(ctx context.Context, itemID uuid.UUID) (*domain.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE item_id = $1`
	return r.getOne(ctx, query, itemID)
}

// Delete removes the room, bids still pointing at it get room_id NULL (ON DELETE SET NULL)
func (r *RoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepository) getOne(ctx context.Context, query string, arg uuid.UUID) (*domain.Room, error) {
	room := &domain.Room{}
	var snapshot []byte

	err := r.db.QueryRow(ctx, query, arg).Scan(
		&room.ID,
		&room.ItemID,
		&room.Name,
		&room.Description,
		&room.StartDate,
		&room.EndDate,
		&snapshot,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &room.Item); err != nil {
		return nil, fmt.Errorf("room %s: unmarshal item snapshot: %w", room.ID, err)
	}
	return room, nil
}
