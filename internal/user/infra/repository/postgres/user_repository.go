package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cristianortiz/artAuction/internal/shared/db"
	"github.com/cristianortiz/artAuction/internal/user/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository implementa la interfaz domain.Repository para PostgreSQL.
type UserRepository struct {
	db db.Querier
}

// NewUserRepository crea una nueva instancia de UserRepository.
func NewUserRepository(q db.Querier) *UserRepository {
	return &UserRepository{db: q}
}

// FindByID obtiene un usuario por su ID desde la base de datos.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT id, name, email, created_at FROM users WHERE id = $1`

	user := &domain.User{}
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: find %s: %w", id, err)
	}
	return user, nil
}

