package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

// User is the identity behind a bidder, only the display fields the auction needs
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository resolves users, FindByID fails with ErrUserNotFound
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}
