package domain

import (
	"errors"
	"fmt"
)

// Error classes, every specific error below wraps one of them
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid input")
)

var (
	ErrItemNotFound   = fmt.Errorf("auction item %w", ErrNotFound)
	ErrRoomNotFound   = fmt.Errorf("auction room %w", ErrNotFound)
	ErrBidNotFound    = fmt.Errorf("bid %w", ErrNotFound)
	ErrBidderNotFound = fmt.Errorf("bidder %w", ErrNotFound)
	ErrNoEligibleBids = fmt.Errorf("no bids on closed auctions: %w", ErrNotFound)
	ErrBidConsumed    = fmt.Errorf("bid already ordered: %w", ErrNotFound)
	ErrPageNotFound   = fmt.Errorf("page %w", ErrNotFound)
	ErrNoSession      = fmt.Errorf("connection has no session binding: %w", ErrUnauthorized)
	ErrSessionTaken   = fmt.Errorf("session bound to another user: %w", ErrUnauthorized)
	ErrInvalidPrice   = fmt.Errorf("bid price must be greater than zero: %w", ErrInvalid)
)
