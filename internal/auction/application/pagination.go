package application

import (
	"github.com/cristianortiz/artAuction/internal/auction/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is one slice of a user's listing, Page is 1-based
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func offsetOf(page, limit int) int {
	return (page - 1) * limit
}

// newPage fails with ErrPageNotFound when page lies past the last one, an empty
// first page is a valid result
func newPage[T any](items []T, page, limit, total int) (*Page[T], error) {
	totalPages := (total + limit - 1) / limit
	if page > 1 && page > totalPages {
		return nil, domain.ErrPageNotFound
	}
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}
