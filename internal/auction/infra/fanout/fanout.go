// Package fanout mirrors room bid events to every gateway process
package fanout

import (
	"context"
	"sync"

	"github.com/cristianortiz/artAuction/internal/shared/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var log = logger.GetLogger()

// RoomEvent is a persisted bid on its way to the room's viewers
type RoomEvent struct {
	BidID       uuid.UUID       `json:"bidId"`
	RoomID      uuid.UUID       `json:"roomId"`
	ItemID      uuid.UUID       `json:"itemId"`
	BidderID    uuid.UUID       `json:"bidderId"`
	BidderName  string          `json:"bidderName"`
	BidderEmail string          `json:"bidderEmail"`
	Price       decimal.Decimal `json:"price"`
}

type Handler func(RoomEvent)

type Fanout interface {
	Publish(ctx context.Context, ev RoomEvent) error
	// Subscribe delivers the events of every process to h until ctx is done.
	// It returns once the subscription is active.
	Subscribe(ctx context.Context, h Handler) error
}

// Local delivers events only inside this process, for single instance deployments and tests
type Local struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func NewLocal() *Local {
	return &Local{handlers: make(map[int]Handler)}
}

func (l *Local) Publish(ctx context.Context, ev RoomEvent) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.handlers {
		h(ev)
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, h Handler) error {
	l.mu.Lock()
	id := l.next
	l.next++
	l.handlers[id] = h
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}()
	return nil
}

var _ Fanout = (*Local)(nil)
