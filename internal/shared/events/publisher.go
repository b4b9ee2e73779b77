package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cristianortiz/artAuction/internal/shared/logger"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Subjects published by the auction engine
const (
	SubjectBidPlaced    = "auction.bid.placed"
	SubjectRoomOpened   = "auction.room.opened"
	SubjectRoomClosed   = "auction.room.closed"
	SubjectOrderCreated = "auction.order.created"
)

// Publisher emits domain events for downstream consumers. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// NatsPublisher publishes json encoded events over core NATS
type NatsPublisher struct {
	conn *nats.Conn
}

// NewNatsPublisher connects to the NATS server at url
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("auction-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NatsPublisher{conn: conn}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}

// NopPublisher drops every event, used when NATS_URL is not set
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }
func (NopPublisher) Close() error                               { return nil }

// PublishAsync fires the event in the background and only logs failures,
// callers use it after their transaction has committed
func PublishAsync(p Publisher, subject string, event any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Publish(ctx, subject, event); err != nil {
			log.Warn("Failed to publish domain event", zap.String("subject", subject), zap.Error(err))
		}
	}()
}
