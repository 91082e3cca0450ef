package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// natsConn is the subset of *nats.Conn used for publishing
type natsConn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher forwards domain events to NATS on
// <prefix>.<tenant_id>.<event_type>. The event ID travels in the Nats-Msg-Id
// header so JetStream consumers can deduplicate redeliveries.
type NATSPublisher struct {
	conn       natsConn
	prefix     string
	serializer *EventSerializer
	logger     *zap.Logger
}

// ConnectNATS dials the broker and returns a publisher. The connection
// reconnects forever; outbox retries cover the gaps.
func ConnectNATS(url, name, prefix string, serializer *EventSerializer, logger *zap.Logger) (*NATSPublisher, error) {
	log := logger.Named("nats")
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSPublisher(nc, prefix, serializer, logger), nil
}

// NewNATSPublisher wraps an established connection
func NewNATSPublisher(conn natsConn, prefix string, serializer *EventSerializer, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		prefix:     strings.TrimSuffix(prefix, "."),
		serializer: serializer,
		logger:     logger.Named("nats"),
	}
}

// Subject returns the subject an event is published on
func (p *NATSPublisher) Subject(event shared.DomainEvent) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, event.TenantID(), event.EventType())
}

// Publish sends the events and flushes, so a nil error means the server has them
func (p *NATSPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	for _, event := range events {
		data, err := p.serializer.Serialize(event)
		if err != nil {
			return err
		}
		msg := nats.NewMsg(p.Subject(event))
		msg.Data = data
		msg.Header.Set(nats.MsgIdHdr, event.EventID().String())
		msg.Header.Set("Event-Type", event.EventType())
		if err := p.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Subject, err)
		}
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush NATS: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Ensure NATSPublisher implements EventPublisher
var _ shared.EventPublisher = (*NATSPublisher)(nil)
