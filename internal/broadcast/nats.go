package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/model"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
)

// natsConn - the part of *nats.Conn the relay uses
type natsConn interface {
	Publish(subj string, data []byte) error
	ChanSubscribe(subj string, ch chan *nats.Msg) (*nats.Subscription, error)
}

// NATSRelay - shares QueueEvents between instances over a NATS subject.
// Local subscribers are served by the wrapped Hub.
type NATSRelay struct {
	hub     *Hub
	conn    natsConn
	subject string
	origin  string
}

// ConnectNATS dials cfg.URL with reconnects enabled
func ConnectNATS(ctx context.Context, cfg config.NATSConfig) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	opts := []nats.Option{
		nats.Name("contract-queue"),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.WarnContext(ctx, "NATS disconnected", "error", err, "status", nc.Status())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.InfoContext(ctx, "NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.InfoContext(ctx, "NATS connected", "url", conn.ConnectedUrl(), "subject", cfg.Subject)
	return conn, nil
}

func NewNATSRelay(hub *Hub, conn *nats.Conn, subject string) *NATSRelay {
	return newNATSRelay(hub, conn, subject)
}

func newNATSRelay(hub *Hub, conn natsConn, subject string) *NATSRelay {
	return &NATSRelay{
		hub:     hub,
		conn:    conn,
		subject: subject,
		origin:  uuid.NewString(),
	}
}

// Origin - id stamped on events published by this instance
func (r *NATSRelay) Origin() string {
	return r.origin
}

// Publish fans evt out locally, then to the other instances
func (r *NATSRelay) Publish(ctx context.Context, evt model.QueueEvent) {
	evt.Origin = r.origin
	r.hub.Publish(ctx, evt)

	data, err := encodeEvent(evt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode queue event", "error", err)
		return
	}
	if err := r.conn.Publish(r.subject, data); err != nil {
		slog.ErrorContext(ctx, "failed to publish queue event", "error", err, "subject", r.subject)
	}
}

// Run re-publishes remote events into the local hub until ctx is done
func (r *NATSRelay) Run(ctx context.Context) error {
	msgs := make(chan *nats.Msg, 64)
	sub, err := r.conn.ChanSubscribe(r.subject, msgs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.subject, err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			evt, err := decodeEvent(msg.Data)
			if err != nil {
				slog.WarnContext(ctx, "discarding malformed queue event", "error", err)
				continue
			}
			if evt.Origin == r.origin {
				continue
			}
			r.hub.Publish(ctx, evt)
		}
	}
}

func encodeEvent(evt model.QueueEvent) ([]byte, error) {
	return msgpack.Marshal(evt)
}

func decodeEvent(data []byte) (model.QueueEvent, error) {
	var evt model.QueueEvent
	if err := msgpack.Unmarshal(data, &evt); err != nil {
		return model.QueueEvent{}, err
	}
	return evt, nil
}
