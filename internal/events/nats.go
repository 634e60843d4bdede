package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS publishes events as JSON on <prefix>.<event type>.
type NATS struct {
	Conn   *nats.Conn
	Prefix string
}

func ConnectNATS(url string, prefix string, logger zerolog.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("complaints-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := logger.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("nats async error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats at %s: %w", url, err)
	}
	return &NATS{Conn: nc, Prefix: prefix}, nil
}

func (n *NATS) Subject(eventType string) string {
	if n.Prefix == "" {
		return eventType
	}
	return strings.TrimSuffix(n.Prefix, ".") + "." + eventType
}

func (n *NATS) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.Conn.Publish(n.Subject(e.Type), b)
}

func (n *NATS) Close() {
	if n.Conn != nil {
		_ = n.Conn.Drain()
	}
}
