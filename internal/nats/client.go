package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aichat-platform/aichat/internal/config"
)

const (
	clientName      = "aichat-api"
	eventsRetention = 7 * 24 * time.Hour
	// Publishes repeating a message id inside this window are dropped.
	duplicateWindow = 2 * time.Minute
)

// Client owns the NATS connection and the JetStream context used for audit events.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects, reconnecting forever in the background, and makes sure
// the events stream exists.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(clientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, eventsStream()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", StreamEvents, err)
	}

	slog.Info("connected to NATS", "stream", StreamEvents)
	return &Client{conn: nc, js: js}, nil
}

func eventsStream() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       StreamEvents,
		Subjects:   []string{SubjectAuditEvent},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		MaxAge:     eventsRetention,
		Duplicates: duplicateWindow,
	}
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is currently up.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close drains in-flight messages before closing.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}
