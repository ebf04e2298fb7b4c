package natsutil

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minitasks/tasktracker/internal/messaging"
	"github.com/nats-io/nats.go"
)

type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

func ConnectJetStream(url string, streams ...messaging.StreamSpec) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name("tasktracker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	for _, spec := range streams {
		if err := messaging.EnsureStream(js, spec); err != nil {
			_ = conn.Drain()
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", spec.Name, err)
		}
	}
	return &Client{Conn: conn, JS: js}, nil
}

func ConnectJetStreamWithRetry(ctx context.Context, url string, timeout time.Duration, streams ...messaging.StreamSpec) (*Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ConnectJetStream(url, streams...)
		if err == nil {
			return client, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("connect jetstream timeout after %s: %w", timeout, lastErr)
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

// Connected reports whether the underlying connection is usable.
func (c *Client) Connected() error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("nats connection is nil")
	}
	if status := c.Conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", status.String())
	}
	return nil
}

// Publisher publishes a payload and waits for the stream acknowledgement.
// msgID feeds JetStream's duplicate detection; an empty id disables it.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, msgID string) (*nats.PubAck, error)
}

type JetStreamPublisher struct {
	JS nats.JetStreamContext
}

func (p JetStreamPublisher) Publish(ctx context.Context, subject string, payload []byte, msgID string) (*nats.PubAck, error) {
	opts := []nats.PubOpt{nats.Context(ctx)}
	if msgID != "" {
		opts = append(opts, nats.MsgId(msgID))
	}
	return p.JS.Publish(subject, payload, opts...)
}
