// internal/bus/nats.go
package bus

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vespa-academy/homepage-backend/pkg/schema"
)

type Client struct{ nc *nats.Conn }

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) PublishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// Conn is the slice of Client the publisher needs.
type Conn interface {
	PublishJSON(subject string, v any) error
}

// Publisher emits job lifecycle events to a NATS subject. Publishing is
// best-effort: failures are logged and never fail the job. A nil Publisher
// drops every event, so callers need no connectivity guard.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

func NewPublisher(conn Conn, subject string, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, logger: logger}
}

func (p *Publisher) Publish(event schema.JobLifecycleEvent) {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.PublishJSON(p.subject, event); err != nil {
		p.logger.Error("publish lifecycle event failed",
			"subject", p.subject, "job_id", event.JobID, "stage", event.Stage, "err", err)
	}
}
