package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/kavrel/tenantreg/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries the data needed to process a resource event
// asynchronously. River serializes this as JSON into its job queue table.
// It includes a snapshot of the resource at publish time, so the worker
// never needs to query the database.
type EventJobArgs struct {
	Event         string `json:"event"`
	ResourceID    string `json:"resource_id"`
	TenantID      string `json:"tenant_id"`
	ResourceKind  string `json:"kind"`
	Discriminator string `json:"discriminator"`
	Status        string `json:"status"`
	IsPrimary     bool   `json:"is_primary"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "resource.event" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a resource event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, res domain.Resource) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:         string(event),
		ResourceID:    res.ID,
		TenantID:      res.TenantID,
		ResourceKind:  string(res.Kind),
		Discriminator: res.Discriminator,
		Status:        string(res.Status),
		IsPrimary:     res.IsPrimary,
		FailureReason: res.FailureReason,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
