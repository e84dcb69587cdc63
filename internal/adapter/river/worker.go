package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EventWorker processes resource event jobs from the River queue.
// For now it logs the event; future versions will dispatch to
// verification probes, webhooks, or edge-config pushes.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	slog.InfoContext(ctx, "processing resource event",
		"event", job.Args.Event,
		"resource_id", job.Args.ResourceID,
		"tenant_id", job.Args.TenantID,
		"kind", job.Args.ResourceKind,
		"discriminator", job.Args.Discriminator,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
