// ABOUTME: At-least-once redelivery of stored notifications to live streams.
// ABOUTME: Delivers each pending item independently and marks only successes.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/95percent-ai/butt-dial/internal/store"
)

// Deliverer pushes one notification to an agent's live stream.
type Deliverer interface {
	Deliver(ctx context.Context, n *store.NotificationRecord) error
}

// ItemResult reports what happened to one notification during a dispatch
// pass. Delivered with a non-nil Err means the push went out but the
// dispatched mark failed, so the item may be delivered again later.
type ItemResult struct {
	NotificationID string
	Delivered      bool
	Err            error
}

// Dispatcher stores notifications durably and redelivers the pending
// backlog when an agent reconnects. Delivery is at least once: an item is
// marked dispatched only after its push succeeds, so a crash between push
// and mark repeats the push rather than losing it.
type Dispatcher struct {
	store  store.Store
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher backed by the given store.
func NewDispatcher(s store.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  s,
		logger: logger.With("component", "dispatcher"),
	}
}

// Notify records a notification, then tries an immediate push when the
// agent has a live stream. The record always lands first; a failed push
// just leaves it pending for the next dispatch pass.
func (d *Dispatcher) Notify(ctx context.Context, n *store.NotificationRecord, deliver Deliverer) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = store.NotificationPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if err := d.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("storing notification: %w", err)
	}

	if deliver == nil {
		d.logger.Debug("notification stored for later delivery",
			"notification_id", n.ID, "agent_id", n.AgentID, "kind", n.Kind)
		return nil
	}

	if err := deliver.Deliver(ctx, n); err != nil {
		d.logger.Warn("immediate delivery failed, left pending",
			"notification_id", n.ID, "agent_id", n.AgentID, "error", err)
		return nil
	}
	d.mark(ctx, n.ID)
	return nil
}

// DispatchPending pushes every pending notification for the agent, oldest
// first, and returns one result per item. A failing item is skipped, not
// fatal: later items still get their delivery attempt.
func (d *Dispatcher) DispatchPending(ctx context.Context, agentID string, deliver Deliverer) ([]ItemResult, error) {
	pending, err := d.store.ListPendingNotifications(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing pending notifications: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	results := make([]ItemResult, 0, len(pending))
	delivered := 0
	for _, n := range pending {
		if err := deliver.Deliver(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed",
				"notification_id", n.ID, "agent_id", agentID, "error", err)
			results = append(results, ItemResult{NotificationID: n.ID, Err: err})
			continue
		}

		markErr := d.mark(ctx, n.ID)
		results = append(results, ItemResult{NotificationID: n.ID, Delivered: true, Err: markErr})
		delivered++
	}

	d.logger.Info("dispatched pending notifications",
		"agent_id", agentID, "total", len(pending), "delivered", delivered)
	return results, nil
}

// mark flags a notification dispatched. A concurrent pass may have marked
// it already; that is not an error since the push did happen.
func (d *Dispatcher) mark(ctx context.Context, id string) error {
	err := d.store.MarkNotificationDispatched(ctx, id, time.Now().UTC())
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	d.logger.Error("failed to mark notification dispatched, may redeliver",
		"notification_id", id, "error", err)
	return err
}
