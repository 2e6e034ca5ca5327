// ABOUTME: Append-only recording of dispatch outcomes.
// ABOUTME: Writes the message record and its matching usage event.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/95percent-ai/butt-dial/internal/store"
)

// Outcome is one finished dispatch attempt. Every outcome is recorded,
// successes and provider failures alike.
type Outcome struct {
	AgentID    string
	TenantID   string
	Channel    string
	Direction  string
	From       string
	To         string
	Body       string
	ExternalID string
	Status     string
	Cost       float64
	// Action names the billable operation for the usage ledger, e.g.
	// "send_message" or "voice_call".
	Action string
}

// Recorder appends dispatch outcomes to the store. Records are never
// updated after the fact; a retry produces a new record.
type Recorder struct {
	store  store.Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(s store.Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  s,
		logger: logger.With("component", "recorder"),
	}
}

// Record appends the message record for an outcome, then its usage event.
// The message record is authoritative; a usage-event failure is logged and
// swallowed so billing hiccups cannot erase a real dispatch.
func (r *Recorder) Record(ctx context.Context, o Outcome) (*store.MessageRecord, error) {
	now := time.Now().UTC()

	msg := &store.MessageRecord{
		ID:         uuid.New().String(),
		AgentID:    o.AgentID,
		TenantID:   o.TenantID,
		Channel:    o.Channel,
		Direction:  o.Direction,
		FromAddr:   o.From,
		ToAddr:     o.To,
		Body:       o.Body,
		ExternalID: o.ExternalID,
		Status:     o.Status,
		Cost:       o.Cost,
		CreatedAt:  now,
	}
	if err := r.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}

	if o.Action != "" {
		if err := r.recordUsage(ctx, o, now); err != nil {
			r.logger.Error("failed to record usage event",
				"agent_id", o.AgentID, "action", o.Action, "error", err)
		}
	}

	r.logger.Debug("recorded outcome",
		"message_id", msg.ID, "channel", o.Channel, "status", o.Status)
	return msg, nil
}

// RecordAction appends a usage event with no message record, for billable
// operations that produce no message, like speech synthesis.
func (r *Recorder) RecordAction(ctx context.Context, agentID, tenantID, action, channel string, cost float64) error {
	event := &store.UsageEvent{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		TenantID:  tenantID,
		Action:    action,
		Channel:   channel,
		Cost:      cost,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.InsertUsageEvent(ctx, event); err != nil {
		return fmt.Errorf("recording usage event: %w", err)
	}
	return nil
}

func (r *Recorder) recordUsage(ctx context.Context, o Outcome, at time.Time) error {
	return r.store.InsertUsageEvent(ctx, &store.UsageEvent{
		ID:        uuid.New().String(),
		AgentID:   o.AgentID,
		TenantID:  o.TenantID,
		Action:    o.Action,
		Channel:   o.Channel,
		Cost:      o.Cost,
		CreatedAt: at,
	})
}
