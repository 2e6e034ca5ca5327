// ABOUTME: SQLite implementation for usage event tracking
// ABOUTME: Stores billable actions and aggregates them for usage and billing reports

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// InsertUsageEvent stores one billable action.
func (s *SQLiteStore) InsertUsageEvent(ctx context.Context, event *UsageEvent) error {
	query := `
		INSERT INTO usage_events (id, agent_id, tenant_id, action, channel, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.AgentID,
		event.TenantID,
		event.Action,
		nullString(event.Channel),
		event.Cost,
		event.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage event: %w", err)
	}

	s.logger.Debug("recorded usage event",
		"id", event.ID,
		"agent_id", event.AgentID,
		"action", event.Action,
		"cost", event.Cost,
	)
	return nil
}

// GetUsageSummary returns aggregated usage visible to the caller with
// optional agent and time filters.
func (s *SQLiteStore) GetUsageSummary(ctx context.Context, caller tenancy.Caller, filter UsageFilter) (*UsageSummary, error) {
	where := " WHERE 1=1"
	args := []any{}

	if clause, params := tenancy.ScopeFilter(caller); clause != "" {
		where += " AND " + clause
		args = append(args, params...)
	}
	if filter.AgentID != "" {
		where += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.Since != nil {
		where += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Until != nil {
		where += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	summary := &UsageSummary{
		ByAction:  make(map[string]int64),
		ByChannel: make(map[string]int64),
	}

	totals := `
		SELECT COUNT(*) as total_actions,
		       COALESCE(SUM(cost), 0) as total_cost
		FROM usage_events` + where

	err := s.db.QueryRowContext(ctx, totals, args...).Scan(
		&summary.TotalActions,
		&summary.TotalCost,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage totals: %w", err)
	}

	byAction := `SELECT action, COUNT(*) FROM usage_events` + where + ` GROUP BY action`
	if err := s.countInto(ctx, byAction, args, summary.ByAction); err != nil {
		return nil, fmt.Errorf("querying usage by action: %w", err)
	}

	byChannel := `SELECT COALESCE(channel, ''), COUNT(*) FROM usage_events` + where + ` GROUP BY channel`
	if err := s.countInto(ctx, byChannel, args, summary.ByChannel); err != nil {
		return nil, fmt.Errorf("querying usage by channel: %w", err)
	}
	delete(summary.ByChannel, "")

	return summary, nil
}

// countInto runs a two-column (key, count) query into a map.
func (s *SQLiteStore) countInto(ctx context.Context, query string, args []any, dest map[string]int64) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		dest[key] = count
	}
	return rows.Err()
}
