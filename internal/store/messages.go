// ABOUTME: SQLite persistence for message records
// ABOUTME: The log is append-only; there are no update or delete paths

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// InsertMessage appends one message record. Records are immutable once
// written; correcting an outcome means writing another record.
func (s *SQLiteStore) InsertMessage(ctx context.Context, record *MessageRecord) error {
	query := `
		INSERT INTO messages (
			id, agent_id, tenant_id, channel, direction,
			from_addr, to_addr, body, external_id, status, cost, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var cost any
	if record.Cost != 0 {
		cost = record.Cost
	}

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.AgentID,
		record.TenantID,
		record.Channel,
		record.Direction,
		record.FromAddr,
		record.ToAddr,
		nullString(record.Body),
		nullString(record.ExternalID),
		record.Status,
		cost,
		record.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("recorded message",
		"id", record.ID,
		"agent_id", record.AgentID,
		"channel", record.Channel,
		"direction", record.Direction,
	)
	return nil
}

// ListMessages retrieves message records visible to the caller, newest
// first, with optional agent, channel, and direction filters.
func (s *SQLiteStore) ListMessages(ctx context.Context, caller tenancy.Caller, filter MessageFilter) ([]*MessageRecord, error) {
	query := `
		SELECT id, agent_id, tenant_id, channel, direction,
		       from_addr, to_addr, body, external_id, status, cost, created_at
		FROM messages
		WHERE 1=1
	`
	args := []any{}

	if clause, params := tenancy.ScopeFilter(caller); clause != "" {
		query += " AND " + clause
		args = append(args, params...)
	}
	if filter.AgentID != "" {
		query += " AND agent_id = ?"
		args = append(args, filter.AgentID)
	}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	if filter.Direction != "" {
		query += " AND direction = ?"
		args = append(args, filter.Direction)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*MessageRecord
	for rows.Next() {
		var record MessageRecord
		var body, externalID sql.NullString
		var cost sql.NullFloat64
		var createdAtStr string

		if err := rows.Scan(
			&record.ID,
			&record.AgentID,
			&record.TenantID,
			&record.Channel,
			&record.Direction,
			&record.FromAddr,
			&record.ToAddr,
			&body,
			&externalID,
			&record.Status,
			&cost,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		record.Body = body.String
		record.ExternalID = externalID.String
		record.Cost = cost.Float64

		record.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, err
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return records, nil
}
