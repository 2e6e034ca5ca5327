// ABOUTME: SQLite persistence for messages waiting on offline agents
// ABOUTME: Rows are claimed in one pass when the agent asks for its backlog

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnqueueWaitingMessage holds an inbound message for an offline agent.
func (s *SQLiteStore) EnqueueWaitingMessage(ctx context.Context, m *WaitingMessage) error {
	query := `
		INSERT INTO waiting_messages (
			id, agent_id, tenant_id, channel, from_addr,
			body, external_id, created_at, claimed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.AgentID,
		m.TenantID,
		m.Channel,
		m.FromAddr,
		nullString(m.Body),
		nullString(m.ExternalID),
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting waiting message: %w", err)
	}

	s.logger.Debug("queued waiting message",
		"id", m.ID,
		"agent_id", m.AgentID,
		"channel", m.Channel,
	)
	return nil
}

// ClaimWaitingMessages returns an agent's unclaimed backlog oldest first and
// stamps every returned row as claimed. A second call returns nothing until
// new messages arrive.
func (s *SQLiteStore) ClaimWaitingMessages(ctx context.Context, agentID string) ([]*WaitingMessage, error) {
	query := `
		SELECT id, agent_id, tenant_id, channel, from_addr,
		       body, external_id, created_at
		FROM waiting_messages
		WHERE agent_id = ? AND claimed_at IS NULL
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("querying waiting messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*WaitingMessage
	for rows.Next() {
		var m WaitingMessage
		var body, externalID sql.NullString
		var createdAtStr string

		if err := rows.Scan(
			&m.ID,
			&m.AgentID,
			&m.TenantID,
			&m.Channel,
			&m.FromAddr,
			&body,
			&externalID,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning waiting message row: %w", err)
		}

		m.Body = body.String
		m.ExternalID = externalID.String

		m.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, err
		}

		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating waiting message rows: %w", err)
	}

	if len(messages) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	claim := `UPDATE waiting_messages SET claimed_at = ? WHERE agent_id = ? AND claimed_at IS NULL`
	if _, err := s.db.ExecContext(ctx, claim, now.Format(time.RFC3339), agentID); err != nil {
		return nil, fmt.Errorf("claiming waiting messages: %w", err)
	}
	for _, m := range messages {
		claimedAt := now
		m.ClaimedAt = &claimedAt
	}

	s.logger.Debug("claimed waiting messages", "agent_id", agentID, "count", len(messages))
	return messages, nil
}
