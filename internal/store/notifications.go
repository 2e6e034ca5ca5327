// ABOUTME: SQLite persistence for queued notifications
// ABOUTME: Pending rows transition to dispatched exactly once, via the dispatcher

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateNotification queues a notification in pending state.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *NotificationRecord) error {
	query := `
		INSERT INTO notifications (
			id, agent_id, tenant_id, correlation_id, kind,
			caller, transcript, recording_url, status, created_at, dispatched_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	status := n.Status
	if status == "" {
		status = NotificationPending
	}

	_, err := s.db.ExecContext(ctx, query,
		n.ID,
		n.AgentID,
		n.TenantID,
		nullString(n.CorrelationID),
		n.Kind,
		nullString(n.Caller),
		nullString(n.Transcript),
		nullString(n.RecordingURL),
		status,
		n.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(n.DispatchedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}

	s.logger.Debug("queued notification",
		"id", n.ID,
		"agent_id", n.AgentID,
		"kind", n.Kind,
	)
	return nil
}

// ListPendingNotifications retrieves an agent's undispatched notifications
// oldest first, the order the dispatcher delivers them in.
func (s *SQLiteStore) ListPendingNotifications(ctx context.Context, agentID string) ([]*NotificationRecord, error) {
	query := `
		SELECT id, agent_id, tenant_id, correlation_id, kind,
		       caller, transcript, recording_url, status, created_at, dispatched_at
		FROM notifications
		WHERE agent_id = ? AND status = ?
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, agentID, NotificationPending)
	if err != nil {
		return nil, fmt.Errorf("querying pending notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notifications []*NotificationRecord
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification rows: %w", err)
	}

	return notifications, nil
}

// MarkNotificationDispatched transitions a pending notification to
// dispatched. Returns ErrNotFound if the row doesn't exist or was already
// dispatched, so a double dispatch is visible to the caller.
func (s *SQLiteStore) MarkNotificationDispatched(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = ?, dispatched_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		NotificationDispatched,
		at.UTC().Format(time.RFC3339),
		id,
		NotificationPending,
	)
	if err != nil {
		return fmt.Errorf("marking notification dispatched: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("notification dispatched", "id", id)
	return nil
}

// scanNotification scans a single notification row.
func scanNotification(rows *sql.Rows) (*NotificationRecord, error) {
	var n NotificationRecord
	var correlationID, caller, transcript, recordingURL sql.NullString
	var createdAtStr string
	var dispatchedAt sql.NullString

	err := rows.Scan(
		&n.ID,
		&n.AgentID,
		&n.TenantID,
		&correlationID,
		&n.Kind,
		&caller,
		&transcript,
		&recordingURL,
		&n.Status,
		&createdAtStr,
		&dispatchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning notification row: %w", err)
	}

	n.CorrelationID = correlationID.String
	n.Caller = caller.String
	n.Transcript = transcript.String
	n.RecordingURL = recordingURL.String

	n.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	n.DispatchedAt, err = parseNullTime(dispatchedAt)
	if err != nil {
		return nil, err
	}

	return &n, nil
}
