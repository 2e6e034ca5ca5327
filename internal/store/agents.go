// ABOUTME: SQLite persistence for provisioned agents
// ABOUTME: Covers creation, lookup, status changes, throttle overrides, and tiers

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// CreateAgent creates a new agent row.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	query := `
		INSERT INTO agents (
			agent_id, tenant_id, display_name, phone_number, status,
			system_prompt, greeting, capabilities, tier,
			max_per_minute, max_per_hour, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var capsJSON any
	if len(agent.Capabilities) > 0 {
		b, err := json.Marshal(agent.Capabilities)
		if err != nil {
			return fmt.Errorf("marshaling capabilities: %w", err)
		}
		capsJSON = string(b)
	}

	tier := agent.Tier
	if tier == "" {
		tier = "standard"
	}

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.TenantID,
		agent.DisplayName,
		nullString(agent.PhoneNumber),
		agent.Status,
		nullString(agent.SystemPrompt),
		nullString(agent.Greeting),
		capsJSON,
		tier,
		agent.MaxPerMinute,
		agent.MaxPerHour,
		agent.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "tenant", agent.TenantID)
	return nil
}

// GetAgent retrieves an agent by ID.
// Returns ErrNotFound if the agent doesn't exist. The row is returned
// unscoped; callers must assert tenant ownership before using it.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := agentSelect + ` WHERE agent_id = ?`

	row := s.db.QueryRowContext(ctx, query, id)
	agent, err := scanAgentRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return agent, nil
}

// GetAgentByPhone retrieves the agent holding the dedicated number, for
// routing inbound webhooks. If more than one agent claims the number the
// oldest wins. Returns ErrNotFound when no agent holds it.
func (s *SQLiteStore) GetAgentByPhone(ctx context.Context, phone string) (*Agent, error) {
	if phone == "" {
		return nil, ErrNotFound
	}
	query := agentSelect + ` WHERE phone_number = ? ORDER BY created_at, agent_id LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, phone)
	agent, err := scanAgentRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent by phone: %w", err)
	}
	return agent, nil
}

// ListAgents retrieves agents visible to the caller, oldest first.
func (s *SQLiteStore) ListAgents(ctx context.Context, caller tenancy.Caller) ([]*Agent, error) {
	query := agentSelect + ` WHERE 1=1`
	args := []any{}

	if clause, params := tenancy.ScopeFilter(caller); clause != "" {
		query += " AND " + clause
		args = append(args, params...)
	}
	query += " ORDER BY created_at, agent_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}

	return agents, nil
}

// UpdateAgentStatus sets an agent's status.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) UpdateAgentStatus(ctx context.Context, id, status string) error {
	return s.updateAgent(ctx, id, `UPDATE agents SET status = ? WHERE agent_id = ?`, status, id)
}

// SetAgentLimits stores per-agent throttle overrides. Zero clears an override.
func (s *SQLiteStore) SetAgentLimits(ctx context.Context, id string, perMinute, perHour int) error {
	return s.updateAgent(ctx, id,
		`UPDATE agents SET max_per_minute = ?, max_per_hour = ? WHERE agent_id = ?`,
		perMinute, perHour, id)
}

// SetAgentTier changes an agent's billing tier.
func (s *SQLiteStore) SetAgentTier(ctx context.Context, id, tier string) error {
	return s.updateAgent(ctx, id, `UPDATE agents SET tier = ? WHERE agent_id = ?`, tier, id)
}

// updateAgent runs an agent UPDATE and maps zero affected rows to ErrNotFound.
func (s *SQLiteStore) updateAgent(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated agent", "id", id)
	return nil
}

const agentSelect = `
	SELECT agent_id, tenant_id, display_name, phone_number, status,
	       system_prompt, greeting, capabilities, tier,
	       max_per_minute, max_per_hour, created_at
	FROM agents`

// scanAgentRow scans one agent row from either a Row or Rows scan function.
func scanAgentRow(scan func(...any) error) (*Agent, error) {
	var agent Agent
	var phone, prompt, greeting, capsJSON sql.NullString
	var createdAtStr string

	err := scan(
		&agent.ID,
		&agent.TenantID,
		&agent.DisplayName,
		&phone,
		&agent.Status,
		&prompt,
		&greeting,
		&capsJSON,
		&agent.Tier,
		&agent.MaxPerMinute,
		&agent.MaxPerHour,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	agent.PhoneNumber = phone.String
	agent.SystemPrompt = prompt.String
	agent.Greeting = greeting.String
	if capsJSON.Valid {
		_ = json.Unmarshal([]byte(capsJSON.String), &agent.Capabilities) // Best effort: invalid JSON leaves capabilities empty
	}

	agent.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	return &agent, nil
}
