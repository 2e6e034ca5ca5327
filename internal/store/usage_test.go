// ABOUTME: Tests for usage event tracking
// ABOUTME: Covers InsertUsageEvent and GetUsageSummary aggregation and filtering

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

func TestStore_InsertUsageEvent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := &UsageEvent{
		ID:        uuid.New().String(),
		AgentID:   "agent-001",
		TenantID:  "tenant-001",
		Action:    "send_message",
		Channel:   ChannelSMS,
		Cost:      0.0075,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertUsageEvent(ctx, event))

	summary, err := store.GetUsageSummary(ctx,
		tenancy.Caller{TenantID: "tenant-001", Role: tenancy.RoleAgent}, UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalActions)
	assert.InDelta(t, 0.0075, summary.TotalCost, 1e-9)
}

func TestStore_GetUsageSummary_Aggregation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	events := []*UsageEvent{
		{AgentID: "agent-1", TenantID: "t1", Action: "send_message", Channel: ChannelSMS, Cost: 0.0075},
		{AgentID: "agent-1", TenantID: "t1", Action: "send_message", Channel: ChannelEmail, Cost: 0.0001},
		{AgentID: "agent-1", TenantID: "t1", Action: "make_call", Channel: ChannelVoice, Cost: 0.013},
		{AgentID: "agent-2", TenantID: "t2", Action: "send_message", Channel: ChannelSMS, Cost: 0.0075},
	}
	for _, e := range events {
		e.ID = uuid.New().String()
		e.CreatedAt = now
		require.NoError(t, store.InsertUsageEvent(ctx, e))
	}

	summary, err := store.GetUsageSummary(ctx,
		tenancy.Caller{TenantID: "t1", Role: tenancy.RoleTenantAdmin}, UsageFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.TotalActions, "t2 usage must not leak into t1")
	assert.InDelta(t, 0.0206, summary.TotalCost, 1e-9)
	assert.Equal(t, int64(2), summary.ByAction["send_message"])
	assert.Equal(t, int64(1), summary.ByAction["make_call"])
	assert.Equal(t, int64(1), summary.ByChannel[ChannelSMS])
	assert.Equal(t, int64(1), summary.ByChannel[ChannelVoice])
}

func TestStore_GetUsageSummary_FilterByAgent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, agentID := range []string{"agent-1", "agent-2"} {
		require.NoError(t, store.InsertUsageEvent(ctx, &UsageEvent{
			ID:        uuid.New().String(),
			AgentID:   agentID,
			TenantID:  "t1",
			Action:    "send_message",
			Channel:   ChannelSMS,
			Cost:      0.0075,
			CreatedAt: now,
		}))
	}

	summary, err := store.GetUsageSummary(ctx,
		tenancy.Caller{TenantID: "t1", Role: tenancy.RoleTenantAdmin},
		UsageFilter{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalActions)
}

func TestStore_GetUsageSummary_FilterByTime(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	today := time.Now().UTC()

	require.NoError(t, store.InsertUsageEvent(ctx, &UsageEvent{
		ID: uuid.New().String(), AgentID: "agent-1", TenantID: "t1",
		Action: "send_message", Channel: ChannelSMS, Cost: 0.0075, CreatedAt: yesterday,
	}))
	require.NoError(t, store.InsertUsageEvent(ctx, &UsageEvent{
		ID: uuid.New().String(), AgentID: "agent-1", TenantID: "t1",
		Action: "send_message", Channel: ChannelSMS, Cost: 0.0075, CreatedAt: today,
	}))

	since := time.Now().UTC().Add(-time.Hour)
	summary, err := store.GetUsageSummary(ctx,
		tenancy.Caller{TenantID: "t1", Role: tenancy.RoleTenantAdmin},
		UsageFilter{Since: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalActions, "only today's event is inside the window")
}

func TestStore_GetUsageSummary_Empty(t *testing.T) {
	store := setupTestStore(t)

	summary, err := store.GetUsageSummary(context.Background(),
		tenancy.Caller{TenantID: "t1", Role: tenancy.RoleAgent}, UsageFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.TotalActions)
	assert.Equal(t, float64(0), summary.TotalCost)
	assert.Empty(t, summary.ByAction)
}
