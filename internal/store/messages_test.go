// ABOUTME: Tests for the append-only message record log
// ABOUTME: Covers insertion, tenant scoping, filters, and newest-first ordering

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

func TestStore_InsertMessage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	record := &MessageRecord{
		ID:         "msg-001",
		AgentID:    "agent-001",
		TenantID:   "tenant-001",
		Channel:    ChannelSMS,
		Direction:  DirectionOutbound,
		FromAddr:   "+15550001111",
		ToAddr:     "+15552223333",
		Body:       "hello",
		ExternalID: "SM0123456789abcdef",
		Status:     "queued",
		Cost:       0.0075,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.InsertMessage(ctx, record))

	records, err := store.ListMessages(ctx,
		tenancy.Caller{TenantID: "tenant-001", Role: tenancy.RoleAgent}, MessageFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "SM0123456789abcdef", records[0].ExternalID)
	assert.Equal(t, 0.0075, records[0].Cost)
	assert.Equal(t, DirectionOutbound, records[0].Direction)
}

func TestStore_ListMessages_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	seed := []*MessageRecord{
		{ID: "m1", AgentID: "agent-1", TenantID: "t1", Channel: ChannelSMS, Direction: DirectionOutbound, FromAddr: "a", ToAddr: "b", Status: "sent"},
		{ID: "m2", AgentID: "agent-1", TenantID: "t1", Channel: ChannelEmail, Direction: DirectionOutbound, FromAddr: "a", ToAddr: "c", Status: "sent"},
		{ID: "m3", AgentID: "agent-2", TenantID: "t1", Channel: ChannelSMS, Direction: DirectionInbound, FromAddr: "d", ToAddr: "a", Status: "received"},
		{ID: "m4", AgentID: "agent-3", TenantID: "t2", Channel: ChannelSMS, Direction: DirectionOutbound, FromAddr: "e", ToAddr: "f", Status: "sent"},
	}
	for i, r := range seed {
		r.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.InsertMessage(ctx, r))
	}

	tenant1 := tenancy.Caller{TenantID: "t1", Role: tenancy.RoleTenantAdmin}

	t.Run("tenant scope", func(t *testing.T) {
		records, err := store.ListMessages(ctx, tenant1, MessageFilter{})
		require.NoError(t, err)
		assert.Len(t, records, 3, "t2 records must not leak into t1")
	})

	t.Run("newest first", func(t *testing.T) {
		records, err := store.ListMessages(ctx, tenant1, MessageFilter{})
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "m3", records[0].ID)
		assert.Equal(t, "m1", records[2].ID)
	})

	t.Run("agent filter", func(t *testing.T) {
		records, err := store.ListMessages(ctx, tenant1, MessageFilter{AgentID: "agent-1"})
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("channel filter", func(t *testing.T) {
		records, err := store.ListMessages(ctx, tenant1, MessageFilter{Channel: ChannelEmail})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "m2", records[0].ID)
	})

	t.Run("direction filter", func(t *testing.T) {
		records, err := store.ListMessages(ctx, tenant1, MessageFilter{Direction: DirectionInbound})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "m3", records[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		records, err := store.ListMessages(ctx, tenant1, MessageFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("super admin sees all tenants", func(t *testing.T) {
		records, err := store.ListMessages(ctx, tenancy.Caller{Role: tenancy.RoleSuperAdmin}, MessageFilter{})
		require.NoError(t, err)
		assert.Len(t, records, 4)
	})
}
