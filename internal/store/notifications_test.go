// ABOUTME: Tests for queued notification persistence
// ABOUTME: Covers pending order, the single dispatched transition, and double marks

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateNotification_DefaultsPending(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNotification(ctx, &NotificationRecord{
		ID:         "notif-001",
		AgentID:    "agent-001",
		TenantID:   "tenant-001",
		Kind:       NotificationVoicemail,
		Caller:     "+15551230000",
		Transcript: "call me back",
		CreatedAt:  time.Now().UTC(),
	}))

	pending, err := store.ListPendingNotifications(ctx, "agent-001")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, NotificationPending, pending[0].Status)
	assert.Nil(t, pending[0].DispatchedAt)
}

func TestStore_ListPendingNotifications_OldestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"n-old", "n-mid", "n-new"} {
		require.NoError(t, store.CreateNotification(ctx, &NotificationRecord{
			ID:        id,
			AgentID:   "agent-001",
			TenantID:  "tenant-001",
			Kind:      NotificationMissedCall,
			Caller:    "+15551230000",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	pending, err := store.ListPendingNotifications(ctx, "agent-001")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "n-old", pending[0].ID)
	assert.Equal(t, "n-new", pending[2].ID)
}

func TestStore_MarkNotificationDispatched(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNotification(ctx, &NotificationRecord{
		ID:        "notif-001",
		AgentID:   "agent-001",
		TenantID:  "tenant-001",
		Kind:      NotificationVoicemail,
		CreatedAt: time.Now().UTC(),
	}))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.MarkNotificationDispatched(ctx, "notif-001", at))

	pending, err := store.ListPendingNotifications(ctx, "agent-001")
	require.NoError(t, err)
	assert.Empty(t, pending, "dispatched notification must leave the pending set")

	// The transition fires exactly once; a second mark reports ErrNotFound.
	err = store.MarkNotificationDispatched(ctx, "notif-001", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_MarkNotificationDispatched_Missing(t *testing.T) {
	store := setupTestStore(t)

	err := store.MarkNotificationDispatched(context.Background(), "nope", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
}
