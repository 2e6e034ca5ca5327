// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
// Core models:
//
//   - Tenant: Isolation boundary owning all other records
//   - Agent: Provisioned actor with capabilities, tier, and throttle overrides
//   - SenderIdentity: Pooled outbound number with channel capabilities
//   - MessageRecord: Append-only log of send/receive outcomes
//   - NotificationRecord: Queued events awaiting redelivery (pending -> dispatched)
//   - WaitingMessage: Inbound messages held while an agent is offline
//   - Token: Agent API credentials (bcrypt hashes only)
//   - UsageEvent: Billable actions aggregated for usage and billing reports
//
// # Tenant Scoping
//
// Every business row carries a tenant_id. List queries take the calling
// tenant context and append tenancy.ScopeFilter to their WHERE clause;
// loads of a specific row return it unscoped, and callers must run
// tenancy.AssertOwned on the result before using it.
//
// # Append-Only Records
//
// MessageRecord rows are never updated or deleted; the store exposes no
// method that could. The one sanctioned transition on notifications is
// pending -> dispatched via MarkNotificationDispatched, which refuses to
// fire twice for the same row.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 UTC text. Schema creation is idempotent
// and migrations for existing databases run automatically on open.
//
// # Error Handling
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateTenant: Tenant name already taken
//   - ErrDuplicateIdentity: Sender number already pooled for the tenant
//
// All methods accept context.Context for cancellation support.
package store
