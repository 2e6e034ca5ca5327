// ABOUTME: Store interface and data types for butt-dial persistence
// ABOUTME: Defines tenant, agent, sender identity, message, and notification records

package store

import (
	"context"
	"errors"
	"time"

	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateTenant is returned when creating a tenant whose name is taken
var ErrDuplicateTenant = errors.New("tenant already exists")

// ErrDuplicateIdentity is returned when a sender number already exists for a tenant
var ErrDuplicateIdentity = errors.New("sender identity already exists")

// Channel constants for message routing
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelVoice    = "voice"
	ChannelEmail    = "email"
	ChannelLine     = "line"
	ChannelMatrix   = "matrix"
)

// Direction constants for message records
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Status constants for agents and sender identities
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Notification kinds
const (
	NotificationVoicemail      = "voicemail"
	NotificationMissedCall     = "missed_call"
	NotificationInboundMessage = "inbound_message"
)

// Notification statuses. A notification is written as pending and moves to
// dispatched exactly once, via MarkNotificationDispatched.
const (
	NotificationPending    = "pending"
	NotificationDispatched = "dispatched"
)

// Token statuses
const (
	TokenActive  = "active"
	TokenRevoked = "revoked"
)

// Tenant is an isolation boundary owning agents, identities, and records
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Agent is a provisioned actor that sends and receives on behalf of a tenant
type Agent struct {
	ID           string
	TenantID     string
	DisplayName  string
	PhoneNumber  string // dedicated number, empty if pool-only
	Status       string // active, inactive
	SystemPrompt string
	Greeting     string
	Capabilities []string
	Tier         string // billing tier
	MaxPerMinute int    // throttle override, 0 = tier default
	MaxPerHour   int
	CreatedAt    time.Time
}

// SenderIdentity is a pooled outbound number with channel capabilities
type SenderIdentity struct {
	ID           string
	TenantID     string
	PhoneNumber  string
	CountryCode  string   // ISO 3166-1 alpha-2
	Capabilities []string // channels this identity can serve
	IsDefault    bool
	Status       string
	CreatedAt    time.Time
}

// MessageRecord is one send or receive outcome. Records are append-only:
// nothing in the store updates or deletes them.
type MessageRecord struct {
	ID         string
	AgentID    string
	TenantID   string
	Channel    string
	Direction  string
	FromAddr   string
	ToAddr     string
	Body       string
	ExternalID string // provider-side id (message SID, call SID, ...)
	Status     string
	Cost       float64
	CreatedAt  time.Time
}

// NotificationRecord is a queued event awaiting redelivery to its agent
type NotificationRecord struct {
	ID            string
	AgentID       string
	TenantID      string
	CorrelationID string
	Kind          string // voicemail, missed_call, inbound_message
	Caller        string
	Transcript    string
	RecordingURL  string
	Status        string // pending, dispatched
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// WaitingMessage is an inbound message held while its agent is offline
type WaitingMessage struct {
	ID         string
	AgentID    string
	TenantID   string
	Channel    string
	FromAddr   string
	Body       string
	ExternalID string
	CreatedAt  time.Time
	ClaimedAt  *time.Time
}

// Token is an agent API credential. Only the bcrypt hash is stored; the
// plaintext is returned once at creation and never again.
type Token struct {
	ID         string
	AgentID    string
	TenantID   string
	TokenHash  string
	Label      string
	Status     string // active, revoked
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// UsageEvent is one billable action, written alongside the message record
type UsageEvent struct {
	ID        string
	AgentID   string
	TenantID  string
	Action    string // send_message, make_call, ...
	Channel   string
	Cost      float64
	CreatedAt time.Time
}

// MessageFilter narrows ListMessages. Zero values mean no filter.
type MessageFilter struct {
	AgentID   string
	Channel   string
	Direction string
	Limit     int
}

// UsageFilter narrows usage aggregation. Zero values mean no filter.
type UsageFilter struct {
	AgentID string
	Since   *time.Time
	Until   *time.Time
}

// UsageSummary is the aggregate consumed by usage and billing reports
type UsageSummary struct {
	TotalActions int64
	TotalCost    float64
	ByAction     map[string]int64
	ByChannel    map[string]int64
}

// Store defines persistence for the gateway. List methods take the calling
// tenant context and scope their queries with tenancy.ScopeFilter; loads of
// a specific row return it unscoped and callers must AssertOwned before use.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetTenantByName(ctx context.Context, name string) (*Tenant, error)

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentByPhone(ctx context.Context, phone string) (*Agent, error)
	ListAgents(ctx context.Context, caller tenancy.Caller) ([]*Agent, error)
	UpdateAgentStatus(ctx context.Context, id, status string) error
	SetAgentLimits(ctx context.Context, id string, perMinute, perHour int) error
	SetAgentTier(ctx context.Context, id, tier string) error

	// Sender identities
	CreateSenderIdentity(ctx context.Context, identity *SenderIdentity) error
	GetSenderIdentityByPhone(ctx context.Context, phone string) (*SenderIdentity, error)
	ListSenderIdentities(ctx context.Context, caller tenancy.Caller) ([]*SenderIdentity, error)

	// Message records (append-only)
	InsertMessage(ctx context.Context, record *MessageRecord) error
	ListMessages(ctx context.Context, caller tenancy.Caller, filter MessageFilter) ([]*MessageRecord, error)

	// Notifications
	CreateNotification(ctx context.Context, n *NotificationRecord) error
	ListPendingNotifications(ctx context.Context, agentID string) ([]*NotificationRecord, error)
	MarkNotificationDispatched(ctx context.Context, id string, at time.Time) error

	// Waiting messages
	EnqueueWaitingMessage(ctx context.Context, m *WaitingMessage) error
	ClaimWaitingMessages(ctx context.Context, agentID string) ([]*WaitingMessage, error)

	// Tokens
	CreateToken(ctx context.Context, token *Token) error
	GetToken(ctx context.Context, id string) (*Token, error)
	ListAgentTokens(ctx context.Context, agentID string) ([]*Token, error)
	RevokeAgentTokens(ctx context.Context, agentID string) error
	TouchToken(ctx context.Context, id string, at time.Time) error

	// Usage
	InsertUsageEvent(ctx context.Context, event *UsageEvent) error
	GetUsageSummary(ctx context.Context, caller tenancy.Caller, filter UsageFilter) (*UsageSummary, error)

	// Close releases any resources held by the store
	Close() error
}
