// ABOUTME: Picks the best pooled sender identity for a destination and channel.
// ABOUTME: Priority is fixed: country match, then flagged default, then listing order.

package numberpool

import (
	"context"
	"errors"
	"log/slog"

	"github.com/95percent-ai/butt-dial/internal/phone"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// ErrNoSender is returned when neither the pool nor the agent's own number
// can originate a send.
var ErrNoSender = errors.New("no sender identity available")

// IdentityLister is the slice of the store the selector needs.
type IdentityLister interface {
	ListSenderIdentities(ctx context.Context, caller tenancy.Caller) ([]*store.SenderIdentity, error)
}

// Selector chooses sender identities from a tenant's pool. It only reads;
// selection never mutates pool rows.
type Selector struct {
	identities IdentityLister
	logger     *slog.Logger
}

// NewSelector creates a pool selector.
func NewSelector(identities IdentityLister, logger *slog.Logger) *Selector {
	return &Selector{
		identities: identities,
		logger:     logger.With("component", "numberpool"),
	}
}

// SelectBest picks the sender identity for one send. Candidates must be
// active and list the channel among their capabilities; among candidates the
// priority is strict:
//
//  1. an identity whose country matches the destination's dialing prefix
//  2. any identity flagged as default
//  3. the first candidate in listing order
//
// An empty candidate set returns (nil, nil): no identity is not an error at
// this layer, because the caller may still fall back to the agent's own
// number.
func (s *Selector) SelectBest(ctx context.Context, tenantID, destination, channel string) (*store.SenderIdentity, error) {
	pool, err := s.identities.ListSenderIdentities(ctx, tenancy.Caller{
		TenantID: tenantID,
		Role:     tenancy.RoleAgent,
	})
	if err != nil {
		return nil, err
	}

	var candidates []*store.SenderIdentity
	for _, identity := range pool {
		if identity.Status != store.StatusActive {
			continue
		}
		if !hasCapability(identity, channel) {
			continue
		}
		candidates = append(candidates, identity)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	country := phone.CountryForNumber(destination)
	for _, identity := range candidates {
		if identity.CountryCode == country {
			s.logger.Debug("selected sender by country",
				"identity", identity.ID, "country", country, "channel", channel)
			return identity, nil
		}
	}

	for _, identity := range candidates {
		if identity.IsDefault {
			s.logger.Debug("selected default sender",
				"identity", identity.ID, "channel", channel)
			return identity, nil
		}
	}

	s.logger.Debug("selected first pooled sender",
		"identity", candidates[0].ID, "channel", channel)
	return candidates[0], nil
}

// ResolveFrom returns the originating address for a send: the best pool
// identity, or the agent's own number when the pool has nothing usable.
// Returns ErrNoSender when both are absent.
func (s *Selector) ResolveFrom(ctx context.Context, tenantID, agentPhone, destination, channel string) (string, error) {
	identity, err := s.SelectBest(ctx, tenantID, destination, channel)
	if err != nil {
		return "", err
	}
	if identity != nil {
		return identity.PhoneNumber, nil
	}
	if agentPhone != "" {
		s.logger.Debug("pool empty, using agent's own number", "channel", channel)
		return agentPhone, nil
	}
	return "", ErrNoSender
}

// hasCapability reports whether the identity lists the channel.
func hasCapability(identity *store.SenderIdentity, channel string) bool {
	for _, c := range identity.Capabilities {
		if c == channel {
			return true
		}
	}
	return false
}
