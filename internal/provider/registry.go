// ABOUTME: Registry mapping channels to provider backends.
// ABOUTME: Built once at boot; accessors fail with ErrNotConfigured, never nil.

package provider

import (
	"fmt"
	"sort"
)

// Registry holds the backend set for one gateway process. It is assembled
// once during startup from configuration and read-only afterwards, so no
// locking is needed.
type Registry struct {
	variant     Variant
	messengers  map[string]Messenger
	profiles    map[string]ProfileLookup
	caller      Caller
	synthesizer Synthesizer
	verifier    DomainVerifier
}

// NewRegistry creates an empty registry with the given variant tag.
func NewRegistry(variant Variant) *Registry {
	return &Registry{
		variant:    variant,
		messengers: make(map[string]Messenger),
		profiles:   make(map[string]ProfileLookup),
	}
}

// Variant reports whether this registry is live or simulated.
func (r *Registry) Variant() Variant {
	return r.variant
}

// RegisterMessenger binds a messenger backend to a channel.
func (r *Registry) RegisterMessenger(channel string, m Messenger) {
	r.messengers[channel] = m
}

// RegisterProfiles binds a profile lookup backend to a channel.
func (r *Registry) RegisterProfiles(channel string, p ProfileLookup) {
	r.profiles[channel] = p
}

// RegisterCaller sets the voice call backend.
func (r *Registry) RegisterCaller(c Caller) {
	r.caller = c
}

// RegisterSynthesizer sets the speech synthesis backend.
func (r *Registry) RegisterSynthesizer(s Synthesizer) {
	r.synthesizer = s
}

// RegisterVerifier sets the email domain verification backend.
func (r *Registry) RegisterVerifier(v DomainVerifier) {
	r.verifier = v
}

// Messenger returns the send backend for a channel.
func (r *Registry) Messenger(channel string) (Messenger, error) {
	m, ok := r.messengers[channel]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channel, ErrNotConfigured)
	}
	return m, nil
}

// Profiles returns the profile lookup backend for a channel.
func (r *Registry) Profiles(channel string) (ProfileLookup, error) {
	p, ok := r.profiles[channel]
	if !ok {
		return nil, fmt.Errorf("profiles for channel %q: %w", channel, ErrNotConfigured)
	}
	return p, nil
}

// Caller returns the voice call backend.
func (r *Registry) Caller() (Caller, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("caller: %w", ErrNotConfigured)
	}
	return r.caller, nil
}

// Synthesizer returns the speech synthesis backend.
func (r *Registry) Synthesizer() (Synthesizer, error) {
	if r.synthesizer == nil {
		return nil, fmt.Errorf("synthesizer: %w", ErrNotConfigured)
	}
	return r.synthesizer, nil
}

// Verifier returns the domain verification backend.
func (r *Registry) Verifier() (DomainVerifier, error) {
	if r.verifier == nil {
		return nil, fmt.Errorf("verifier: %w", ErrNotConfigured)
	}
	return r.verifier, nil
}

// Channels lists the channels with a registered messenger, sorted for
// stable status output.
func (r *Registry) Channels() []string {
	channels := make([]string, 0, len(r.messengers))
	for channel := range r.messengers {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}
