// ABOUTME: Capability contracts and result types for channel provider backends.
// ABOUTME: Live and simulated backends return identical shapes behind these interfaces.

package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Variant tags a registry as live or simulated. The tag is explicit and set
// once at boot; nothing branches on it per call.
type Variant string

const (
	// VariantLive talks to real upstream services.
	VariantLive Variant = "live"
	// VariantSimulated is deterministic, free, and never touches the network.
	VariantSimulated Variant = "simulated"
)

// ErrNotSupported is returned by a backend that implements a capability's
// interface but cannot perform one of its operations.
var ErrNotSupported = errors.New("operation not supported by this backend")

// ErrNotConfigured is returned by the registry when no backend covers the
// requested capability or channel.
var ErrNotConfigured = errors.New("no backend configured")

// SendResult is the outcome of a message send on any channel.
type SendResult struct {
	MessageID string
	Status    string
	Cost      float64
}

// Profile is a recipient profile as reported by a channel.
type Profile struct {
	ID          string
	DisplayName string
}

// Synthesis is rendered speech audio.
type Synthesis struct {
	Audio    []byte
	Format   string
	Duration float64 // seconds
}

// Voice describes one synthesizer voice.
type Voice struct {
	ID       string
	Name     string
	Language string
}

// DNSRecord is one record the tenant must publish to verify a domain.
type DNSRecord struct {
	Type  string
	Name  string
	Value string
}

// DomainVerification is the state of an email domain verification.
type DomainVerification struct {
	Domain  string
	Status  string
	Records []DNSRecord
}

// DialParams describes an outbound call to place.
type DialParams struct {
	From           string
	To             string
	TwiML          string
	StatusCallback string
}

// CallResult is the outcome of placing a call.
type CallResult struct {
	CallID string
	Status string
}

// Messenger sends one message on a channel.
type Messenger interface {
	Send(ctx context.Context, from, to, body string, media []string) (*SendResult, error)
}

// ProfileLookup fetches a recipient profile on channels that expose one.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
}

// Synthesizer renders text to speech and lists available voices.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*Synthesis, error)
	ListVoices(ctx context.Context) ([]Voice, error)
}

// DomainVerifier starts or reports email domain verification.
type DomainVerifier interface {
	VerifyDomain(ctx context.Context, domain string) (*DomainVerification, error)
}

// Caller places, redirects, and retrieves audio for voice calls.
type Caller interface {
	Dial(ctx context.Context, params DialParams) (*CallResult, error)
	Transfer(ctx context.Context, callID, to string) error
	Recording(ctx context.Context, callID string) ([]byte, error)
}

// maxErrorBody caps how much upstream response text an Error carries.
const maxErrorBody = 200

// Error is an upstream provider failure. Status is the upstream HTTP status
// and Message the response body, truncated so provider error pages cannot
// flood logs or API responses.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Message)
}

// upstreamError builds an Error from an upstream status and body.
func upstreamError(status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &Error{Status: status, Message: msg}
}
