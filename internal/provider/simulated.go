// ABOUTME: Simulated backend covering every channel capability without
// ABOUTME: network calls, returning deterministic results shaped like live ones.

package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
)

// simulatedSMSCost mirrors the live per-message list price so billing
// paths exercise nonzero costs in demo mode.
const simulatedSMSCost = 0.0075

// Simulated answers every capability locally. Results carry the same
// fields a live backend would fill, so nothing downstream can tell the
// difference. The one exception is call recordings, which have no
// simulated audio source and report ErrNotSupported.
type Simulated struct {
	mu     sync.Mutex
	seq    int
	logger *slog.Logger
}

// NewSimulated creates the simulated backend.
func NewSimulated(logger *slog.Logger) *Simulated {
	return &Simulated{
		logger: logger.With("component", "simulated"),
	}
}

// NewSimulatedRegistry builds a registry with one simulated backend
// wired into every given message channel plus calls, speech, and domain
// verification.
func NewSimulatedRegistry(channels []string, logger *slog.Logger) *Registry {
	sim := NewSimulated(logger)
	reg := NewRegistry(VariantSimulated)
	for _, ch := range channels {
		reg.RegisterMessenger(ch, sim)
		reg.RegisterProfiles(ch, sim)
	}
	reg.RegisterCaller(sim)
	reg.RegisterSynthesizer(sim)
	reg.RegisterVerifier(sim)
	return reg
}

// nextID derives a deterministic resource ID from the call sequence and
// inputs, in the live backend's SID shape.
func (s *Simulated) nextID(prefix string, parts ...string) string {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d", prefix, n)
	for _, p := range parts {
		fmt.Fprintf(h, "|%s", p)
	}
	return prefix + hex.EncodeToString(h.Sum(nil))[:32]
}

// Send accepts any message and reports it queued.
func (s *Simulated) Send(ctx context.Context, from, to, body string, media []string) (*SendResult, error) {
	sid := s.nextID("SM", from, to)
	s.logger.Debug("simulated send", "sid", sid, "from", from, "to", to, "media", len(media))
	return &SendResult{
		MessageID: sid,
		Status:    "queued",
		Cost:      simulatedSMSCost,
	}, nil
}

// GetProfile fabricates a stable display name from the user ID.
func (s *Simulated) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return &Profile{
		ID:          userID,
		DisplayName: "Demo User " + short,
	}, nil
}

// Dial pretends to place a call and reports it queued.
func (s *Simulated) Dial(ctx context.Context, params DialParams) (*CallResult, error) {
	sid := s.nextID("CA", params.From, params.To)
	s.logger.Debug("simulated dial", "sid", sid, "from", params.From, "to", params.To)
	return &CallResult{CallID: sid, Status: "queued"}, nil
}

// Transfer accepts any transfer request.
func (s *Simulated) Transfer(ctx context.Context, callID, to string) error {
	s.logger.Debug("simulated transfer", "sid", callID, "to", to)
	return nil
}

// Recording has no audio source to draw from.
func (s *Simulated) Recording(ctx context.Context, callID string) ([]byte, error) {
	return nil, fmt.Errorf("simulated calls record no audio: %w", ErrNotSupported)
}

// Synthesize returns deterministic placeholder audio sized to the text.
func (s *Simulated) Synthesize(ctx context.Context, text, voice string) (*Synthesis, error) {
	if voice == "" {
		voice = defaultVoice
	}

	// ID3 header followed by a digest-derived payload, so the bytes are
	// stable for a given text and voice.
	sum := sha256.Sum256([]byte(voice + "|" + text))
	audio := append([]byte("ID3"), sum[:]...)

	return &Synthesis{
		Audio:    audio,
		Format:   "mp3",
		Duration: float64(len(text)) / speechCharsPerSecond,
	}, nil
}

// ListVoices returns a fixed set shaped like the live voice catalog.
func (s *Simulated) ListVoices(ctx context.Context) ([]Voice, error) {
	return []Voice{
		{ID: "Joanna", Name: "Joanna", Language: "en-US"},
		{ID: "Matthew", Name: "Matthew", Language: "en-US"},
		{ID: "Ivy", Name: "Ivy", Language: "en-US"},
		{ID: "Kendra", Name: "Kendra", Language: "en-US"},
		{ID: "Kimberly", Name: "Kimberly", Language: "en-US"},
		{ID: "Salli", Name: "Salli", Language: "en-US"},
		{ID: "Amy", Name: "Amy", Language: "en-GB"},
		{ID: "Brian", Name: "Brian", Language: "en-GB"},
	}, nil
}

// VerifyDomain returns deterministic DKIM records for the domain, always
// pending since nothing publishes DNS in demo mode.
func (s *Simulated) VerifyDomain(ctx context.Context, domain string) (*DomainVerification, error) {
	records := make([]DNSRecord, 0, 3)
	for i := 0; i < 3; i++ {
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", domain, i)))
		token := hex.EncodeToString(sum[:])[:32]
		records = append(records, DNSRecord{
			Type:  "CNAME",
			Name:  fmt.Sprintf("%s._domainkey.%s", token, domain),
			Value: fmt.Sprintf("%s.dkim.amazonses.com", token),
		})
	}

	return &DomainVerification{
		Domain:  domain,
		Status:  "pending",
		Records: records,
	}, nil
}
