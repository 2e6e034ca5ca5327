// ABOUTME: Live LINE backend pushing messages through the LINE Messaging API.
// ABOUTME: Implements Messenger and ProfileLookup with bearer-token auth.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const lineAPIBase = "https://api.line.me"

// LineConfig holds the channel credentials for the LINE backend.
type LineConfig struct {
	ChannelToken string
	BaseURL      string
	HTTPClient   *http.Client
}

// Line pushes messages to LINE users. The "to" address is a LINE user ID,
// not a phone number, so sender selection does not apply to this channel.
type Line struct {
	channelToken string
	baseURL      string
	client       *http.Client
	logger       *slog.Logger
}

// NewLine creates the live LINE backend.
func NewLine(cfg LineConfig, logger *slog.Logger) *Line {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = lineAPIBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Line{
		channelToken: cfg.ChannelToken,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       client,
		logger:       logger.With("component", "line"),
	}
}

type lineMessage struct {
	Type               string `json:"type"`
	Text               string `json:"text,omitempty"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`
}

// Send pushes a text message, plus one image message per media URL. LINE
// has no per-message pricing in the push response, so cost stays zero.
func (l *Line) Send(ctx context.Context, from, to, body string, media []string) (*SendResult, error) {
	messages := []lineMessage{{Type: "text", Text: body}}
	for _, m := range media {
		messages = append(messages, lineMessage{
			Type:               "image",
			OriginalContentURL: m,
			PreviewImageURL:    m,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"to":       to,
		"messages": messages,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v2/bot/message/push", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.channelToken)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling line: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading line response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp.StatusCode, respBody)
	}

	l.logger.Debug("pushed message", "to", to, "messages", len(messages))
	return &SendResult{MessageID: "line-" + to, Status: "sent"}, nil
}

// GetProfile looks up the display name of a LINE user.
func (l *Line) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/v2/bot/profile/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.channelToken)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling line: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading line response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp.StatusCode, respBody)
	}

	var profile struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(respBody, &profile); err != nil {
		return nil, fmt.Errorf("decoding line profile: %w", err)
	}

	return &Profile{ID: profile.UserID, DisplayName: profile.DisplayName}, nil
}
