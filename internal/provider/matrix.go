// ABOUTME: Live Matrix backend delivering messages to rooms over a homeserver.
// ABOUTME: Thin Messenger wrapper around the mautrix client.

package provider

import (
	"context"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

// MatrixConfig holds the homeserver credentials for the Matrix backend.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// Matrix posts messages into Matrix rooms. The "to" address is a room ID,
// so sender selection does not apply to this channel.
type Matrix struct {
	client *mautrix.Client
	logger *slog.Logger
}

// NewMatrix creates the live Matrix backend and validates the homeserver URL.
func NewMatrix(cfg MatrixConfig, logger *slog.Logger) (*Matrix, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &Matrix{
		client: client,
		logger: logger.With("component", "matrix"),
	}, nil
}

// Send posts a text message to a room. Media URLs are appended as plain
// links; real upload would need the room's content repository.
func (m *Matrix) Send(ctx context.Context, from, to, body string, media []string) (*SendResult, error) {
	text := body
	for _, link := range media {
		text += "\n" + link
	}

	resp, err := m.client.SendText(ctx, id.RoomID(to), text)
	if err != nil {
		return nil, fmt.Errorf("sending to room %s: %w", to, err)
	}

	m.logger.Debug("sent matrix message", "room", to, "event_id", resp.EventID.String())
	return &SendResult{
		MessageID: resp.EventID.String(),
		Status:    "sent",
	}, nil
}
