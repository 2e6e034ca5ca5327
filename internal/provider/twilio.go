// ABOUTME: Live Twilio backend for SMS/WhatsApp messaging and voice calls.
// ABOUTME: Form-encoded REST calls with basic auth against the Twilio API.

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioConfig holds the credentials and endpoint for the Twilio backend.
// BaseURL is overridable for tests and defaults to the public API.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	HTTPClient *http.Client
}

// Twilio sends SMS and places voice calls through the Twilio REST API. It
// implements Messenger and Caller.
type Twilio struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

// NewTwilio creates the live Twilio backend.
func NewTwilio(cfg TwilioConfig, logger *slog.Logger) *Twilio {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twilioAPIBase
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Twilio{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		client:     client,
		logger:     logger.With("component", "twilio"),
	}
}

// twilioMessage is the subset of Twilio's message resource we read.
type twilioMessage struct {
	SID    string  `json:"sid"`
	Status string  `json:"status"`
	Price  *string `json:"price"`
}

// twilioCall is the subset of Twilio's call resource we read.
type twilioCall struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Send delivers one SMS (or MMS, when media URLs are given).
func (t *Twilio) Send(ctx context.Context, from, to, body string, media []string) (*SendResult, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)
	for _, m := range media {
		form.Add("MediaUrl", m)
	}

	var msg twilioMessage
	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", t.accountSID)
	if err := t.postForm(ctx, path, form, &msg); err != nil {
		return nil, err
	}

	t.logger.Debug("sent message", "sid", msg.SID, "status", msg.Status)
	return &SendResult{
		MessageID: msg.SID,
		Status:    msg.Status,
		Cost:      parseTwilioPrice(msg.Price),
	}, nil
}

// WhatsApp returns a Messenger view of this backend that routes sends over
// the WhatsApp transport by address prefix.
func (t *Twilio) WhatsApp() Messenger {
	return &whatsappMessenger{twilio: t}
}

// whatsappMessenger prefixes addresses per Twilio's WhatsApp convention.
type whatsappMessenger struct {
	twilio *Twilio
}

func (w *whatsappMessenger) Send(ctx context.Context, from, to, body string, media []string) (*SendResult, error) {
	return w.twilio.Send(ctx, whatsappAddr(from), whatsappAddr(to), body, media)
}

func whatsappAddr(addr string) string {
	if strings.HasPrefix(addr, "whatsapp:") {
		return addr
	}
	return "whatsapp:" + addr
}

// Dial places an outbound call.
func (t *Twilio) Dial(ctx context.Context, params DialParams) (*CallResult, error) {
	form := url.Values{}
	form.Set("From", params.From)
	form.Set("To", params.To)
	form.Set("Twiml", params.TwiML)
	if params.StatusCallback != "" {
		form.Set("StatusCallback", params.StatusCallback)
	}

	var call twilioCall
	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json", t.accountSID)
	if err := t.postForm(ctx, path, form, &call); err != nil {
		return nil, err
	}

	t.logger.Debug("placed call", "sid", call.SID, "status", call.Status)
	return &CallResult{CallID: call.SID, Status: call.Status}, nil
}

// Transfer redirects an in-progress call to a new destination by updating
// it with dial instructions.
func (t *Twilio) Transfer(ctx context.Context, callID, to string) error {
	form := url.Values{}
	form.Set("Twiml", fmt.Sprintf("<Response><Dial>%s</Dial></Response>", to))

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Calls/%s.json", t.accountSID, callID)
	if err := t.postForm(ctx, path, form, &twilioCall{}); err != nil {
		return err
	}

	t.logger.Debug("transferred call", "sid", callID, "to", to)
	return nil
}

// Recording fetches the audio of the first recording attached to a call.
// Returns ErrNotSupported when the call produced no recording.
func (t *Twilio) Recording(ctx context.Context, callID string) ([]byte, error) {
	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Recordings.json?CallSid=%s", t.accountSID, url.QueryEscape(callID))

	var list struct {
		Recordings []struct {
			SID string `json:"sid"`
		} `json:"recordings"`
	}
	if err := t.get(ctx, path, &list); err != nil {
		return nil, err
	}
	if len(list.Recordings) == 0 {
		return nil, fmt.Errorf("call %s has no recording: %w", callID, ErrNotSupported)
	}

	audioPath := fmt.Sprintf("/2010-04-01/Accounts/%s/Recordings/%s.wav", t.accountSID, list.Recordings[0].SID)
	return t.getRaw(ctx, audioPath)
}

// postForm issues an authenticated form POST and decodes the JSON response.
func (t *Twilio) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	return t.do(req, out)
}

// get issues an authenticated GET and decodes the JSON response.
func (t *Twilio) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	return t.do(req, out)
}

// getRaw issues an authenticated GET and returns the raw body bytes.
func (t *Twilio) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling twilio: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading twilio response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(resp.StatusCode, body)
	}
	return body, nil
}

// do executes the request and maps non-2xx responses to *Error.
func (t *Twilio) do(req *http.Request, out any) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling twilio: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading twilio response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding twilio response: %w", err)
	}
	return nil
}

// parseTwilioPrice converts Twilio's signed price string to a positive cost.
// The price is absent until the message is rated.
func parseTwilioPrice(price *string) float64 {
	if price == nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(*price, "-"), 64)
	if err != nil {
		return 0
	}
	return v
}
