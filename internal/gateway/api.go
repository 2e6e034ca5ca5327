// ABOUTME: Agent-facing HTTP handlers for the /api/v1 surface
// ABOUTME: Message sends, calls, speech, usage reporting, and channel status

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/95percent-ai/butt-dial/internal/admin"
	"github.com/95percent-ai/butt-dial/internal/auth"
	"github.com/95percent-ai/butt-dial/internal/dispatch"
	"github.com/95percent-ai/butt-dial/internal/numberpool"
	"github.com/95percent-ai/butt-dial/internal/phone"
	"github.com/95percent-ai/butt-dial/internal/provider"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
	"github.com/95percent-ai/butt-dial/internal/throttle"
)

// simulatedEmailFrom is the sender for demo-mode email when no verified
// address is configured.
const simulatedEmailFrom = "no-reply@demo.invalid"

// defaultCallGreeting is spoken when neither the request nor the agent
// carries one.
const defaultCallGreeting = "Hello. This is an automated call. Please leave a message after the tone."

// listMessagesDefaultLimit bounds GET /messages when the client names none.
const (
	listMessagesDefaultLimit = 50
	listMessagesMaxLimit     = 500
)

// respondJSON writes v as the JSON response body.
func (g *Gateway) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes the error envelope every non-2xx response uses.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeError maps component errors onto HTTP statuses. Anything unmapped
// is a 500 with the detail kept server-side.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	var provErr *provider.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, admin.ErrInvalidArgument):
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, admin.ErrForbidden), errors.Is(err, tenancy.ErrTenantMismatch):
		sendJSONError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrDuplicateTenant), errors.Is(err, store.ErrDuplicateIdentity):
		sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrNotSupported):
		sendJSONError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, provider.ErrNotConfigured):
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, numberpool.ErrNoSender):
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &provErr):
		g.logger.Error("provider call failed", "status", provErr.Status, "error", provErr.Message)
		sendJSONError(w, http.StatusBadGateway, "upstream provider error")
	default:
		g.logger.Error("request failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeUpstreamLookupError is writeError with one extra mapping: an
// upstream 404 means the named resource does not exist, which the client
// should see as a 404 rather than a gateway fault.
func (g *Gateway) writeUpstreamLookupError(w http.ResponseWriter, err error, what string) {
	var provErr *provider.Error
	if errors.As(err, &provErr) && provErr.Status == http.StatusNotFound {
		sendJSONError(w, http.StatusNotFound, what+" not found")
		return
	}
	g.writeError(w, err)
}

// requireAgent loads the calling agent's row, rejecting admin bearers.
// Admin credentials manage the fleet; they do not send as anyone.
func (g *Gateway) requireAgent(w http.ResponseWriter, r *http.Request) (*store.Agent, bool) {
	ac := auth.MustFromContext(r.Context())
	if ac.Role != tenancy.RoleAgent {
		sendJSONError(w, http.StatusForbidden, "agent credentials required")
		return nil, false
	}
	agent, err := g.store.GetAgent(r.Context(), ac.AgentID)
	if err != nil {
		g.writeError(w, fmt.Errorf("loading agent %s: %w", ac.AgentID, err))
		return nil, false
	}
	return agent, true
}

// hasCapability reports whether the agent is provisioned for a channel.
func hasCapability(agent *store.Agent, channel string) bool {
	for _, c := range agent.Capabilities {
		if c == channel {
			return true
		}
	}
	return false
}

// checkThrottles runs the minute window, then the hour window. An hour
// rejection after a minute admission leaves the minute counter one
// heavier than it should be; the distortion is bounded by the window
// length and beats holding a lock across both limiters.
func (g *Gateway) checkThrottles(w http.ResponseWriter, agentID string) bool {
	if d := g.perMinute.Allow(agentID); !d.Allowed {
		writeThrottled(w, "minute", d)
		return false
	}
	if d := g.perHour.Allow(agentID); !d.Allowed {
		writeThrottled(w, "hour", d)
		return false
	}
	return true
}

// writeThrottled responds 429 with a Retry-After hint rounded up to whole
// seconds so a zero header can never invite an immediate retry.
func writeThrottled(w http.ResponseWriter, window string, d throttle.Decision) {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	sendJSONError(w, http.StatusTooManyRequests,
		fmt.Sprintf("%s rate limit of %d per %s reached, retry in %ds", d.Scope, d.Limit, window, secs))
}

// messageJSON is the wire shape of a message record.
type messageJSON struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	Channel    string    `json:"channel"`
	Direction  string    `json:"direction"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	ExternalID string    `json:"external_id"`
	Status     string    `json:"status"`
	Cost       float64   `json:"cost"`
	CreatedAt  time.Time `json:"created_at"`
}

func toMessageJSON(m *store.MessageRecord) messageJSON {
	return messageJSON{
		ID:         m.ID,
		AgentID:    m.AgentID,
		Channel:    m.Channel,
		Direction:  m.Direction,
		From:       m.FromAddr,
		To:         m.ToAddr,
		Body:       m.Body,
		ExternalID: m.ExternalID,
		Status:     m.Status,
		Cost:       m.Cost,
		CreatedAt:  m.CreatedAt,
	}
}

type sendMessageRequest struct {
	Channel string   `json:"channel"`
	To      string   `json:"to"`
	Body    string   `json:"body"`
	Media   []string `json:"media"`
}

// messageChannels are the channels POST /messages accepts. Voice is
// excluded; calls have their own endpoints.
var messageChannels = map[string]bool{
	store.ChannelSMS:      true,
	store.ChannelWhatsApp: true,
	store.ChannelEmail:    true,
	store.ChannelLine:     true,
	store.ChannelMatrix:   true,
}

// inferChannel picks a channel from the destination shape when the
// request names none: addresses with an @ go to email, the rest to sms.
func inferChannel(to string) string {
	if strings.Contains(to, "@") {
		return store.ChannelEmail
	}
	return store.ChannelSMS
}

// handleSendMessage dispatches one outbound message. The pipeline is
// capability check, throttle, destination validation, sender resolution,
// provider send, then the append-only record. A provider failure records
// nothing; only finished dispatches reach the ledger.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Body == "" {
		sendJSONError(w, http.StatusBadRequest, "to and body are required")
		return
	}

	channel := req.Channel
	if channel == "" {
		channel = inferChannel(req.To)
	}
	if !messageChannels[channel] {
		sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown channel %q", channel))
		return
	}
	if !hasCapability(agent, channel) {
		sendJSONError(w, http.StatusForbidden, fmt.Sprintf("agent is not provisioned for channel %q", channel))
		return
	}
	if !g.checkThrottles(w, agent.ID) {
		return
	}

	to := req.To
	switch channel {
	case store.ChannelSMS, store.ChannelWhatsApp:
		to = phone.Normalize(to)
		if !phone.IsE164(to) {
			sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("destination %q is not a valid E.164 number", req.To))
			return
		}
	case store.ChannelEmail:
		if !strings.Contains(to, "@") {
			sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("destination %q is not an email address", req.To))
			return
		}
	}

	from, err := g.resolveFrom(r, agent, channel, to)
	if err != nil {
		g.writeError(w, err)
		return
	}

	messenger, err := g.providers.Messenger(channel)
	if err != nil {
		g.writeError(w, fmt.Errorf("channel %s: %w", channel, err))
		return
	}
	res, err := messenger.Send(r.Context(), from, to, req.Body, req.Media)
	if err != nil {
		g.writeError(w, err)
		return
	}

	rec, err := g.recorder.Record(r.Context(), dispatch.Outcome{
		AgentID:    agent.ID,
		TenantID:   agent.TenantID,
		Channel:    channel,
		Direction:  store.DirectionOutbound,
		From:       from,
		To:         to,
		Body:       req.Body,
		ExternalID: res.MessageID,
		Status:     res.Status,
		Cost:       res.Cost,
		Action:     "send_message",
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.respondJSON(w, http.StatusOK, toMessageJSON(rec))
}

// resolveFrom picks the sender address for an outbound dispatch. Phone
// channels go through the pool selector; email uses the configured
// verified address; the chat channels send as the bot and need none.
func (g *Gateway) resolveFrom(r *http.Request, agent *store.Agent, channel, to string) (string, error) {
	switch channel {
	case store.ChannelSMS, store.ChannelWhatsApp, store.ChannelVoice:
		return g.selector.ResolveFrom(r.Context(), agent.TenantID, agent.PhoneNumber, to, channel)
	case store.ChannelEmail:
		if from := g.config.Providers.AWS.EmailFrom; from != "" {
			return from, nil
		}
		if g.providers.Variant() == provider.VariantSimulated {
			return simulatedEmailFrom, nil
		}
		return "", fmt.Errorf("%w: no verified sender address configured for email", provider.ErrNotConfigured)
	default:
		return "", nil
	}
}

// handleListMessages returns the caller's dispatch records, newest first.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ac := auth.MustFromContext(r.Context())

	filter := store.MessageFilter{
		Channel:   r.URL.Query().Get("channel"),
		Direction: r.URL.Query().Get("direction"),
		Limit:     listMessagesDefaultLimit,
	}
	if ac.Role == tenancy.RoleAgent {
		filter.AgentID = ac.AgentID
	} else if id := r.URL.Query().Get("agent_id"); id != "" {
		filter.AgentID = id
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, listMessagesMaxLimit)
	}

	records, err := g.store.ListMessages(r.Context(), ac.Caller(), filter)
	if err != nil {
		g.writeError(w, err)
		return
	}

	out := make([]messageJSON, 0, len(records))
	for _, m := range records {
		out = append(out, toMessageJSON(m))
	}
	g.respondJSON(w, http.StatusOK, out)
}

// callJSON is the wire shape of a placed call.
type callJSON struct {
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Status string `json:"status"`
}

// statusCallbackURL returns the voice status webhook address, or empty
// when no public URL is configured.
func (g *Gateway) statusCallbackURL() string {
	base := g.config.Server.PublicURL
	if base == "" {
		return ""
	}
	return strings.TrimSuffix(base, "/") + "/webhooks/twilio/voice"
}

// placeCall validates the destination, resolves the sender number, dials
// with the given TwiML, and records the outcome under action.
func (g *Gateway) placeCall(w http.ResponseWriter, r *http.Request, agent *store.Agent, rawTo, twiml, body, action string) {
	to := phone.Normalize(rawTo)
	if !phone.IsE164(to) {
		sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("destination %q is not a valid E.164 number", rawTo))
		return
	}

	from, err := g.selector.ResolveFrom(r.Context(), agent.TenantID, agent.PhoneNumber, to, store.ChannelVoice)
	if err != nil {
		g.writeError(w, err)
		return
	}

	caller, err := g.providers.Caller()
	if err != nil {
		g.writeError(w, err)
		return
	}
	res, err := caller.Dial(r.Context(), provider.DialParams{
		From:           from,
		To:             to,
		TwiML:          twiml,
		StatusCallback: g.statusCallbackURL(),
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	if _, err := g.recorder.Record(r.Context(), dispatch.Outcome{
		AgentID:    agent.ID,
		TenantID:   agent.TenantID,
		Channel:    store.ChannelVoice,
		Direction:  store.DirectionOutbound,
		From:       from,
		To:         to,
		Body:       body,
		ExternalID: res.CallID,
		Status:     res.Status,
		Action:     action,
	}); err != nil {
		g.writeError(w, err)
		return
	}

	g.respondJSON(w, http.StatusOK, callJSON{
		CallID: res.CallID,
		From:   from,
		To:     to,
		Status: res.Status,
	})
}

// requireVoiceAgent is requireAgent plus the voice capability and
// throttle checks shared by every call endpoint.
func (g *Gateway) requireVoiceAgent(w http.ResponseWriter, r *http.Request) (*store.Agent, bool) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return nil, false
	}
	if !hasCapability(agent, store.ChannelVoice) {
		sendJSONError(w, http.StatusForbidden, "agent is not provisioned for voice")
		return nil, false
	}
	if !g.checkThrottles(w, agent.ID) {
		return nil, false
	}
	return agent, true
}

type callRequest struct {
	To       string `json:"to"`
	Greeting string `json:"greeting"`
	Voice    string `json:"voice"`
}

// handleMakeCall places an outbound call that speaks a greeting and
// records the callee's reply.
func (g *Gateway) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireVoiceAgent(w, r)
	if !ok {
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" {
		sendJSONError(w, http.StatusBadRequest, "to is required")
		return
	}

	greeting := req.Greeting
	if greeting == "" {
		greeting = agent.Greeting
	}
	if greeting == "" {
		greeting = defaultCallGreeting
	}

	g.placeCall(w, r, agent, req.To, twimlGreetRecord(req.Voice, greeting, g.statusCallbackURL()), greeting, "voice_call")
}

type callOnBehalfRequest struct {
	To            string `json:"to"`
	Requester     string `json:"requester"`
	RequesterName string `json:"requester_name"`
}

// handleCallOnBehalf dials the target, announces who asked for the call,
// and bridges the line to the requester's number.
func (g *Gateway) handleCallOnBehalf(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireVoiceAgent(w, r)
	if !ok {
		return
	}

	var req callOnBehalfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Requester == "" {
		sendJSONError(w, http.StatusBadRequest, "to and requester are required")
		return
	}
	requester := phone.Normalize(req.Requester)
	if !phone.IsE164(requester) {
		sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("requester %q is not a valid E.164 number", req.Requester))
		return
	}

	name := req.RequesterName
	if name == "" {
		name = agent.DisplayName
	}
	announce := fmt.Sprintf("This call is placed on behalf of %s. Connecting you now.", name)

	g.placeCall(w, r, agent, req.To, twimlAnnounceBridge("", announce, requester), announce, "voice_call")
}

type voiceMessageRequest struct {
	To    string `json:"to"`
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// handleVoiceMessage places a call that speaks the given text and hangs
// up. Delivery to voicemail counts; the message is one-way.
func (g *Gateway) handleVoiceMessage(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireVoiceAgent(w, r)
	if !ok {
		return
	}

	var req voiceMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Text == "" {
		sendJSONError(w, http.StatusBadRequest, "to and text are required")
		return
	}

	g.placeCall(w, r, agent, req.To, twimlSay(req.Voice, req.Text), req.Text, "voice_message")
}

type transferRequest struct {
	To string `json:"to"`
}

// handleTransferCall redirects an in-progress call to another number.
func (g *Gateway) handleTransferCall(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}
	if !hasCapability(agent, store.ChannelVoice) {
		sendJSONError(w, http.StatusForbidden, "agent is not provisioned for voice")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	to := phone.Normalize(req.To)
	if !phone.IsE164(to) {
		sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("destination %q is not a valid E.164 number", req.To))
		return
	}

	caller, err := g.providers.Caller()
	if err != nil {
		g.writeError(w, err)
		return
	}
	if err := caller.Transfer(r.Context(), r.PathValue("id"), to); err != nil {
		g.writeUpstreamLookupError(w, err, "call")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCallRecording streams the recorded audio for a finished call.
func (g *Gateway) handleCallRecording(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}
	if !hasCapability(agent, store.ChannelVoice) {
		sendJSONError(w, http.StatusForbidden, "agent is not provisioned for voice")
		return
	}

	caller, err := g.providers.Caller()
	if err != nil {
		g.writeError(w, err)
		return
	}
	audio, err := caller.Recording(r.Context(), r.PathValue("id"))
	if err != nil {
		g.writeUpstreamLookupError(w, err, "recording")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		g.logger.Error("failed to stream recording", "error", err)
	}
}

// waitingMessageJSON is the wire shape of a held inbound message.
type waitingMessageJSON struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// handleWaitingMessages drains the caller's held inbound messages. Each
// message is returned exactly once; a second call returns only what
// arrived since.
func (g *Gateway) handleWaitingMessages(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}

	claimed, err := g.store.ClaimWaitingMessages(r.Context(), agent.ID)
	if err != nil {
		g.writeError(w, err)
		return
	}

	out := make([]waitingMessageJSON, 0, len(claimed))
	for _, m := range claimed {
		out = append(out, waitingMessageJSON{
			ID:         m.ID,
			Channel:    m.Channel,
			From:       m.FromAddr,
			Body:       m.Body,
			ExternalID: m.ExternalID,
			CreatedAt:  m.CreatedAt,
		})
	}
	g.respondJSON(w, http.StatusOK, out)
}

// channelStatusJSON is one row of the channel status report.
type channelStatusJSON struct {
	Channel string `json:"channel"`
	// Provisioned means this agent may use the channel.
	Provisioned bool `json:"provisioned"`
	// Configured means a backend is registered for the channel.
	Configured bool `json:"configured"`
}

// handleChannelStatus reports, per channel, whether the calling agent is
// provisioned for it and whether a backend is configured.
func (g *Gateway) handleChannelStatus(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}

	configured := make(map[string]bool)
	for _, ch := range g.providers.Channels() {
		configured[ch] = true
	}
	if _, err := g.providers.Caller(); err == nil {
		configured[store.ChannelVoice] = true
	}

	known := []string{
		store.ChannelSMS,
		store.ChannelWhatsApp,
		store.ChannelVoice,
		store.ChannelEmail,
		store.ChannelLine,
		store.ChannelMatrix,
	}
	channels := make([]channelStatusJSON, 0, len(known))
	for _, ch := range known {
		channels = append(channels, channelStatusJSON{
			Channel:     ch,
			Provisioned: hasCapability(agent, ch),
			Configured:  configured[ch],
		})
	}

	g.respondJSON(w, http.StatusOK, map[string]any{
		"variant":  g.providers.Variant(),
		"channels": channels,
	})
}

// periodDuration maps a report period name to its length.
func periodDuration(period string) (time.Duration, bool) {
	switch period {
	case "day":
		return 24 * time.Hour, true
	case "week":
		return 7 * 24 * time.Hour, true
	case "month":
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// usageFilterFromQuery builds the usage filter from since, until, and
// period query parameters. Explicit timestamps win over a period.
func usageFilterFromQuery(q map[string][]string) (store.UsageFilter, error) {
	var filter store.UsageFilter

	get := func(key string) string {
		if vs := q[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	if raw := get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("since must be RFC 3339: %w", err)
		}
		filter.Since = &t
	}
	if raw := get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("until must be RFC 3339: %w", err)
		}
		filter.Until = &t
	}
	if raw := get("period"); raw != "" && filter.Since == nil {
		d, ok := periodDuration(raw)
		if !ok {
			return filter, fmt.Errorf("period must be day, week, or month, got %q", raw)
		}
		since := time.Now().UTC().Add(-d)
		filter.Since = &since
	}

	return filter, nil
}

// handleUsage aggregates the caller's usage events. Agents see their own
// usage; admin bearers see their tenant's (or everything, for the
// super-admin).
func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	ac := auth.MustFromContext(r.Context())

	filter, err := usageFilterFromQuery(r.URL.Query())
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ac.Role == tenancy.RoleAgent {
		filter.AgentID = ac.AgentID
	} else if id := r.URL.Query().Get("agent_id"); id != "" {
		filter.AgentID = id
	}

	summary, err := g.store.GetUsageSummary(r.Context(), ac.Caller(), filter)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.respondJSON(w, http.StatusOK, map[string]any{
		"total_actions": summary.TotalActions,
		"total_cost":    summary.TotalCost,
		"by_action":     summary.ByAction,
		"by_channel":    summary.ByChannel,
	})
}

// handleBilling reports the calling agent's spend for a period alongside
// its billing tier.
func (g *Gateway) handleBilling(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "month"
	}
	d, valid := periodDuration(period)
	if !valid {
		sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("period must be day, week, or month, got %q", period))
		return
	}

	since := time.Now().UTC().Add(-d)
	ac := auth.MustFromContext(r.Context())
	summary, err := g.store.GetUsageSummary(r.Context(), ac.Caller(), store.UsageFilter{
		AgentID: agent.ID,
		Since:   &since,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.respondJSON(w, http.StatusOK, map[string]any{
		"period":        period,
		"tier":          agent.Tier,
		"total_cost":    summary.TotalCost,
		"total_actions": summary.TotalActions,
		"by_channel":    summary.ByChannel,
	})
}

// handleLimits reports the caller's throttle limits and what remains of
// them in the current windows.
func (g *Gateway) handleLimits(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}

	g.respondJSON(w, http.StatusOK, map[string]int{
		"per_minute":       g.perMinute.KeyLimit(agent.ID),
		"per_hour":         g.perHour.KeyLimit(agent.ID),
		"remaining_minute": g.perMinute.Remaining(agent.ID),
		"remaining_hour":   g.perHour.Remaining(agent.ID),
	})
}

// handleListVoices lists the synthesizer's voice catalog.
func (g *Gateway) handleListVoices(w http.ResponseWriter, r *http.Request) {
	synth, err := g.providers.Synthesizer()
	if err != nil {
		g.writeError(w, err)
		return
	}
	voices, err := synth.ListVoices(r.Context())
	if err != nil {
		g.writeError(w, err)
		return
	}

	out := make([]map[string]string, 0, len(voices))
	for _, v := range voices {
		out = append(out, map[string]string{
			"id":       v.ID,
			"name":     v.Name,
			"language": v.Language,
		})
	}
	g.respondJSON(w, http.StatusOK, out)
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// handleSynthesize renders text to speech and returns the audio.
func (g *Gateway) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	agent, ok := g.requireAgent(w, r)
	if !ok {
		return
	}

	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		sendJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	synth, err := g.providers.Synthesizer()
	if err != nil {
		g.writeError(w, err)
		return
	}
	res, err := synth.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		g.writeError(w, err)
		return
	}

	if err := g.recorder.RecordAction(r.Context(), agent.ID, agent.TenantID, "synthesize_speech", store.ChannelVoice, 0); err != nil {
		g.logger.Error("failed to record synthesis usage", "agent_id", agent.ID, "error", err)
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		g.logger.Error("failed to stream audio", "error", err)
	}
}

type verifyDomainRequest struct {
	Domain string `json:"domain"`
}

// handleVerifyDomain starts or reports email domain verification.
func (g *Gateway) handleVerifyDomain(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.requireAgent(w, r); !ok {
		return
	}

	var req verifyDomainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Domain == "" {
		sendJSONError(w, http.StatusBadRequest, "domain is required")
		return
	}

	verifier, err := g.providers.Verifier()
	if err != nil {
		g.writeError(w, err)
		return
	}
	res, err := verifier.VerifyDomain(r.Context(), req.Domain)
	if err != nil {
		g.writeError(w, err)
		return
	}

	records := make([]map[string]string, 0, len(res.Records))
	for _, rec := range res.Records {
		records = append(records, map[string]string{
			"type":  rec.Type,
			"name":  rec.Name,
			"value": rec.Value,
		})
	}
	g.respondJSON(w, http.StatusOK, map[string]any{
		"domain":  res.Domain,
		"status":  res.Status,
		"records": records,
	})
}

// handleProfile looks up a recipient profile on channels that expose one.
func (g *Gateway) handleProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.requireAgent(w, r); !ok {
		return
	}

	channel := r.PathValue("channel")
	lookup, err := g.providers.Profiles(channel)
	if err != nil {
		g.writeError(w, fmt.Errorf("channel %s: %w", channel, err))
		return
	}
	p, err := lookup.GetProfile(r.Context(), r.PathValue("user_id"))
	if err != nil {
		g.writeUpstreamLookupError(w, err, "profile")
		return
	}

	g.respondJSON(w, http.StatusOK, map[string]string{
		"id":           p.ID,
		"display_name": p.DisplayName,
	})
}
