// ABOUTME: Inbound webhook handlers for Twilio SMS, Twilio voice, and LINE
// ABOUTME: Replay-safe via dedupe; always answers 2xx so providers stop retrying

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/95percent-ai/butt-dial/internal/dedupe"
	"github.com/95percent-ai/butt-dial/internal/dispatch"
	"github.com/95percent-ai/butt-dial/internal/phone"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// inboundStatus marks records written from webhooks.
const inboundStatus = "received"

// respondTwiML answers a Twilio webhook with a TwiML document.
func respondTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, doc)
}

// routeInboundNumber finds the agent responsible for a number we own.
// A dedicated agent number wins; otherwise the number is a pool identity
// and the message goes to its tenant's first active capable agent.
func (g *Gateway) routeInboundNumber(ctx context.Context, number, channel string) (*store.Agent, error) {
	to := phone.Normalize(number)

	agent, err := g.store.GetAgentByPhone(ctx, to)
	if err == nil {
		if agent.Status != store.StatusActive {
			return nil, fmt.Errorf("agent %s for %s is %s", agent.ID, to, agent.Status)
		}
		return agent, nil
	}

	identity, err := g.store.GetSenderIdentityByPhone(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("number %s is not provisioned", to)
	}
	return g.firstCapableAgent(ctx, identity.TenantID, channel)
}

// firstCapableAgent picks the tenant's first active agent provisioned for
// the channel, in stable listing order.
func (g *Gateway) firstCapableAgent(ctx context.Context, tenantID, channel string) (*store.Agent, error) {
	agents, err := g.store.ListAgents(ctx, tenancy.Caller{TenantID: tenantID, Role: tenancy.RoleTenantAdmin})
	if err != nil {
		return nil, fmt.Errorf("listing agents for tenant %s: %w", tenantID, err)
	}
	for _, a := range agents {
		if a.Status == store.StatusActive && hasCapability(a, channel) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("tenant %s has no active agent for channel %s", tenantID, channel)
}

// deliverInbound stores the notification and pushes it when the agent has
// a live stream. Offline text messages additionally land in the waiting
// queue so polling clients can claim them.
func (g *Gateway) deliverInbound(ctx context.Context, n *store.NotificationRecord, waiting *store.WaitingMessage) {
	if conn, ok := g.presence.Get(n.AgentID); ok {
		if err := g.dispatcher.Notify(ctx, n, streamDeliverer{conn: conn}); err != nil {
			g.logger.Error("failed to deliver inbound event", "agent_id", n.AgentID, "error", err)
		}
		return
	}

	if err := g.dispatcher.Notify(ctx, n, nil); err != nil {
		g.logger.Error("failed to queue inbound event", "agent_id", n.AgentID, "error", err)
	}
	if waiting != nil {
		if err := g.store.EnqueueWaitingMessage(ctx, waiting); err != nil {
			g.logger.Error("failed to enqueue waiting message", "agent_id", n.AgentID, "error", err)
		}
	}
}

// handleTwilioSMS ingests an inbound text. Replays are acknowledged
// without effect; unroutable numbers are logged and acknowledged so the
// provider does not retry forever.
func (g *Gateway) handleTwilioSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	sid := r.FormValue("MessageSid")
	from := r.FormValue("From")
	to := r.FormValue("To")
	body := r.FormValue("Body")
	if sid == "" || to == "" {
		sendJSONError(w, http.StatusBadRequest, "MessageSid and To are required")
		return
	}

	if g.events.CheckAndMark(dedupe.Key(store.ChannelSMS, sid)) {
		g.logger.Debug("duplicate sms webhook", "sid", sid)
		respondTwiML(w, twimlEmpty())
		return
	}

	agent, err := g.routeInboundNumber(r.Context(), to, store.ChannelSMS)
	if err != nil {
		g.logger.Warn("unroutable inbound sms", "to", to, "error", err)
		respondTwiML(w, twimlEmpty())
		return
	}

	rec, err := g.recorder.Record(r.Context(), dispatchOutcomeInbound(agent, store.ChannelSMS, from, to, body, sid))
	if err != nil {
		g.logger.Error("failed to record inbound sms", "sid", sid, "error", err)
		respondTwiML(w, twimlEmpty())
		return
	}

	g.deliverInbound(r.Context(), &store.NotificationRecord{
		AgentID:       agent.ID,
		TenantID:      agent.TenantID,
		CorrelationID: rec.ID,
		Kind:          store.NotificationInboundMessage,
		Caller:        from,
		Transcript:    body,
	}, &store.WaitingMessage{
		ID:         rec.ID,
		AgentID:    agent.ID,
		TenantID:   agent.TenantID,
		Channel:    store.ChannelSMS,
		FromAddr:   from,
		Body:       body,
		ExternalID: sid,
		CreatedAt:  time.Now().UTC(),
	})

	respondTwiML(w, twimlEmpty())
}

// handleTwilioVoice serves three webhook shapes on one URL: recording
// callbacks become voicemail notifications, status callbacks for calls we
// placed are acknowledged, and fresh inbound calls get greeted and
// recorded while their agent is notified of the missed call.
func (g *Gateway) handleTwilioVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	callSid := r.FormValue("CallSid")
	from := r.FormValue("From")
	to := r.FormValue("To")

	if recordingURL := r.FormValue("RecordingUrl"); recordingURL != "" {
		g.handleVoicemail(r.Context(), callSid, from, to,
			r.FormValue("RecordingSid"), recordingURL, r.FormValue("TranscriptionText"))
		respondTwiML(w, twimlEmpty())
		return
	}

	// Status callbacks for calls the gateway placed carry an outbound
	// direction; nothing to do beyond acknowledging them.
	if dir := r.FormValue("Direction"); dir != "" && dir != "inbound" {
		respondTwiML(w, twimlEmpty())
		return
	}

	if callSid == "" || to == "" {
		sendJSONError(w, http.StatusBadRequest, "CallSid and To are required")
		return
	}
	if g.events.CheckAndMark(dedupe.Key(store.ChannelVoice, callSid)) {
		g.logger.Debug("duplicate voice webhook", "sid", callSid)
		respondTwiML(w, twimlEmpty())
		return
	}

	agent, err := g.routeInboundNumber(r.Context(), to, store.ChannelVoice)
	if err != nil {
		g.logger.Warn("unroutable inbound call", "to", to, "error", err)
		respondTwiML(w, twimlSay("", "This number is not in service. Goodbye."))
		return
	}

	if _, err := g.recorder.Record(r.Context(), dispatchOutcomeInbound(agent, store.ChannelVoice, from, to, "", callSid)); err != nil {
		g.logger.Error("failed to record inbound call", "sid", callSid, "error", err)
	}

	g.deliverInbound(r.Context(), &store.NotificationRecord{
		AgentID:       agent.ID,
		TenantID:      agent.TenantID,
		CorrelationID: callSid,
		Kind:          store.NotificationMissedCall,
		Caller:        from,
	}, nil)

	greeting := agent.Greeting
	if greeting == "" {
		greeting = defaultCallGreeting
	}
	respondTwiML(w, twimlGreetRecord("", greeting, g.statusCallbackURL()))
}

// handleVoicemail turns a recording callback into a voicemail
// notification for the agent that owns the called number.
func (g *Gateway) handleVoicemail(ctx context.Context, callSid, from, to, recordingSid, recordingURL, transcript string) {
	key := recordingSid
	if key == "" {
		key = callSid + ":recording"
	}
	if g.events.CheckAndMark(dedupe.Key(store.ChannelVoice, key)) {
		g.logger.Debug("duplicate recording webhook", "sid", key)
		return
	}

	agent, err := g.routeInboundNumber(ctx, to, store.ChannelVoice)
	if err != nil {
		g.logger.Warn("unroutable voicemail", "to", to, "error", err)
		return
	}

	g.deliverInbound(ctx, &store.NotificationRecord{
		AgentID:       agent.ID,
		TenantID:      agent.TenantID,
		CorrelationID: callSid,
		Kind:          store.NotificationVoicemail,
		Caller:        from,
		Transcript:    transcript,
		RecordingURL:  recordingURL,
	}, nil)
}

// lineWebhookBody is the envelope LINE posts to the webhook URL.
type lineWebhookBody struct {
	Events []lineEvent `json:"events"`
}

type lineEvent struct {
	Type    string `json:"type"`
	Message struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
	Source struct {
		UserID string `json:"userId"`
	} `json:"source"`
}

// handleLineWebhook ingests LINE message events. One bot account serves
// one install, so events route to the first active LINE-capable agent.
// Each event is processed independently; one bad event never blocks the
// rest of the batch.
func (g *Gateway) handleLineWebhook(w http.ResponseWriter, r *http.Request) {
	var body lineWebhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	for _, evt := range body.Events {
		if evt.Type != "message" || evt.Message.Type != "text" {
			continue
		}
		if evt.Message.ID == "" || evt.Source.UserID == "" {
			g.logger.Warn("line event missing message id or source")
			continue
		}
		if g.events.CheckAndMark(dedupe.Key(store.ChannelLine, evt.Message.ID)) {
			g.logger.Debug("duplicate line event", "message_id", evt.Message.ID)
			continue
		}
		g.ingestLineMessage(r.Context(), evt)
	}

	g.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestLineMessage records one LINE text and delivers it to its agent.
func (g *Gateway) ingestLineMessage(ctx context.Context, evt lineEvent) {
	agent, err := g.firstLineAgent(ctx)
	if err != nil {
		g.logger.Warn("unroutable line message", "message_id", evt.Message.ID, "error", err)
		return
	}

	rec, err := g.recorder.Record(ctx, dispatchOutcomeInbound(
		agent, store.ChannelLine, evt.Source.UserID, "", evt.Message.Text, evt.Message.ID))
	if err != nil {
		g.logger.Error("failed to record inbound line message", "message_id", evt.Message.ID, "error", err)
		return
	}

	g.deliverInbound(ctx, &store.NotificationRecord{
		AgentID:       agent.ID,
		TenantID:      agent.TenantID,
		CorrelationID: rec.ID,
		Kind:          store.NotificationInboundMessage,
		Caller:        evt.Source.UserID,
		Transcript:    evt.Message.Text,
	}, &store.WaitingMessage{
		ID:         rec.ID,
		AgentID:    agent.ID,
		TenantID:   agent.TenantID,
		Channel:    store.ChannelLine,
		FromAddr:   evt.Source.UserID,
		Body:       evt.Message.Text,
		ExternalID: evt.Message.ID,
		CreatedAt:  time.Now().UTC(),
	})
}

// firstLineAgent finds the install's LINE agent across all tenants.
func (g *Gateway) firstLineAgent(ctx context.Context) (*store.Agent, error) {
	agents, err := g.store.ListAgents(ctx, tenancy.Caller{Role: tenancy.RoleSuperAdmin})
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	for _, a := range agents {
		if a.Status == store.StatusActive && hasCapability(a, store.ChannelLine) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("no active agent is provisioned for line")
}

// dispatchOutcomeInbound builds the append-only record for an inbound
// item. Inbound traffic is free, so no usage action is attached.
func dispatchOutcomeInbound(agent *store.Agent, channel, from, to, body, externalID string) dispatch.Outcome {
	return dispatch.Outcome{
		AgentID:    agent.ID,
		TenantID:   agent.TenantID,
		Channel:    channel,
		Direction:  store.DirectionInbound,
		From:       from,
		To:         to,
		Body:       body,
		ExternalID: externalID,
		Status:     inboundStatus,
	}
}
