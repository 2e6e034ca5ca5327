// ABOUTME: Admin HTTP handlers for tenants, agents, tokens, and identities
// ABOUTME: Limit changes apply to the live limiters, not just the store

package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/95percent-ai/butt-dial/internal/admin"
	"github.com/95percent-ai/butt-dial/internal/auth"
	"github.com/95percent-ai/butt-dial/internal/store"
)

// tenantJSON is the wire shape of a tenant.
type tenantJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func toTenantJSON(t *store.Tenant) tenantJSON {
	return tenantJSON{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// agentJSON is the wire shape of an agent for admin views.
type agentJSON struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	DisplayName  string    `json:"display_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Status       string    `json:"status"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Greeting     string    `json:"greeting,omitempty"`
	Capabilities []string  `json:"capabilities"`
	Tier         string    `json:"tier"`
	MaxPerMinute int       `json:"max_per_minute,omitempty"`
	MaxPerHour   int       `json:"max_per_hour,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toAgentJSON(a *store.Agent) agentJSON {
	return agentJSON{
		ID:           a.ID,
		TenantID:     a.TenantID,
		DisplayName:  a.DisplayName,
		PhoneNumber:  a.PhoneNumber,
		Status:       a.Status,
		SystemPrompt: a.SystemPrompt,
		Greeting:     a.Greeting,
		Capabilities: a.Capabilities,
		Tier:         a.Tier,
		MaxPerMinute: a.MaxPerMinute,
		MaxPerHour:   a.MaxPerHour,
		CreatedAt:    a.CreatedAt,
	}
}

// identityJSON is the wire shape of a pool number.
type identityJSON struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	PhoneNumber  string    `json:"phone_number"`
	CountryCode  string    `json:"country_code"`
	Capabilities []string  `json:"capabilities"`
	IsDefault    bool      `json:"is_default"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func toIdentityJSON(i *store.SenderIdentity) identityJSON {
	return identityJSON{
		ID:           i.ID,
		TenantID:     i.TenantID,
		PhoneNumber:  i.PhoneNumber,
		CountryCode:  i.CountryCode,
		Capabilities: i.Capabilities,
		IsDefault:    i.IsDefault,
		Status:       i.Status,
		CreatedAt:    i.CreatedAt,
	}
}

// tokenJSON is token metadata. The hash never leaves the store and the
// plaintext appears only in mint responses.
type tokenJSON struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	Label      string     `json:"label,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func toTokenJSON(t *store.Token) tokenJSON {
	return tokenJSON{
		ID:         t.ID,
		AgentID:    t.AgentID,
		Label:      t.Label,
		Status:     t.Status,
		CreatedAt:  t.CreatedAt,
		LastUsedAt: t.LastUsedAt,
	}
}

// applyAgentLimits loads an agent's stored overrides into both live
// limiters. Zero values clear the override, restoring the config default.
func (g *Gateway) applyAgentLimits(agentID string, perMinute, perHour int) {
	g.perMinute.SetKeyLimit(agentID, perMinute)
	g.perHour.SetKeyLimit(agentID, perHour)
}

// closeAgentStream tears down the agent's live event stream, if any.
func (g *Gateway) closeAgentStream(agentID string) {
	if conn, ok := g.presence.Get(agentID); ok {
		g.presence.Unregister(agentID, conn)
	}
}

type createTenantRequest struct {
	Name string `json:"name"`
}

// handleCreateTenant registers a new isolation boundary. Super-admin only.
func (g *Gateway) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller := auth.MustFromContext(r.Context()).Caller()
	tenant, err := g.admin.CreateTenant(r.Context(), caller, req.Name)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.respondJSON(w, http.StatusCreated, toTenantJSON(tenant))
}

type onboardRequest struct {
	TenantName       string   `json:"tenant_name"`
	AgentDisplayName string   `json:"agent_display_name"`
	PhoneNumber      string   `json:"phone_number"`
	Capabilities     []string `json:"capabilities"`
	SystemPrompt     string   `json:"system_prompt"`
	Greeting         string   `json:"greeting"`
}

// handleOnboard creates a tenant with its first agent and token in one
// call. Super-admin only.
func (g *Gateway) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller := auth.MustFromContext(r.Context()).Caller()
	res, err := g.admin.Onboard(r.Context(), caller, admin.OnboardRequest{
		TenantName:       req.TenantName,
		AgentDisplayName: req.AgentDisplayName,
		PhoneNumber:      req.PhoneNumber,
		Capabilities:     req.Capabilities,
		SystemPrompt:     req.SystemPrompt,
		Greeting:         req.Greeting,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.respondJSON(w, http.StatusCreated, map[string]any{
		"tenant": toTenantJSON(res.Tenant),
		"agent":  toAgentJSON(res.Agent),
		"token":  res.Plaintext,
	})
}

// handleAdminListAgents lists the agents visible to the caller.
func (g *Gateway) handleAdminListAgents(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context()).Caller()
	agents, err := g.admin.ListAgents(r.Context(), caller)
	if err != nil {
		g.writeError(w, err)
		return
	}

	out := make([]agentJSON, 0, len(agents))
	for _, a := range agents {
		out = append(out, toAgentJSON(a))
	}
	g.respondJSON(w, http.StatusOK, out)
}

type provisionAgentRequest struct {
	TenantID     string   `json:"tenant_id"`
	DisplayName  string   `json:"display_name"`
	PhoneNumber  string   `json:"phone_number"`
	SystemPrompt string   `json:"system_prompt"`
	Greeting     string   `json:"greeting"`
	Capabilities []string `json:"capabilities"`
	Tier         string   `json:"tier"`
	MaxPerMinute int      `json:"max_per_minute"`
	MaxPerHour   int      `json:"max_per_hour"`
	TokenLabel   string   `json:"token_label"`
}

// handleProvisionAgent creates an agent and mints its first token. Any
// throttle overrides take effect immediately.
func (g *Gateway) handleProvisionAgent(w http.ResponseWriter, r *http.Request) {
	var req provisionAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller := auth.MustFromContext(r.Context()).Caller()
	res, err := g.admin.ProvisionAgent(r.Context(), caller, admin.ProvisionAgentRequest{
		TenantID:     req.TenantID,
		DisplayName:  req.DisplayName,
		PhoneNumber:  req.PhoneNumber,
		SystemPrompt: req.SystemPrompt,
		Greeting:     req.Greeting,
		Capabilities: req.Capabilities,
		Tier:         req.Tier,
		MaxPerMinute: req.MaxPerMinute,
		MaxPerHour:   req.MaxPerHour,
		TokenLabel:   req.TokenLabel,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.applyAgentLimits(res.Agent.ID, res.Agent.MaxPerMinute, res.Agent.MaxPerHour)

	g.respondJSON(w, http.StatusCreated, map[string]any{
		"agent": toAgentJSON(res.Agent),
		"token": res.Plaintext,
	})
}

// handleDeprovisionAgent revokes the agent's tokens, deactivates it, and
// tears down its live stream.
func (g *Gateway) handleDeprovisionAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	caller := auth.MustFromContext(r.Context()).Caller()

	if err := g.admin.DeprovisionAgent(r.Context(), caller, id); err != nil {
		g.writeError(w, err)
		return
	}
	g.closeAgentStream(id)

	w.WriteHeader(http.StatusNoContent)
}

type regenerateTokenRequest struct {
	Label string `json:"label"`
}

// handleRegenerateToken revokes existing tokens and mints a fresh one.
// The plaintext appears in this response and nowhere else, ever.
func (g *Gateway) handleRegenerateToken(w http.ResponseWriter, r *http.Request) {
	var req regenerateTokenRequest
	if r.Body != nil {
		// The body is optional; decode failures on an empty body are fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	caller := auth.MustFromContext(r.Context()).Caller()
	res, err := g.admin.RegenerateToken(r.Context(), caller, r.PathValue("id"), req.Label)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.respondJSON(w, http.StatusCreated, map[string]any{
		"token_id": res.Token.ID,
		"token":    res.Plaintext,
		"label":    res.Token.Label,
	})
}

// handleListTokens lists an agent's token metadata.
func (g *Gateway) handleListTokens(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context()).Caller()
	tokens, err := g.admin.ListTokens(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		g.writeError(w, err)
		return
	}

	out := make([]tokenJSON, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenJSON(t))
	}
	g.respondJSON(w, http.StatusOK, out)
}

type setLimitsRequest struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// handleSetAgentLimits updates throttle overrides in the store and the
// live limiters together, so the change binds without a restart.
func (g *Gateway) handleSetAgentLimits(w http.ResponseWriter, r *http.Request) {
	var req setLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	caller := auth.MustFromContext(r.Context()).Caller()
	if err := g.admin.UpdateAgentLimits(r.Context(), caller, id, req.PerMinute, req.PerHour); err != nil {
		g.writeError(w, err)
		return
	}
	g.applyAgentLimits(id, req.PerMinute, req.PerHour)

	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// handleSetAgentStatus activates or deactivates an agent. Deactivation
// closes the agent's live stream; its history stays.
func (g *Gateway) handleSetAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := r.PathValue("id")
	caller := auth.MustFromContext(r.Context()).Caller()
	if err := g.admin.SetAgentStatus(r.Context(), caller, id, req.Status); err != nil {
		g.writeError(w, err)
		return
	}
	if req.Status == store.StatusInactive {
		g.closeAgentStream(id)
	}

	w.WriteHeader(http.StatusNoContent)
}

type setTierRequest struct {
	Tier string `json:"tier"`
}

// handleSetAgentTier moves an agent to a different billing tier.
func (g *Gateway) handleSetAgentTier(w http.ResponseWriter, r *http.Request) {
	var req setTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller := auth.MustFromContext(r.Context()).Caller()
	if err := g.admin.SetAgentTier(r.Context(), caller, r.PathValue("id"), req.Tier); err != nil {
		g.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListIdentities lists the pool numbers visible to the caller.
func (g *Gateway) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustFromContext(r.Context()).Caller()
	identities, err := g.admin.ListSenderIdentities(r.Context(), caller)
	if err != nil {
		g.writeError(w, err)
		return
	}

	out := make([]identityJSON, 0, len(identities))
	for _, i := range identities {
		out = append(out, toIdentityJSON(i))
	}
	g.respondJSON(w, http.StatusOK, out)
}

type addIdentityRequest struct {
	TenantID     string   `json:"tenant_id"`
	PhoneNumber  string   `json:"phone_number"`
	Capabilities []string `json:"capabilities"`
	IsDefault    bool     `json:"is_default"`
}

// handleAddIdentity registers a number into a tenant's outbound pool.
func (g *Gateway) handleAddIdentity(w http.ResponseWriter, r *http.Request) {
	var req addIdentityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller := auth.MustFromContext(r.Context()).Caller()
	identity, err := g.admin.AddSenderIdentity(r.Context(), caller, admin.AddIdentityRequest{
		TenantID:     req.TenantID,
		PhoneNumber:  req.PhoneNumber,
		Capabilities: req.Capabilities,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.respondJSON(w, http.StatusCreated, toIdentityJSON(identity))
}
