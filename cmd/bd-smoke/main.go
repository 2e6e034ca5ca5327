// ABOUTME: End-to-end smoke checks against a running butt-dial gateway.
// ABOUTME: Onboards a throwaway tenant, sends through it, and cleans up.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

const checkTimeout = 10 * time.Second

type check struct {
	name string
	run  func(ctx context.Context, s *smoke) (string, error)
}

var checks = []check{
	{"health", checkHealth},
	{"contract", checkContract},
	{"onboard", checkOnboard},
	{"identity", checkIdentity},
	{"send", checkSend},
	{"history", checkHistory},
	{"limits", checkLimits},
	{"usage", checkUsage},
	{"channels", checkChannels},
	{"events", checkEvents},
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to smoke config")
	gatewayURL := flag.String("url", "", "gateway base URL (overrides config)")
	adminToken := flag.String("token", "", "admin bearer token (overrides config)")
	sendTo := flag.String("to", "", "destination for the test message (overrides config)")
	keep := flag.Bool("keep", false, "keep the smoke tenant after the run")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *gatewayURL != "" {
		cfg.Gateway.URL = *gatewayURL
	}
	if *adminToken != "" {
		cfg.Gateway.AdminToken = *adminToken
	}
	if *sendTo != "" {
		cfg.Smoke.SendTo = *sendTo
	}
	if *keep {
		cfg.Smoke.Keep = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if run(cfg) {
		os.Exit(0)
	}
	os.Exit(1)
}

func run(cfg *Config) bool {
	s := &smoke{
		cfg:  cfg,
		http: &http.Client{},
	}

	fmt.Printf("bd-smoke against %s\n\n", cfg.Gateway.URL)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	defer s.cleanup()

	passed := 0
	for _, c := range checks {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		detail, err := c.run(ctx, s)
		cancel()

		if err != nil {
			red.Printf("  ✗ %-10s", c.name)
			fmt.Printf(" %v\n", err)
			fmt.Printf("\n%d of %d checks passed\n", passed, len(checks))
			return false
		}

		green.Printf("  ✓ %-10s", c.name)
		if detail != "" {
			gray.Printf(" %s", detail)
		}
		fmt.Println()
		passed++
	}

	fmt.Printf("\n%d checks passed\n", passed)
	return true
}

// smoke carries state between checks: the throwaway agent minted by the
// onboard check is what every later check authenticates as.
type smoke struct {
	cfg  *Config
	http *http.Client

	agentToken string
	agentID    string
	tenantID   string
	externalID string
}

// request runs one JSON API call and decodes the response into out when
// out is non-nil. An empty token means no Authorization header.
func (s *smoke) request(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.Gateway.URL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	return nil
}

func checkHealth(ctx context.Context, s *smoke) (string, error) {
	var health struct {
		Status string `json:"status"`
		Mode   string `json:"mode"`
	}
	if err := s.request(ctx, http.MethodGet, "/healthz", "", nil, &health); err != nil {
		return "", err
	}
	if health.Status != "ok" {
		return "", fmt.Errorf("unexpected status %q", health.Status)
	}
	return fmt.Sprintf("gateway is up (%s mode)", health.Mode), nil
}

func checkContract(ctx context.Context, s *smoke) (string, error) {
	var spec struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Version string `json:"version"`
		} `json:"info"`
	}
	if err := s.request(ctx, http.MethodGet, "/openapi.json", "", nil, &spec); err != nil {
		return "", err
	}
	if spec.OpenAPI == "" {
		return "", fmt.Errorf("response is not an OpenAPI document")
	}
	return fmt.Sprintf("api version %s", spec.Info.Version), nil
}

func checkOnboard(ctx context.Context, s *smoke) (string, error) {
	var res struct {
		Tenant struct {
			ID string `json:"id"`
		} `json:"tenant"`
		Agent struct {
			ID string `json:"id"`
		} `json:"agent"`
		Token string `json:"token"`
	}
	body := map[string]any{
		"tenant_name":        fmt.Sprintf("smoke-%d", time.Now().UnixMilli()),
		"agent_display_name": "smoke agent",
		"capabilities":       []string{s.cfg.Smoke.Channel},
	}
	if err := s.request(ctx, http.MethodPost, "/api/v1/admin/onboard", s.cfg.Gateway.AdminToken, body, &res); err != nil {
		return "", err
	}
	if res.Token == "" {
		return "", fmt.Errorf("no agent token in response")
	}
	s.tenantID = res.Tenant.ID
	s.agentID = res.Agent.ID
	s.agentToken = res.Token
	return fmt.Sprintf("agent %s", s.agentID), nil
}

// checkIdentity gives the smoke tenant a pool number to send from. The
// number is derived from the clock so repeated runs do not collide.
func checkIdentity(ctx context.Context, s *smoke) (string, error) {
	if s.cfg.Smoke.Channel == "email" {
		return "email sender needs no pool number", nil
	}

	var identity struct {
		PhoneNumber string `json:"phone_number"`
		CountryCode string `json:"country_code"`
	}
	body := map[string]any{
		"tenant_id":    s.tenantID,
		"phone_number": fmt.Sprintf("+1555%07d", time.Now().Unix()%10000000),
		"capabilities": []string{s.cfg.Smoke.Channel},
		"is_default":   true,
	}
	if err := s.request(ctx, http.MethodPost, "/api/v1/admin/identities", s.cfg.Gateway.AdminToken, body, &identity); err != nil {
		return "", err
	}
	return fmt.Sprintf("pool number %s (%s)", identity.PhoneNumber, identity.CountryCode), nil
}

func checkSend(ctx context.Context, s *smoke) (string, error) {
	var msg struct {
		From       string  `json:"from"`
		ExternalID string  `json:"external_id"`
		Status     string  `json:"status"`
		Cost       float64 `json:"cost"`
	}
	body := map[string]any{
		"to":      s.cfg.Smoke.SendTo,
		"body":    "bd-smoke test message",
		"channel": s.cfg.Smoke.Channel,
	}
	if err := s.request(ctx, http.MethodPost, "/api/v1/messages", s.agentToken, body, &msg); err != nil {
		return "", err
	}
	if msg.ExternalID == "" {
		return "", fmt.Errorf("provider returned no message ID")
	}
	s.externalID = msg.ExternalID
	return fmt.Sprintf("from %s, status %s", msg.From, msg.Status), nil
}

func checkHistory(ctx context.Context, s *smoke) (string, error) {
	var msgs []struct {
		ExternalID string `json:"external_id"`
		Direction  string `json:"direction"`
	}
	if err := s.request(ctx, http.MethodGet, "/api/v1/messages?limit=5", s.agentToken, nil, &msgs); err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("sent message missing from history")
	}
	if msgs[0].ExternalID != s.externalID {
		return "", fmt.Errorf("newest record is %q, want %q", msgs[0].ExternalID, s.externalID)
	}
	return "send is on the ledger", nil
}

func checkLimits(ctx context.Context, s *smoke) (string, error) {
	var limits struct {
		PerMinute       int `json:"per_minute"`
		RemainingMinute int `json:"remaining_minute"`
	}
	if err := s.request(ctx, http.MethodGet, "/api/v1/limits", s.agentToken, nil, &limits); err != nil {
		return "", err
	}
	if limits.PerMinute > 0 && limits.RemainingMinute >= limits.PerMinute {
		return "", fmt.Errorf("send did not count against the limit")
	}
	return fmt.Sprintf("%d of %d left this minute", limits.RemainingMinute, limits.PerMinute), nil
}

func checkUsage(ctx context.Context, s *smoke) (string, error) {
	var usage struct {
		TotalActions int64   `json:"total_actions"`
		TotalCost    float64 `json:"total_cost"`
	}
	if err := s.request(ctx, http.MethodGet, "/api/v1/usage", s.agentToken, nil, &usage); err != nil {
		return "", err
	}
	if usage.TotalActions < 1 {
		return "", fmt.Errorf("send missing from usage")
	}
	return fmt.Sprintf("%d actions, cost %.4f", usage.TotalActions, usage.TotalCost), nil
}

func checkChannels(ctx context.Context, s *smoke) (string, error) {
	var report struct {
		Variant  string `json:"variant"`
		Channels []struct {
			Channel     string `json:"channel"`
			Provisioned bool   `json:"provisioned"`
		} `json:"channels"`
	}
	if err := s.request(ctx, http.MethodGet, "/api/v1/channels", s.agentToken, nil, &report); err != nil {
		return "", err
	}
	for _, ch := range report.Channels {
		if ch.Channel == s.cfg.Smoke.Channel {
			if !ch.Provisioned {
				return "", fmt.Errorf("channel %s not provisioned for the smoke agent", ch.Channel)
			}
			return fmt.Sprintf("%s via %s backends", ch.Channel, report.Variant), nil
		}
	}
	return "", fmt.Errorf("channel %s missing from status report", s.cfg.Smoke.Channel)
}

func checkEvents(ctx context.Context, s *smoke) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Gateway.URL+"/api/v1/events", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.agentToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("stream status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			event := strings.TrimPrefix(line, "event: ")
			if event != "connected" {
				return "", fmt.Errorf("first event was %q, want connected", event)
			}
			return "stream says hello", nil
		}
	}
	return "", fmt.Errorf("stream closed before the connected event")
}

// cleanup deprovisions the smoke agent so repeated runs do not pile up
// tenants. Failures are reported but never change the exit code.
func (s *smoke) cleanup() {
	if s.agentID == "" || s.cfg.Smoke.Keep {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	path := "/api/v1/admin/agents/" + s.agentID
	if err := s.request(ctx, http.MethodDelete, path, s.cfg.Gateway.AdminToken, nil, nil); err != nil {
		fmt.Fprintf(os.Stderr, "warning: deprovisioning smoke agent: %v\n", err)
	}
}
