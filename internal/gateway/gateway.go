// ABOUTME: Gateway owns the HTTP server and wires every component together
// ABOUTME: Handles startup, TCP and tsnet listeners, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"tailscale.com/tsnet"

	"github.com/95percent-ai/butt-dial/internal/admin"
	"github.com/95percent-ai/butt-dial/internal/assets"
	"github.com/95percent-ai/butt-dial/internal/auth"
	"github.com/95percent-ai/butt-dial/internal/config"
	"github.com/95percent-ai/butt-dial/internal/dedupe"
	"github.com/95percent-ai/butt-dial/internal/dispatch"
	"github.com/95percent-ai/butt-dial/internal/numberpool"
	"github.com/95percent-ai/butt-dial/internal/presence"
	"github.com/95percent-ai/butt-dial/internal/provider"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
	"github.com/95percent-ai/butt-dial/internal/throttle"
)

// shutdownTimeout is how long graceful shutdown waits for in-flight
// requests before giving up.
const shutdownTimeout = 5 * time.Second

// Defaults for webhook dedupe when the config carries none. Load fills
// these for file-based configs; programmatic configs may leave them zero.
const (
	defaultDedupeTTL     = 10 * time.Minute
	defaultDedupeMaxSize = 4096
)

// Gateway is the main server struct that owns all components.
type Gateway struct {
	config *config.Config
	logger *slog.Logger

	store      store.Store
	providers  *provider.Registry
	selector   *numberpool.Selector
	perMinute  *throttle.Limiter
	perHour    *throttle.Limiter
	events     *dedupe.Cache
	presence   *presence.Manager
	dispatcher *dispatch.Dispatcher
	recorder   *dispatch.Recorder
	admin      *admin.Service
	auth       *auth.Authenticator

	httpServer *http.Server
	tsServer   *tsnet.Server // nil unless the tailscale listener is enabled
}

// New creates a Gateway with all components initialized and routes wired.
// The returned gateway owns the store and the background sweeps; callers
// must Run it or Shutdown it.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	st, err := initStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	providers, err := buildProviderRegistry(cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("building provider registry: %w", err)
	}

	// Agents carry persisted throttle overrides; read them before the
	// limiters exist so wiring cannot fail halfway through.
	agents, err := st.ListAgents(context.Background(), tenancy.Caller{Role: tenancy.RoleSuperAdmin})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("loading agent throttle overrides: %w", err)
	}

	var verifier *auth.JWTVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	}

	dedupeTTL := cfg.Webhooks.DedupeTTL
	if dedupeTTL <= 0 {
		dedupeTTL = defaultDedupeTTL
	}
	dedupeSize := cfg.Webhooks.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = defaultDedupeMaxSize
	}

	g := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		store:     st,
		providers: providers,
		selector:  numberpool.NewSelector(st, logger),
		perMinute: throttle.New(throttle.Config{
			Window:      time.Minute,
			GlobalLimit: cfg.Throttle.GlobalPerMinute,
			PerKeyLimit: cfg.Throttle.AgentPerMinute,
			Bypass:      cfg.Throttle.Bypass,
		}, logger),
		perHour: throttle.New(throttle.Config{
			Window:      time.Hour,
			GlobalLimit: cfg.Throttle.GlobalPerHour,
			PerKeyLimit: cfg.Throttle.AgentPerHour,
			Bypass:      cfg.Throttle.Bypass,
		}, logger),
		events:     dedupe.New(dedupeTTL, dedupeSize),
		presence:   presence.NewManager(logger),
		dispatcher: dispatch.NewDispatcher(st, logger),
		recorder:   dispatch.NewRecorder(st, logger),
		admin:      admin.NewService(st, logger),
	}
	g.auth = auth.NewAuthenticator(st, verifier, cfg.Auth.DemoAdminToken, logger)

	for _, a := range agents {
		if a.MaxPerMinute > 0 {
			g.perMinute.SetKeyLimit(a.ID, a.MaxPerMinute)
		}
		if a.MaxPerHour > 0 {
			g.perHour.SetKeyLimit(a.ID, a.MaxPerHour)
		}
	}

	// Reconnecting agents get their pending backlog replayed into the
	// fresh stream while the SSE handler drains it.
	g.presence.OnConnect(func(conn *presence.Connection) {
		go g.replayPending(conn)
	})

	g.httpServer = &http.Server{Handler: g.routes()}

	return g, nil
}

// initStore opens the SQLite store at the configured path. An empty path
// means an in-memory database, which tests rely on.
func initStore(cfg *config.Config) (store.Store, error) {
	path := cfg.Database.Path
	if path == "" {
		path = ":memory:"
	}
	return store.NewSQLiteStore(path)
}

// buildProviderRegistry assembles the channel backend set for this
// process. Simulated mode covers every channel with the local backend;
// live mode registers each configured upstream.
func buildProviderRegistry(cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	if cfg.Providers.Mode != config.ModeLive {
		return provider.NewSimulatedRegistry([]string{
			store.ChannelSMS,
			store.ChannelWhatsApp,
			store.ChannelEmail,
			store.ChannelLine,
			store.ChannelMatrix,
		}, logger), nil
	}

	reg := provider.NewRegistry(provider.VariantLive)

	tw := provider.NewTwilio(provider.TwilioConfig{
		AccountSID: cfg.Providers.Twilio.AccountSID,
		AuthToken:  cfg.Providers.Twilio.AuthToken,
	}, logger)
	reg.RegisterMessenger(store.ChannelSMS, tw)
	reg.RegisterMessenger(store.ChannelWhatsApp, tw.WhatsApp())
	reg.RegisterCaller(tw)

	if cfg.Providers.Line.Enabled {
		l := provider.NewLine(provider.LineConfig{
			ChannelToken: cfg.Providers.Line.ChannelToken,
		}, logger)
		reg.RegisterMessenger(store.ChannelLine, l)
		reg.RegisterProfiles(store.ChannelLine, l)
	}

	if cfg.Providers.Matrix.Enabled {
		m, err := provider.NewMatrix(provider.MatrixConfig{
			Homeserver:  cfg.Providers.Matrix.Homeserver,
			UserID:      cfg.Providers.Matrix.UserID,
			AccessToken: cfg.Providers.Matrix.AccessToken,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring matrix backend: %w", err)
		}
		reg.RegisterMessenger(store.ChannelMatrix, m)
	}

	if cfg.Providers.AWS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Providers.AWS.Region))
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		ses := provider.NewSES(sesv2.NewFromConfig(awsCfg), logger)
		reg.RegisterMessenger(store.ChannelEmail, ses)
		reg.RegisterVerifier(ses)
		reg.RegisterSynthesizer(provider.NewPolly(polly.NewFromConfig(awsCfg), logger))
	}

	return reg, nil
}

// Run starts the gateway and blocks until the context is cancelled or a
// server fails. Shutdown is graceful either way.
func (g *Gateway) Run(ctx context.Context) error {
	listeners, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, len(listeners))
	g.startServers(listeners, errCh)

	g.logger.Info("gateway started",
		"mode", g.config.Providers.Mode,
		"listeners", len(listeners),
	)

	err = g.waitForShutdownSignal(ctx, errCh)
	g.gracefulShutdown()
	return err
}

// setupListeners opens every configured listener: plain TCP when
// server.http_addr is set, plus a tailnet listener when tailscale is
// enabled.
func (g *Gateway) setupListeners(ctx context.Context) ([]net.Listener, error) {
	var listeners []net.Listener

	if g.config.Server.HTTPAddr != "" {
		ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
		}
		g.logger.Info("listening", "addr", ln.Addr().String())
		listeners = append(listeners, ln)
	}

	if g.config.Tailscale.Enabled {
		ln, err := g.setupTailscaleListener(ctx)
		if err != nil {
			closeListeners(listeners)
			return nil, err
		}
		listeners = append(listeners, ln)
	}

	if len(listeners) == 0 {
		return nil, errors.New("no listeners configured: set server.http_addr or enable tailscale")
	}
	return listeners, nil
}

// setupTailscaleListener joins the tailnet via tsnet and listens there.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	stateDir, err := resolveTailscaleStateDir(g.config.Tailscale.StateDir)
	if err != nil {
		return nil, err
	}
	authKey, err := resolveTailscaleAuthKey(g.config.Tailscale.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsServer = &tsnet.Server{
		Hostname:  g.config.Tailscale.Hostname,
		Dir:       stateDir,
		Ephemeral: g.config.Tailscale.Ephemeral,
		AuthKey:   authKey,
	}

	if _, err := g.tsServer.Up(ctx); err != nil {
		return nil, fmt.Errorf("joining tailnet: %w", err)
	}

	ln, err := g.tsServer.Listen("tcp", ":80")
	if err != nil {
		return nil, fmt.Errorf("listening on tailnet: %w", err)
	}

	g.logger.Info("listening on tailnet", "hostname", g.config.Tailscale.Hostname)
	return ln, nil
}

// resolveTailscaleStateDir returns the tsnet state directory, defaulting
// to ~/.local/share/butt-dial/tailscale, and ensures it exists.
func resolveTailscaleStateDir(configured string) (string, error) {
	dir := configured
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory for tailscale state: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "butt-dial", "tailscale")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating tailscale state directory: %w", err)
	}
	return dir, nil
}

// resolveTailscaleAuthKey returns the tailnet auth key from config or the
// TS_AUTHKEY environment variable.
func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := os.Getenv("TS_AUTHKEY"); key != "" {
		return key, nil
	}
	return "", errors.New("tailscale auth key required: set tailscale.auth_key or the TS_AUTHKEY environment variable")
}

// startServers serves HTTP on every listener. Failures land on errCh.
func (g *Gateway) startServers(listeners []net.Listener, errCh chan<- error) {
	for _, ln := range listeners {
		go func(ln net.Listener) {
			if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server on %s: %w", ln.Addr(), err)
			}
		}(ln)
	}
}

// waitForShutdownSignal blocks until the context is cancelled or a server
// reports a fatal error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh <-chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		g.logger.Error("server failed", "error", err)
		return err
	}
}

// gracefulShutdown runs Shutdown with a fresh timeout, since the run
// context is already cancelled by the time we get here.
func (g *Gateway) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := g.Shutdown(ctx); err != nil {
		g.logger.Error("shutdown failed", "error", err)
	}
}

// Shutdown stops the HTTP server and releases every component. Safe to
// call after a failed Run.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down")

	var errs []error
	if g.httpServer != nil {
		appendCloseError(&errs, "http server", g.httpServer.Shutdown(ctx))
	}
	if g.tsServer != nil {
		appendCloseError(&errs, "tailscale", g.tsServer.Close())
	}

	g.perMinute.Close()
	g.perHour.Close()
	g.events.Close()

	appendCloseError(&errs, "store", g.store.Close())

	return errors.Join(errs...)
}

// appendCloseError collects a labelled close failure, ignoring nil.
func appendCloseError(errs *[]error, what string, err error) {
	if err != nil {
		*errs = append(*errs, fmt.Errorf("closing %s: %w", what, err))
	}
}

// closeListeners closes already-open listeners after a later one failed.
func closeListeners(listeners []net.Listener) {
	for _, ln := range listeners {
		_ = ln.Close()
	}
}

// routes assembles the full HTTP surface: public endpoints, provider
// webhooks, and the authenticated /api/v1 tree.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", g.handleHealth)

	docs := assets.Handler(g.logger)
	mux.Handle("GET /openapi.json", docs)
	mux.Handle("GET /docs", docs)
	mux.Handle("GET /docs/{slug}", docs)

	mux.HandleFunc("POST /webhooks/twilio/sms", g.handleTwilioSMS)
	mux.HandleFunc("POST /webhooks/twilio/voice", g.handleTwilioVoice)
	mux.HandleFunc("POST /webhooks/line", g.handleLineWebhook)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/messages", g.handleSendMessage)
	api.HandleFunc("GET /api/v1/messages", g.handleListMessages)
	api.HandleFunc("POST /api/v1/calls", g.handleMakeCall)
	api.HandleFunc("POST /api/v1/calls/on-behalf", g.handleCallOnBehalf)
	api.HandleFunc("POST /api/v1/voice-messages", g.handleVoiceMessage)
	api.HandleFunc("POST /api/v1/calls/{id}/transfer", g.handleTransferCall)
	api.HandleFunc("GET /api/v1/calls/{id}/recording", g.handleCallRecording)
	api.HandleFunc("GET /api/v1/waiting-messages", g.handleWaitingMessages)
	api.HandleFunc("GET /api/v1/channels", g.handleChannelStatus)
	api.HandleFunc("GET /api/v1/usage", g.handleUsage)
	api.HandleFunc("GET /api/v1/billing", g.handleBilling)
	api.HandleFunc("GET /api/v1/limits", g.handleLimits)
	api.HandleFunc("GET /api/v1/voices", g.handleListVoices)
	api.HandleFunc("POST /api/v1/synthesize", g.handleSynthesize)
	api.HandleFunc("POST /api/v1/verify-domain", g.handleVerifyDomain)
	api.HandleFunc("GET /api/v1/profiles/{channel}/{user_id}", g.handleProfile)
	api.HandleFunc("GET /api/v1/events", g.handleEvents)

	adminOnly := auth.RequireAdminHTTP()
	superOnly := auth.RequireSuperAdminHTTP()
	api.Handle("POST /api/v1/admin/tenants", superOnly(http.HandlerFunc(g.handleCreateTenant)))
	api.Handle("POST /api/v1/admin/onboard", superOnly(http.HandlerFunc(g.handleOnboard)))
	api.Handle("GET /api/v1/admin/agents", adminOnly(http.HandlerFunc(g.handleAdminListAgents)))
	api.Handle("POST /api/v1/admin/agents", adminOnly(http.HandlerFunc(g.handleProvisionAgent)))
	api.Handle("DELETE /api/v1/admin/agents/{id}", adminOnly(http.HandlerFunc(g.handleDeprovisionAgent)))
	api.Handle("POST /api/v1/admin/agents/{id}/token", adminOnly(http.HandlerFunc(g.handleRegenerateToken)))
	api.Handle("GET /api/v1/admin/agents/{id}/tokens", adminOnly(http.HandlerFunc(g.handleListTokens)))
	api.Handle("PUT /api/v1/admin/agents/{id}/limits", adminOnly(http.HandlerFunc(g.handleSetAgentLimits)))
	api.Handle("PUT /api/v1/admin/agents/{id}/status", adminOnly(http.HandlerFunc(g.handleSetAgentStatus)))
	api.Handle("PUT /api/v1/admin/agents/{id}/tier", adminOnly(http.HandlerFunc(g.handleSetAgentTier)))
	api.Handle("GET /api/v1/admin/identities", adminOnly(http.HandlerFunc(g.handleListIdentities)))
	api.Handle("POST /api/v1/admin/identities", adminOnly(http.HandlerFunc(g.handleAddIdentity)))

	mux.Handle("/api/v1/", g.auth.Middleware(api))

	return mux
}

// handleHealth is the liveness probe.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   g.config.Providers.Mode,
	})
}
