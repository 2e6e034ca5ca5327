// ABOUTME: Entry point for the butt-dial outbound communications gateway
// ABOUTME: Serves the API and provides init, bootstrap, and health commands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/95percent-ai/butt-dial/internal/admin"
	"github.com/95percent-ai/butt-dial/internal/config"
	"github.com/95percent-ai/butt-dial/internal/gateway"
	"github.com/95percent-ai/butt-dial/internal/store"
	"github.com/95percent-ai/butt-dial/internal/tenancy"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _             _    _               _  _         _
| |__   _   _ | |_ | |_          __| |(_)  __ _ | |
| '_ \ | | | || __|| __| _____  / _' || | / _' || |
| |_) || |_| || |_ | |_ |_____|| (_| || || (_| || |
|_.__/  \__,_| \__| \__|        \__,_||_| \__,_||_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: BUTTDIAL_CONFIG env var > XDG_CONFIG_HOME/butt-dial/gateway.yaml > ~/.config/butt-dial/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BUTTDIAL_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "butt-dial", "gateway.yaml")
}

// getDataPath returns the path to the butt-dial data directory.
// Priority: XDG_DATA_HOME/butt-dial > ~/.local/share/butt-dial
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "butt-dial")
}

func main() {
	// Provider credentials usually live in a .env next to the binary
	// during development; missing files are fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: butt-dial <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the gateway server")
		fmt.Println("  init                     Create a new config file interactively")
		fmt.Println("  bootstrap --tenant NAME  Create the first tenant, agent, and token")
		fmt.Println("  health                   Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Mode:      ")
	if cfg.Providers.Mode == config.ModeSimulated {
		yellow.Println("simulated (no real traffic leaves this host)")
	} else {
		fmt.Println(cfg.Providers.Mode)
	}
	if cfg.Server.PublicURL != "" {
		green.Print("    ▶ ")
		fmt.Printf("Public:    %s\n", cfg.Server.PublicURL)
	}

	// Tailscale status
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting butt-dial",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"mode", cfg.Providers.Mode,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health struct {
		Status string `json:"status"`
		Mode   string `json:"mode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Printf("healthy (%s mode)\n", health.Mode)
	return nil
}

// runBootstrap performs first-time setup of the gateway:
// 1. Creates a config file with random credentials (if not exists)
// 2. Creates the database with the first tenant and agent
// 3. Mints the agent's bearer token
//
// This is a one-command setup: butt-dial bootstrap --tenant "Acme"
func runBootstrap(ctx context.Context) error {
	// Parse args with explicit error handling
	// Supports both "--tenant value" and "--tenant=value" formats
	var tenantName, agentName string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--tenant" || arg == "-t":
			if i+1 >= len(args) {
				return fmt.Errorf("--tenant requires a value")
			}
			tenantName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--tenant="):
			tenantName = strings.TrimPrefix(arg, "--tenant=")
		case arg == "--agent" || arg == "-a":
			if i+1 >= len(args) {
				return fmt.Errorf("--agent requires a value")
			}
			agentName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--agent="):
			agentName = strings.TrimPrefix(arg, "--agent=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if tenantName == "" {
		return fmt.Errorf("--tenant flag is required")
	}
	tenantName = strings.TrimSpace(tenantName)
	if tenantName == "" {
		return fmt.Errorf("tenant name cannot be empty or whitespace only")
	}
	if agentName == "" {
		agentName = tenantName + " operator"
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "gateway.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	// Check if config exists, create if not
	var cfg *config.Config
	var adminToken string

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		jwtSecret, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		adminToken, err = randomSecret()
		if err != nil {
			return fmt.Errorf("generating admin token: %w", err)
		}

		// Create config directory
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		// Create data directory
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		// Write config file
		configContent := fmt.Sprintf(`# butt-dial configuration
# Generated by butt-dial bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"
  demo_admin_token: "%s"

providers:
  mode: "simulated"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret, adminToken)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		// Load the config we just created
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		// Config exists, load it
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		adminToken = cfg.Auth.DemoAdminToken

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	// Open the store directly
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	superCaller := tenancy.Caller{Role: tenancy.RoleSuperAdmin}

	// Check whether anything was provisioned already
	agents, err := s.ListAgents(ctx, superCaller)
	if err != nil {
		return fmt.Errorf("checking agents: %w", err)
	}
	if len(agents) > 0 {
		return fmt.Errorf("bootstrap already complete: %d agent(s) exist", len(agents))
	}

	// The admin service logs through slog; the CLI reports with its own
	// checkmarks instead.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := admin.NewService(s, quiet)
	res, err := svc.Onboard(ctx, superCaller, admin.OnboardRequest{
		TenantName:       tenantName,
		AgentDisplayName: agentName,
		Capabilities:     []string{store.ChannelSMS, store.ChannelVoice},
	})
	if err != nil {
		return fmt.Errorf("onboarding tenant: %w", err)
	}

	green.Printf("  ✓ Created tenant: %s (%s)\n", res.Tenant.Name, res.Tenant.ID)
	green.Printf("  ✓ Created agent: %s (%s)\n", res.Agent.DisplayName, res.Agent.ID)

	// Seed a demo pool number so a fresh install can send right away.
	// The number is Twilio's magic test sender; in simulated mode it is
	// just a label.
	identity, err := svc.AddSenderIdentity(ctx, superCaller, admin.AddIdentityRequest{
		TenantID:     res.Tenant.ID,
		PhoneNumber:  "+15005550006",
		Capabilities: []string{store.ChannelSMS, store.ChannelVoice},
		IsDefault:    true,
	})
	if err != nil {
		return fmt.Errorf("seeding sender identity: %w", err)
	}
	green.Printf("  ✓ Seeded sender identity: %s (%s)\n", identity.PhoneNumber, identity.CountryCode)

	// Save token to file for CLI tools to read
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(res.Plaintext), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	// Print results
	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  First Agent")
	cyan.Println("  -----------")
	fmt.Printf("  Tenant:       %s\n", res.Tenant.ID)
	fmt.Printf("  Agent:        %s\n", res.Agent.ID)
	fmt.Printf("  Capabilities: %s\n", strings.Join(res.Agent.Capabilities, ", "))
	fmt.Printf("  Agent token:  %s\n", res.Plaintext)
	if adminToken != "" {
		fmt.Printf("  Admin token:  %s\n", adminToken)
	}
	fmt.Println()
	yellow.Println("  The agent token is shown once; it is stored only as a hash.")
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    butt-dial serve    # start the gateway")
	fmt.Println("    butt-dial health   # check it is up")
	fmt.Println()

	return nil
}

// randomSecret returns a 32-byte random value, base64 encoded.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("butt-dial configuration setup")
	fmt.Println("=============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	publicURL := prompt(reader, "Public URL for webhook callbacks (leave empty if none)", "")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Providers
	fmt.Println("\n--- Provider Configuration ---")
	mode := prompt(reader, "Provider mode (simulated/live)", "simulated")
	var twilioSID, twilioToken string
	if mode == config.ModeLive {
		twilioSID = prompt(reader, "Twilio account SID", "")
		twilioToken = prompt(reader, "Twilio auth token (or ${TWILIO_AUTH_TOKEN})", "${TWILIO_AUTH_TOKEN}")
	}

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	jwtSecret := prompt(reader, "JWT secret (leave empty to generate)", "")
	if jwtSecret == "" {
		var err error
		jwtSecret, err = randomSecret()
		if err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		fmt.Println("Generated a random JWT secret.")
	}

	// Tailscale
	fmt.Println("\n--- Tailscale Configuration ---")
	enableTailscale := prompt(reader, "Enable Tailscale?", "no")
	tailscaleEnabled := strings.ToLower(enableTailscale) == "yes" || strings.ToLower(enableTailscale) == "y"

	var tsHostname, tsAuthKey string
	var tsEphemeral bool
	if tailscaleEnabled {
		tsHostname = prompt(reader, "Tailscale hostname", "butt-dial")
		tsAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		ephemeralStr := prompt(reader, "Ephemeral node?", "no")
		tsEphemeral = strings.ToLower(ephemeralStr) == "yes" || strings.ToLower(ephemeralStr) == "y"
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# butt-dial configuration\n")
	cfg.WriteString("# Generated by butt-dial init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	if publicURL != "" {
		cfg.WriteString(fmt.Sprintf("  public_url: \"%s\"\n", publicURL))
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	cfg.WriteString(fmt.Sprintf("  mode: \"%s\"\n", mode))
	if mode == config.ModeLive {
		cfg.WriteString("  twilio:\n")
		cfg.WriteString(fmt.Sprintf("    account_sid: \"%s\"\n", twilioSID))
		cfg.WriteString(fmt.Sprintf("    auth_token: \"%s\"\n", twilioToken))
	}
	cfg.WriteString("\n")

	cfg.WriteString("throttle:\n")
	cfg.WriteString("  agent_per_minute: 30\n")
	cfg.WriteString("  agent_per_hour: 300\n")
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", tailscaleEnabled))
	if tailscaleEnabled {
		cfg.WriteString(fmt.Sprintf("  hostname: \"%s\"\n", tsHostname))
		if tsAuthKey != "" {
			cfg.WriteString(fmt.Sprintf("  auth_key: \"%s\"\n", tsAuthKey))
		}
		cfg.WriteString(fmt.Sprintf("  ephemeral: %t\n", tsEphemeral))
	}
	cfg.WriteString("\n")

	cfg.WriteString("webhooks:\n")
	cfg.WriteString("  dedupe_ttl: \"10m\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  butt-dial serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
