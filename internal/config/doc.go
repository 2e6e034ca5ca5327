// Package config handles configuration loading for butt-dial.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${BD_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	webhooks:
//	  dedupe_ttl: "10m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"                  # API and webhooks
//	  public_url: "https://dial.example.com"     # Webhook callback base
//
// Database:
//
//	database:
//	  path: "/var/lib/butt-dial/dial.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${BD_JWT_SECRET}"      # Signs tenant-admin JWTs
//	  demo_admin_token: ""                # Super-admin bearer for demos
//
// Rate limits (zero disables a counter):
//
//	throttle:
//	  global_per_minute: 600
//	  agent_per_minute: 10
//	  global_per_hour: 10000
//	  agent_per_hour: 200
//	  bypass: false
//
// Channel backends:
//
//	providers:
//	  mode: "simulated"                   # live, simulated
//	  twilio:
//	    account_sid: "${TWILIO_ACCOUNT_SID}"
//	    auth_token: "${TWILIO_AUTH_TOKEN}"
//	  line:
//	    enabled: false
//	    channel_token: "${LINE_CHANNEL_TOKEN}"
//	  matrix:
//	    enabled: false
//	    homeserver: "https://matrix.org"
//	    user_id: "@dial:matrix.org"
//	    access_token: "${MATRIX_ACCESS_TOKEN}"
//	  aws:
//	    enabled: false
//	    region: "us-east-1"
//	    email_from: "notify@example.com"
//
// Tailscale:
//
//	tailscale:
//	  enabled: false
//	  hostname: "butt-dial"
//	  auth_key: "${TS_AUTHKEY}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Listener configuration (http_addr, or tailscale with a hostname)
//   - Database path presence
//   - Provider mode values
//   - Twilio credentials when mode is live
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/butt-dial/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
