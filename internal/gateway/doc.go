// ABOUTME: Package documentation for the gateway orchestrator
// ABOUTME: Explains component wiring, request flow, and delivery semantics

/*
Package gateway wires every component into one HTTP server and owns its
lifecycle.

# Components

A Gateway is built by New from a config and owns:

  - the SQLite store (an empty database path means in-memory)
  - the provider registry, live or simulated per providers.mode
  - the number pool selector for outbound sender resolution
  - two fixed-window limiters, per minute and per hour
  - the webhook dedupe cache
  - the presence manager holding live event streams
  - the notification dispatcher and the append-only recorder
  - the admin provisioning service
  - the bearer authenticator guarding /api/v1

Throttle overrides persisted on agents are loaded into the limiters at
boot; admin limit changes apply to both the store and the live limiters,
so no restart is needed.

# Outbound flow

POST /api/v1/messages runs capability check, throttle (minute window
first, then hour), destination validation, sender resolution, the
provider send, and finally the append-only record with its usage event.
A provider failure records nothing: the ledger holds only dispatches
that finished, on either side.

Calls follow the same shape via POST /api/v1/calls and its on-behalf and
voice-message variants, which differ only in the TwiML handed to the
caller backend.

# Inbound flow

Provider webhooks land on /webhooks/... unauthenticated. Every handler
answers 2xx even when it cannot route, since a non-2xx only makes the
provider retry. Replayed deliveries are absorbed by the dedupe cache
keyed on the provider's message id.

A routed inbound item is recorded, then delivered: agents with an open
event stream get an immediate push; offline agents get a pending
notification replayed on their next connect, plus (for texts) a waiting
queue entry claimable via GET /api/v1/waiting-messages.

# Event stream

GET /api/v1/events serves SSE. Registering the stream triggers a replay
of the agent's pending backlog, oldest first, followed by a redelivery
summary event. Delivery is at least once; clients dedupe by id. A
reconnect replaces the previous stream.

# Listeners and shutdown

The server listens on server.http_addr, on a tsnet tailnet listener when
tailscale.enabled, or both. Shutdown drains in-flight requests with a
five second grace period, then closes the limiters, the dedupe cache,
and the store, joining any close errors.
*/
package gateway
