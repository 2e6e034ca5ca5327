// Package provider abstracts the upstream communication services behind
// capability interfaces so the rest of the gateway never talks to a
// vendor API directly.
//
// # Capabilities
//
// Each capability is its own small interface: Messenger sends messages,
// ProfileLookup resolves user display names, Caller places and controls
// voice calls, Synthesizer renders speech, and DomainVerifier registers
// email sending domains. Live backends implement only what their vendor
// offers; the simulated backend implements everything.
//
// # Registry
//
// A Registry binds backends to channels and carries the variant tag,
// VariantLive or VariantSimulated. The variant is set once at boot and
// exposed for status reporting only; no per-call code branches on it.
// Substituting the simulated backend for a live one changes no caller
// behavior, because both return identically shaped results.
//
// # Errors
//
// Upstream HTTP failures become *Error with the upstream status code and
// a truncated body, so transport layers can classify them uniformly.
// ErrNotConfigured reports a channel with no registered backend, and
// ErrNotSupported reports an operation the backend cannot perform.
package provider
