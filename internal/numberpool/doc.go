// Package numberpool selects which pooled sender identity originates an
// outbound send, preferring a number local to the destination, then a
// flagged default, then pool listing order. Selection is read-only and
// falls back to the agent's own number when the pool cannot serve the
// channel.
package numberpool
