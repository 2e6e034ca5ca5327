// Package presence tracks which agents currently hold a live event
// stream. The manager keeps one connection per agent, replaces a stale
// stream when the agent reconnects, and fires a hook on every fresh
// registration so queued notifications can be replayed immediately.
// Pushes never block: a full buffer reports ErrStreamFull and the event
// stays wherever it is durably stored.
package presence
