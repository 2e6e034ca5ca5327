// Package dispatch records outcomes and redelivers stored notifications.
//
// Recorder appends one message record per dispatch attempt plus a usage
// event for billing; nothing is ever updated in place. Dispatcher owns
// the at-least-once notification path: items stay pending until a push
// succeeds, reconnects drain the backlog oldest first, and one bad item
// never blocks the rest of the queue.
package dispatch
