// Package dedupe suppresses replayed webhook deliveries. Providers
// redeliver events until they see a 2xx, so a slow handler or a restart
// can produce the same inbound message or call status twice. Handlers
// call CheckAndMark with the channel-qualified external ID and skip
// processing on a hit. Entries expire after a TTL and the cache is
// size-capped with oldest-first eviction, so memory stays bounded no
// matter how chatty the providers get.
package dedupe
