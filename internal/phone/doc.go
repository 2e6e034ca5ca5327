// Package phone resolves phone numbers to countries by international
// dialing prefix and provides E.164 normalization helpers for handler
// validation.
package phone
