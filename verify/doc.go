// Package verify redeems extracted credential payloads for sessions. It runs
// a small state machine per payload, guards against duplicate deliveries of
// the same physical link-open event, and tries the exchange strategies the
// identity service accepts in priority order.
package verify
