// Package identity talks to the remote identity service: it requests magic
// links, redeems verification tokens for sessions, and manages the active
// remote session (fetch, install, refresh, sign out).
package identity
