// Package session owns the authenticated identity: one store holding the
// active session and its lifecycle status, persistence through a vault, and a
// retrying refresh runner that keeps the session from expiring underneath the
// task surfaces.
package session
