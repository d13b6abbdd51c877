// Package core defines the shared domain model, remote service contracts,
// configuration, and error taxonomy for the TodoTomorrow client engine.
package core
