// Package tasks keeps the task list the UI renders. Mutations apply locally
// first and reconcile with the remote repository afterwards; a remote
// rejection rolls the local change back and surfaces a retryable error.
// Operations on the same task are not serialized: overlapping edits resolve
// last-write-wins.
package tasks
