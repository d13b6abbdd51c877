// Package todoclient is the device-side engine for the todotomorrow apps:
// magic-link sign-in over deep links, a persisted session, and an optimistic
// task list synced with the backing repository.
package todoclient

import (
	"github.com/todotomorrow/go-client/core"
)

type Config = core.Config

type CallbackConfig = core.CallbackConfig

type InitialURLConfig = core.InitialURLConfig

type RefreshConfig = core.RefreshConfig

type Session = core.Session

type Task = core.Task

type OwnerIdentity = core.OwnerIdentity

type RawDeepLink = core.RawDeepLink

type DeepLinkSource = core.DeepLinkSource

type ParsedCallback = core.ParsedCallback

type CredentialPayload = core.CredentialPayload

type IdentityService = core.IdentityService

type SessionVault = core.SessionVault

type TaskRepository = core.TaskRepository

type CaptureBridge = core.CaptureBridge

type InitialURLQuery = core.InitialURLQuery

type MetricsRecorder = core.MetricsRecorder

type Logger = core.Logger

type LoggerProvider = core.LoggerProvider

const (
	DeepLinkSourceNativeCapture = core.DeepLinkSourceNativeCapture
	DeepLinkSourceInitialQuery  = core.DeepLinkSourceInitialQuery
	DeepLinkSourceLiveEvent     = core.DeepLinkSourceLiveEvent
)

// DefaultConfig returns the production callback shape and retry bounds.
func DefaultConfig() Config {
	return core.DefaultConfig()
}
