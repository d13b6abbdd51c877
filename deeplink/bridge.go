package deeplink

import (
	"context"
	"strings"
	"sync"

	"github.com/todotomorrow/go-client/core"
)

// NopCaptureBridge stands in on platforms without a native capture module.
type NopCaptureBridge struct{}

func (NopCaptureBridge) StoredDeepLink(context.Context) (string, error) { return "", nil }
func (NopCaptureBridge) ClearStoredDeepLink(context.Context) error      { return nil }

// MemoryCaptureBridge holds one captured launch URL, mirroring the native
// module's store/clear contract.
type MemoryCaptureBridge struct {
	mu  sync.Mutex
	url string
}

func NewMemoryCaptureBridge(url string) *MemoryCaptureBridge {
	return &MemoryCaptureBridge{url: strings.TrimSpace(url)}
}

func (b *MemoryCaptureBridge) StoredDeepLink(context.Context) (string, error) {
	if b == nil {
		return "", nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url, nil
}

func (b *MemoryCaptureBridge) ClearStoredDeepLink(context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	b.url = ""
	b.mu.Unlock()
	return nil
}

var (
	_ core.CaptureBridge = NopCaptureBridge{}
	_ core.CaptureBridge = (*MemoryCaptureBridge)(nil)
)
