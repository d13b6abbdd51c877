package identity

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/todotomorrow/go-client/core"
)

func TestProfileNotFoundErrorEnvelope(t *testing.T) {
	cause := fmt.Errorf("token claims missing subject")
	err := &ProfileNotFoundError{Cause: cause}

	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatal("expected ErrProfileNotFound in chain")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}

	rich := err.ToClientError()
	if rich.Category != goerrors.CategoryAuthz {
		t.Fatalf("expected authz category, got %q", rich.Category)
	}
	if rich.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rich.Code)
	}
	if rich.TextCode != core.ClientErrorIdentityMissing {
		t.Fatalf("expected %q, got %q", core.ClientErrorIdentityMissing, rich.TextCode)
	}
}
