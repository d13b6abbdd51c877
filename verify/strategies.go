package verify

import (
	"context"
	"strings"

	"github.com/todotomorrow/go-client/core"
)

// exchangeStrategy is one attempt shape for redeeming a verification token.
// Strategies run in order and short-circuit on the first success; a transient
// network failure aborts the sequence so a later strategy cannot spend the
// token blindly.
type exchangeStrategy struct {
	name    string
	request core.ExchangeRequest
}

// exchangeStrategies builds the attempt sequence for a verification token
// payload. The canonical-type exchange goes first. If the link carried the
// address it was claimed for, an address-bound exchange follows. The signup
// alias runs last: sign-in and first-time-signup links share token formats,
// and the service rejects a mismatched label even when the token is good.
func exchangeStrategies(payload core.CredentialPayload) []exchangeStrategy {
	canonical := payload.Type.Canonical()

	strategies := []exchangeStrategy{{
		name: "canonical",
		request: core.ExchangeRequest{
			Token: payload.Token,
			Type:  canonical,
		},
	}}

	if address := strings.TrimSpace(payload.ClaimedAddress); address != "" {
		strategies = append(strategies, exchangeStrategy{
			name: "address_bound",
			request: core.ExchangeRequest{
				Token:   payload.Token,
				Type:    canonical,
				Address: address,
			},
		})
	}

	if canonical != core.VerificationTypeSignup {
		strategies = append(strategies, exchangeStrategy{
			name: "signup_alias",
			request: core.ExchangeRequest{
				Token: payload.Token,
				Type:  core.VerificationTypeSignup,
			},
		})
	}

	return strategies
}

func (v *Verifier) runExchangeStrategies(ctx context.Context, payload core.CredentialPayload) (core.Session, error) {
	var lastErr error
	for _, strategy := range exchangeStrategies(payload) {
		session, err := v.identity.Exchange(ctx, strategy.request)
		if err == nil {
			return session, nil
		}
		lastErr = err
		if core.IsRetryable(err) {
			return core.Session{}, err
		}
		v.logger.Info("exchange strategy rejected",
			"strategy", strategy.name,
			"error", err.Error(),
		)
	}
	return core.Session{}, lastErr
}
