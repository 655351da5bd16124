package advisory

import (
	"context"

	"unitrader/internal/indicator"
	"unitrader/internal/logger"
	"unitrader/internal/pkg/retry"
)

// Client asks the oracle for a recommendation and normalizes every failure
// mode to WAIT. It never returns an error: an unavailable or misbehaving
// oracle must not break the decision cycle, only withhold trades.
type Client struct {
	oracle Oracle
	policy retry.Policy
}

func NewClient(oracle Oracle, policy retry.Policy) *Client {
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	return &Client{oracle: oracle, policy: policy}
}

// GetRecommendation serializes the bundle plus account context, calls the
// oracle under the retry policy and strictly parses the reply.
func (c *Client) GetRecommendation(ctx context.Context, bundle *indicator.Bundle, actx AccountContext) Recommendation {
	if bundle == nil {
		return Wait("no indicator data")
	}
	user := buildUserPrompt(bundle, actx)

	var raw string
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = c.oracle.Complete(ctx, systemPrompt, user)
		return callErr
	})
	if err != nil {
		logger.Warnf("advisory: oracle call failed for %s/%s: %v", actx.AccountID, actx.Symbol, err)
		return Wait("advisory unavailable")
	}

	rec, err := parseRecommendation(raw)
	if err != nil {
		logger.Warnf("advisory: rejecting oracle output for %s/%s: %v", actx.AccountID, actx.Symbol, err)
		return Wait("advisory unavailable")
	}
	logger.Debugf("advisory: %s confidence=%d for %s/%s", rec.Action, rec.Confidence, actx.AccountID, actx.Symbol)
	return rec
}
