package advisory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitrader/internal/indicator"
	"unitrader/internal/pkg/retry"
)

type scriptedOracle struct {
	replies []string
	errs    []error
	calls   int
}

func (o *scriptedOracle) Complete(_ context.Context, _, _ string) (string, error) {
	i := o.calls
	o.calls++
	var reply string
	if i < len(o.replies) {
		reply = o.replies[i]
	}
	var err error
	if i < len(o.errs) {
		err = o.errs[i]
	}
	return reply, err
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   IsRetryable,
	}
}

func testBundle() *indicator.Bundle {
	rsi := 68.0
	return &indicator.Bundle{
		Price: 100,
		RSI:   &rsi,
		Trend: indicator.TrendUp,
	}
}

func TestClientGetRecommendation(t *testing.T) {
	actx := AccountContext{AccountID: "acct-1", Symbol: "BTCUSDT", Venue: "paper", Balance: 10000}

	t.Run("valid reply passes through", func(t *testing.T) {
		oracle := &scriptedOracle{replies: []string{`{"action":"BUY","confidence":82,"rationale":"strong uptrend"}`}}
		c := NewClient(oracle, fastPolicy())

		rec := c.GetRecommendation(context.Background(), testBundle(), actx)
		assert.Equal(t, ActionBuy, rec.Action)
		assert.Equal(t, 82, rec.Confidence)
		assert.Equal(t, 1, oracle.calls)
	})

	t.Run("transient error retried then succeeds", func(t *testing.T) {
		oracle := &scriptedOracle{
			replies: []string{"", `{"action":"SELL","confidence":66}`},
			errs:    []error{transientOracle(errors.New("status=503")), nil},
		}
		c := NewClient(oracle, fastPolicy())

		rec := c.GetRecommendation(context.Background(), testBundle(), actx)
		assert.Equal(t, ActionSell, rec.Action)
		assert.Equal(t, 2, oracle.calls)
	})

	t.Run("exhausted retries fall back to wait", func(t *testing.T) {
		boom := transientOracle(errors.New("status=500"))
		oracle := &scriptedOracle{errs: []error{boom, boom, boom}}
		c := NewClient(oracle, fastPolicy())

		rec := c.GetRecommendation(context.Background(), testBundle(), actx)
		assert.Equal(t, ActionWait, rec.Action)
		assert.Equal(t, 0, rec.Confidence)
		assert.Equal(t, 3, oracle.calls)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		oracle := &scriptedOracle{errs: []error{errors.New("status=401 unauthorized")}}
		c := NewClient(oracle, fastPolicy())

		rec := c.GetRecommendation(context.Background(), testBundle(), actx)
		assert.Equal(t, ActionWait, rec.Action)
		assert.Equal(t, 1, oracle.calls)
	})

	t.Run("unparseable reply falls back to wait", func(t *testing.T) {
		oracle := &scriptedOracle{replies: []string{"buy it, trust me"}}
		c := NewClient(oracle, fastPolicy())

		rec := c.GetRecommendation(context.Background(), testBundle(), actx)
		assert.Equal(t, ActionWait, rec.Action)
		require.NotEmpty(t, rec.Rationale)
	})

	t.Run("nil bundle never calls oracle", func(t *testing.T) {
		oracle := &scriptedOracle{}
		c := NewClient(oracle, fastPolicy())

		rec := c.GetRecommendation(context.Background(), nil, actx)
		assert.Equal(t, ActionWait, rec.Action)
		assert.Equal(t, 0, oracle.calls)
	})
}
