package auth

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultPrecedence picks the native auth identity over the legacy one when
// both strategies accept the same request.
var DefaultPrecedence = []Provenance{ProvenanceNativeAuth, ProvenanceJWT}

// Chain evaluates every strategy for a token and accepts it if any succeeds.
type Chain struct {
	strategies []Strategy
	precedence []Provenance
	logger     *zap.Logger
}

// ChainOption configures the chain.
type ChainOption func(*Chain)

// WithPrecedence sets which strategy's credential wins when several succeed.
func WithPrecedence(order ...Provenance) ChainOption {
	return func(c *Chain) {
		c.precedence = order
	}
}

// WithChainLogger sets the chain logger.
func WithChainLogger(logger *zap.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// NewChain composes strategies. Strategies are built once by the caller and
// shared by every request.
func NewChain(strategies []Strategy, opts ...ChainOption) *Chain {
	c := &Chain{
		strategies: strategies,
		precedence: DefaultPrecedence,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate runs all strategies concurrently. It returns the winning
// credential, or nil when none succeeded, together with every strategy's result.
func (c *Chain) Authenticate(ctx context.Context, token string) (*Credential, []Result) {
	results := make([]Result, len(c.strategies))

	var g errgroup.Group
	for i, strategy := range c.strategies {
		g.Go(func() error {
			results[i] = c.run(ctx, strategy, token)
			return nil
		})
	}
	_ = g.Wait()

	for _, result := range results {
		switch {
		case result.OK():
		case result.Rejected():
			c.logger.Debug("token rejected", zap.String("strategy", string(result.Strategy)), zap.Error(result.Err))
		default:
			c.logger.Warn("authentication strategy failed", zap.String("strategy", string(result.Strategy)), zap.Error(result.Err))
		}
	}
	return c.pick(results), results
}

// run converts a panicking strategy into a failed result.
func (c *Chain) run(ctx context.Context, strategy Strategy, token string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Strategy: strategy.Name(), Err: errors.Newf("strategy panicked: %v", r)}
		}
	}()
	result = strategy.Authenticate(ctx, token)
	result.Strategy = strategy.Name()
	return result
}

func (c *Chain) pick(results []Result) *Credential {
	for _, name := range c.precedence {
		for _, result := range results {
			if result.Strategy == name && result.OK() {
				return result.Credential
			}
		}
	}
	for _, result := range results {
		if result.OK() {
			return result.Credential
		}
	}
	return nil
}
