// Package nativeauth validates native auth access tokens: tokens signed by a
// ledger account over a recent block hash and a time-to-live.
package nativeauth

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/faucetd/faucet/address"
	"github.com/faucetd/faucet/signers/wallet"
)

const (
	// DefaultMaxExpirySeconds is the longest token ttl accepted by default.
	DefaultMaxExpirySeconds = 86400

	// LatestBlockTimestampKey is the cache key of the most recent block timestamp.
	LatestBlockTimestampKey = "block:timestamp:latest"

	latestTimestampTTL = 6 * time.Second
)

// BlockTimestampKey returns the cache key of a block timestamp.
func BlockTimestampKey(hash string) string {
	return "block:timestamp:" + hash
}

// Cache stores block timestamps between validations.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// BlockSource resolves block timestamps when the cache misses.
type BlockSource interface {
	BlockTimestamp(ctx context.Context, hash string) (int64, error)
	LatestTimestamp(ctx context.Context) (int64, error)
}

// ImpersonationCallback decides whether signer may act for target.
type ImpersonationCallback func(ctx context.Context, signer, target string) (bool, error)

// Config configures the validator.
type Config struct {
	// MaxExpirySeconds bounds the ttl a token may claim (optional, defaults to 86400)
	MaxExpirySeconds int64

	// AcceptedOrigins lists origins that are always accepted.
	AcceptedOrigins []string

	// AcceptAnyOrigin accepts tokens from every origin.
	AcceptAnyOrigin bool

	Cache       Cache
	Blocks      BlockSource
	Impersonate ImpersonationCallback
	Logger      *zap.Logger
}

// Result is a validated token.
type Result struct {
	Issued        int64
	Expires       int64
	Address       string
	SignerAddress string
	Origin        string
	ExtraInfo     map[string]any
}

// Validator checks native auth access tokens.
type Validator struct {
	config Config
	logger *zap.Logger
}

// NewValidator creates a validator.
func NewValidator(config Config) (*Validator, error) {
	if config.Blocks == nil {
		return nil, errors.New("native auth needs a block source")
	}
	if config.MaxExpirySeconds <= 0 {
		config.MaxExpirySeconds = DefaultMaxExpirySeconds
	}
	if !config.AcceptAnyOrigin && len(config.AcceptedOrigins) == 0 {
		return nil, errors.New("native auth accepts no origin")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{config: config, logger: logger}, nil
}

// Validate decodes and verifies accessToken.
func (v *Validator) Validate(ctx context.Context, accessToken string) (*Result, error) {
	token, err := DecodeToken(accessToken)
	if err != nil {
		return nil, err
	}

	if token.TTL > v.config.MaxExpirySeconds {
		return nil, errors.Wrapf(ErrMaxExpiryExceeded, "ttl %d > %d", token.TTL, v.config.MaxExpirySeconds)
	}
	if !v.originAccepted(token.Origin) {
		return nil, errors.Wrapf(ErrOriginNotAccepted, "origin %q", token.Origin)
	}

	signer, err := address.FromBech32(token.Address)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !wallet.VerifyMessage(signer.PubKey(), []byte(token.Address+token.Body), token.Signature) {
		return nil, ErrInvalidSignature
	}

	issued, err := v.blockTimestamp(ctx, token.BlockHash)
	if err != nil {
		return nil, err
	}
	expires := issued + token.TTL

	latest, err := v.latestTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	if expires < latest {
		return nil, errors.Wrapf(ErrTokenExpired, "expired at %d, now %d", expires, latest)
	}

	result := &Result{
		Issued:        issued,
		Expires:       expires,
		Address:       token.Address,
		SignerAddress: token.Address,
		Origin:        token.Origin,
		ExtraInfo:     token.ExtraInfo,
	}

	if target := token.ImpersonateTarget(); target != "" {
		if v.config.Impersonate == nil {
			return nil, errors.Wrap(ErrImpersonateNotAllowed, "no impersonation policy configured")
		}
		allowed, err := v.config.Impersonate(ctx, token.Address, target)
		if err != nil {
			return nil, errors.Wrap(err, "impersonation check failed")
		}
		if !allowed {
			return nil, errors.Wrapf(ErrImpersonateNotAllowed, "%s for %s", token.Address, target)
		}
		result.Address = target
	}
	return result, nil
}

func (v *Validator) originAccepted(origin string) bool {
	return v.config.AcceptAnyOrigin || slices.Contains(v.config.AcceptedOrigins, origin)
}

func (v *Validator) blockTimestamp(ctx context.Context, hash string) (int64, error) {
	key := BlockTimestampKey(hash)
	if ts, ok := v.cached(ctx, key); ok {
		return ts, nil
	}

	ts, err := v.config.Blocks.BlockTimestamp(ctx, hash)
	if err != nil {
		return 0, err
	}
	v.store(ctx, key, ts, time.Duration(v.config.MaxExpirySeconds)*time.Second)
	return ts, nil
}

func (v *Validator) latestTimestamp(ctx context.Context) (int64, error) {
	if ts, ok := v.cached(ctx, LatestBlockTimestampKey); ok {
		return ts, nil
	}

	ts, err := v.config.Blocks.LatestTimestamp(ctx)
	if err != nil {
		return 0, err
	}
	v.store(ctx, LatestBlockTimestampKey, ts, latestTimestampTTL)
	return ts, nil
}

// cached reads a timestamp. Cache failures degrade to a miss.
func (v *Validator) cached(ctx context.Context, key string) (int64, bool) {
	if v.config.Cache == nil {
		return 0, false
	}
	value, found, err := v.config.Cache.Get(ctx, key)
	if err != nil {
		v.logger.Warn("native auth cache read failed", zap.String("key", key), zap.Error(err))
		return 0, false
	}
	if !found {
		return 0, false
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

func (v *Validator) store(ctx context.Context, key string, ts int64, ttl time.Duration) {
	if v.config.Cache == nil {
		return
	}
	if err := v.config.Cache.Set(ctx, key, strconv.FormatInt(ts, 10), ttl); err != nil {
		v.logger.Warn("native auth cache write failed", zap.String("key", key), zap.Error(err))
	}
}
