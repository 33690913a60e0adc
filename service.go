package faucet

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/faucetd/faucet/address"
	"github.com/faucetd/faucet/ledger"
	"github.com/faucetd/faucet/store"
)

// Service admits grant requests and dispatches the resulting transfers.
//
// A Service without an operator signer is disabled: Settings still answers,
// RetrieveFunds refuses every request.
type Service struct {
	config Config

	signer  Signer
	ledger  Ledger
	store   store.Store
	captcha CaptchaVerifier
	logger  *zap.Logger

	allocator *NonceAllocator
	replay    *ReplayGuard
	network   *NetworkConfigCache
	token     *TokenTransfer

	allocatorOpts []NonceAllocatorOption

	beforeGrantHooks    []BeforeGrantHook
	afterGrantHooks     []AfterGrantHook
	onGrantFailureHooks []OnGrantFailureHook
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithSigner sets the operator signer. Without one the faucet is disabled.
func WithSigner(signer Signer) ServiceOption {
	return func(s *Service) {
		s.signer = signer
	}
}

// WithLedger sets the ledger gateway
func WithLedger(l Ledger) ServiceOption {
	return func(s *Service) {
		s.ledger = l
	}
}

// WithStore sets the shared store
func WithStore(st store.Store) ServiceOption {
	return func(s *Service) {
		s.store = st
	}
}

// WithCaptchaVerifier sets the captcha verifier
func WithCaptchaVerifier(v CaptchaVerifier) ServiceOption {
	return func(s *Service) {
		s.captcha = v
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAllocatorOptions passes options to the nonce allocator
func WithAllocatorOptions(opts ...NonceAllocatorOption) ServiceOption {
	return func(s *Service) {
		s.allocatorOpts = append(s.allocatorOpts, opts...)
	}
}

// NewService creates the admission pipeline.
func NewService(config Config, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		config: config.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.config.Amount == "" {
		s.config.Amount = "0"
	}
	switch s.config.ReplayMode {
	case ReplayModeClaim, ReplayModeCheckCommit:
	default:
		return nil, errors.Newf("unknown replay mode %q", s.config.ReplayMode)
	}

	if s.config.Token != "" {
		token, err := ParseTokenTransfer(s.config.Token, s.config.TokenAmount)
		if err != nil {
			return nil, errors.Wrap(err, "invalid secondary token configuration")
		}
		s.token = token
	}

	if !s.Enabled() {
		return s, nil
	}
	if s.ledger == nil {
		return nil, errors.New("faucet is enabled but no ledger is configured")
	}
	if s.store == nil {
		return nil, errors.New("faucet is enabled but no store is configured")
	}
	if !s.config.RecaptchaBypass && s.captcha == nil {
		return nil, errors.New("captcha is required but no verifier is configured")
	}

	operator := s.signer.Address()
	s.allocator = NewNonceAllocator(s.store, s.ledger, operator,
		append([]NonceAllocatorOption{WithNonceLogger(s.logger.Named("allocator"))}, s.allocatorOpts...)...)
	s.replay = NewReplayGuard(s.store, operator)
	s.network = NewNetworkConfigCache(s.ledger.NetworkConfig)
	return s, nil
}

// Enabled reports whether an operator key is configured.
func (s *Service) Enabled() bool {
	return s.signer != nil && s.signer.Address() != ""
}

// Settings returns the public faucet settings.
func (s *Service) Settings() Settings {
	settings := Settings{
		Amount:          s.config.Amount,
		RecaptchaBypass: s.config.RecaptchaBypass,
	}
	if s.Enabled() {
		settings.Address = s.signer.Address()
	}
	if s.token != nil {
		token := s.token.Collection
		settings.Token = &token
		settings.TokenAmount = s.config.TokenAmount
	}
	return settings
}

// RetrieveFunds runs one admission attempt for req.Address.
//
// A recipient still inside its cooldown window yields GrantStatusAlreadyReceived
// with a nil error and nothing dispatched. Failures are returned as *Error.
func (s *Service) RetrieveFunds(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	hookCtx := GrantContext{Ctx: ctx, Request: req, Timestamp: time.Now()}

	result, err := s.retrieveFunds(ctx, req, hookCtx)
	duration := time.Since(hookCtx.Timestamp)
	if err != nil {
		failureCtx := GrantFailureContext{GrantContext: hookCtx, Error: err, Duration: duration}
		for _, hook := range s.onGrantFailureHooks {
			if hookErr := hook(failureCtx); hookErr != nil {
				s.logger.Warn("grant failure hook failed", zap.Error(hookErr))
			}
		}
		return nil, err
	}

	resultCtx := GrantResultContext{GrantContext: hookCtx, Result: *result, Duration: duration}
	for _, hook := range s.afterGrantHooks {
		if hookErr := hook(resultCtx); hookErr != nil {
			s.logger.Warn("after grant hook failed", zap.Error(hookErr))
		}
	}
	return result, nil
}

func (s *Service) retrieveFunds(ctx context.Context, req GrantRequest, hookCtx GrantContext) (*GrantResult, error) {
	if !s.Enabled() {
		return nil, NewError(ErrCodeNotEnabled, MsgNotEnabled, nil)
	}
	if !address.IsValid(req.Address) {
		return nil, NewError(ErrCodeInvalidAddress, MsgInvalidAddress, nil)
	}
	if err := s.validateCaptcha(ctx, req); err != nil {
		return nil, err
	}

	for _, hook := range s.beforeGrantHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, NewError(ErrCodeAborted, "grant refused", err)
		}
		if result != nil && result.Abort {
			return nil, NewError(ErrCodeAborted, result.Reason, nil)
		}
	}

	granted, err := s.admit(ctx, req.Address)
	if err != nil {
		return nil, err
	}
	if !granted {
		return &GrantResult{Status: GrantStatusAlreadyReceived}, nil
	}

	result, err := s.dispatch(ctx, req)
	if err != nil {
		if s.config.ReplayMode == ReplayModeClaim {
			s.release(ctx, req.Address)
		}
		return nil, err
	}

	if s.config.ReplayMode == ReplayModeCheckCommit {
		commitCtx, cancel := s.callContext(ctx)
		defer cancel()
		if err := s.replay.Commit(commitCtx, req.Address, s.config.Cooldown); err != nil {
			// The transfer is already submitted, so the caller still gets success.
			s.logger.Error("failed to record grant", zap.String("address", req.Address), zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) validateCaptcha(ctx context.Context, req GrantRequest) error {
	if s.config.RecaptchaBypass {
		return nil
	}
	if req.Captcha == "" {
		if req.Nonce != nil {
			return nil
		}
		return NewError(ErrCodeCaptchaMissing, MsgCaptchaMissing, nil)
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	ok, err := s.captcha.Verify(callCtx, req.Captcha, req.ClientIP)
	if err != nil {
		s.logger.Warn("captcha verification unavailable", zap.Error(err))
		ok = false
	}
	if !ok {
		return NewError(ErrCodeCaptchaFailed, MsgCaptchaFailed, err)
	}
	return nil
}

// admit consults the replay guard and reports whether the grant may proceed.
func (s *Service) admit(ctx context.Context, recipient string) (bool, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	if s.config.ReplayMode == ReplayModeClaim {
		return s.replay.Claim(callCtx, recipient, s.config.Cooldown)
	}
	received, err := s.replay.Check(callCtx, recipient)
	return !received, err
}

func (s *Service) release(ctx context.Context, recipient string) {
	callCtx, cancel := s.callContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.replay.Release(callCtx, recipient); err != nil {
		s.logger.Error("failed to release grant claim", zap.String("address", recipient), zap.Error(err))
	}
}

func (s *Service) dispatch(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	network, err := s.networkConfig(ctx)
	if err != nil {
		return nil, err
	}
	builder := transactionBuilder{operator: s.signer.Address(), network: network}

	nonce, err := s.nonce(ctx, req.Nonce)
	if err != nil {
		return nil, err
	}

	s.logger.Info("sending faucet transaction",
		zap.String("address", req.Address),
		zap.Uint64("nonce", nonce),
		zap.String("ip", req.ClientIP),
		zap.String("chainID", network.ChainID),
		zap.Bool("captcha", req.Captcha != ""),
	)

	txHash, err := s.submit(ctx, builder.primary(nonce, req.Address, s.config.Amount))
	if err != nil {
		// Gas minima may have changed under us.
		s.network.Invalidate()
		return nil, NewError(ErrCodeDispatchFailed, "failed to send faucet transaction", err)
	}
	result := &GrantResult{Status: GrantStatusGranted, Nonce: nonce, TxHash: txHash}

	if s.token != nil && req.Nonce == nil {
		s.dispatchToken(ctx, builder, req.Address, result)
	}
	return result, nil
}

// dispatchToken sends the secondary transfer. Its failure never fails the grant.
func (s *Service) dispatchToken(ctx context.Context, builder transactionBuilder, recipient string, result *GrantResult) {
	nonce, err := s.nonce(ctx, nil)
	if err != nil {
		s.logger.Error("failed to allocate token transfer nonce", zap.String("address", recipient), zap.Error(err))
		result.SecondaryError = err.Error()
		return
	}
	result.SecondaryNonce = &nonce

	tx, err := builder.token(nonce, recipient, s.token)
	if err == nil {
		result.SecondaryTxHash, err = s.submit(ctx, tx)
	}
	if err != nil {
		s.logger.Error("failed to send token transfer",
			zap.String("address", recipient),
			zap.Uint64("nonce", nonce),
			zap.Error(err),
		)
		result.SecondaryError = err.Error()
	}
}

func (s *Service) networkConfig(ctx context.Context) (*ledger.NetworkConfig, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	network, err := s.network.Get(callCtx)
	if err != nil {
		return nil, NewError(ErrCodeNetworkConfigUnavailable, "network config unavailable", err)
	}
	return network, nil
}

func (s *Service) nonce(ctx context.Context, override *uint64) (uint64, error) {
	if override != nil {
		return *override, nil
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.allocator.Allocate(callCtx)
}

func (s *Service) submit(ctx context.Context, tx *ledger.Transaction) (string, error) {
	if err := tx.Sign(s.signer); err != nil {
		return "", err
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.ledger.SendTransaction(callCtx, tx)
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.CallTimeout)
}
