// Package http serves the faucet over HTTP.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/faucetd/faucet"
	"github.com/faucetd/faucet/auth"
	fgin "github.com/faucetd/faucet/pkg/gin"
)

// Metrics is what the server reports to.
type Metrics interface {
	Handler() http.Handler
	ObserveAuth(results []auth.Result)
	ObserveRequest(method, route string, status int)
}

// Config configures the server.
type Config struct {
	Service *faucet.Service
	Chain   *auth.Chain
	Admins  auth.Admins
	Policy  auth.ImpersonationPolicy

	// Metrics is optional
	Metrics Metrics
	// Logger is optional
	Logger *zap.Logger
}

// Server holds the faucet routes.
type Server struct {
	service *faucet.Service
	chain   *auth.Chain
	admins  auth.Admins
	policy  auth.ImpersonationPolicy
	metrics Metrics
	logger  *zap.Logger
	router  *gin.Engine
}

type fundRequest struct {
	Captcha string `json:"captcha"`
}

type adminFundRequest struct {
	Address string  `json:"address" binding:"required"`
	Nonce   *uint64 `json:"nonce"`
}

// NewServer builds the router.
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		service: config.Service,
		chain:   config.Chain,
		admins:  config.Admins,
		policy:  config.Policy,
		metrics: config.Metrics,
		logger:  logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(fgin.RequestID())

	var observers []fgin.RequestObserver
	var authOpts []fgin.AuthOption
	if s.metrics != nil {
		observers = append(observers, s.metrics.ObserveRequest)
		authOpts = append(authOpts, fgin.WithAuthObserver(s.metrics.ObserveAuth))
	}
	r.Use(fgin.Logger(s.logger, observers...))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	faucetGroup := r.Group("/faucet")
	faucetGroup.GET("/settings", s.handleSettings)

	enabled := fgin.FeatureGate(s.service.Enabled, faucet.MsgNotEnabled)
	authenticate := fgin.Authenticate(s.chain, authOpts...)
	faucetGroup.POST("", enabled, authenticate, s.handleFund)
	faucetGroup.POST("/admin", enabled, authenticate, fgin.RequireAdmin(s.admins), s.handleAdminFund)

	r.GET("/impersonate/allowed/:address/:impersonator", s.handleImpersonateAllowed)
	return r
}

func (s *Server) handleSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Settings())
}

func (s *Server) handleFund(c *gin.Context) {
	var body fundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			fgin.Abort(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	cred := fgin.CredentialFrom(c)
	s.grant(c, faucet.GrantRequest{
		Address:  cred.Address,
		ClientIP: c.ClientIP(),
		Captcha:  body.Captcha,
	})
}

func (s *Server) handleAdminFund(c *gin.Context) {
	var body adminFundRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fgin.Abort(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.logger.Info("admin grant",
		zap.String("admin", fgin.CredentialFrom(c).Address),
		zap.String("address", body.Address),
	)
	s.grant(c, faucet.GrantRequest{
		Address:  body.Address,
		ClientIP: c.ClientIP(),
		Nonce:    body.Nonce,
	})
}

func (s *Server) grant(c *gin.Context, req faucet.GrantRequest) {
	result, err := s.service.RetrieveFunds(c.Request.Context(), req)
	if err != nil {
		status, message := errorResponse(err)
		_ = c.Error(err)
		fgin.Abort(c, status, message)
		return
	}
	if result.Status == faucet.GrantStatusAlreadyReceived {
		fgin.Abort(c, http.StatusTooManyRequests, faucet.MsgAlreadyFunded)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(faucet.GrantStatusGranted)})
}

func (s *Server) handleImpersonateAllowed(c *gin.Context) {
	if !s.policy.IsAllowed(c.Param("address"), c.Param("impersonator")) {
		fgin.Abort(c, http.StatusForbidden, "Forbidden")
		return
	}
	c.JSON(http.StatusOK, true)
}

var errorStatus = map[string]int{
	faucet.ErrCodeNotEnabled:               http.StatusNotFound,
	faucet.ErrCodeInvalidAddress:           http.StatusBadRequest,
	faucet.ErrCodeCaptchaMissing:           http.StatusBadRequest,
	faucet.ErrCodeCaptchaFailed:            http.StatusBadRequest,
	faucet.ErrCodeUnauthorized:             http.StatusUnauthorized,
	faucet.ErrCodeForbidden:                http.StatusForbidden,
	faucet.ErrCodeAborted:                  http.StatusForbidden,
	faucet.ErrCodeAllocationFailed:         http.StatusServiceUnavailable,
	faucet.ErrCodeStoreUnavailable:         http.StatusServiceUnavailable,
	faucet.ErrCodeDispatchFailed:           http.StatusBadGateway,
	faucet.ErrCodeNetworkConfigUnavailable: http.StatusBadGateway,
}

// errorResponse maps a grant error to a status and a client-safe message.
func errorResponse(err error) (int, string) {
	var faucetErr *faucet.Error
	if !errors.As(err, &faucetErr) {
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
	status, ok := errorStatus[faucetErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return status, faucetErr.Message
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}
