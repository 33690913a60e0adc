package gin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faucetd/faucet/auth"
)

const (
	credentialKey = "faucet.credential"
	requestIDKey  = "faucet.requestID"

	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-Id"

	HeaderNativeAuthIssued    = "X-Native-Auth-Issued"
	HeaderNativeAuthExpires   = "X-Native-Auth-Expires"
	HeaderNativeAuthAddress   = "X-Native-Auth-Address"
	HeaderNativeAuthTimestamp = "X-Native-Auth-Timestamp"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
}

// Abort stops the chain with an error response.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}

// RequestID assigns every request an ID, keeping one supplied by the client.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestIDFrom returns the ID assigned by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestObserver is told about every completed request.
type RequestObserver func(method, route string, status int)

// Logger logs every request once it completes.
func Logger(logger *zap.Logger, observers ...RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		for _, observe := range observers {
			observe(c.Request.Method, route, status)
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("requestId", RequestIDFrom(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

// FeatureGate answers 404 with message while enabled reports false.
func FeatureGate(enabled func() bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled() {
			Abort(c, http.StatusNotFound, message)
			return
		}
		c.Next()
	}
}

// AuthOptions configures Authenticate.
type AuthOptions struct {
	Observe func([]auth.Result)
}

// AuthOption is the type for the options of Authenticate.
type AuthOption func(*AuthOptions)

// WithAuthObserver receives every strategy verdict.
func WithAuthObserver(observe func([]auth.Result)) AuthOption {
	return func(o *AuthOptions) {
		o.Observe = observe
	}
}

// Authenticate requires a bearer token accepted by the chain. The winning
// credential is stored on the context; a successful native auth verdict is
// also echoed in response headers.
func Authenticate(chain *auth.Chain, opts ...AuthOption) gin.HandlerFunc {
	options := &AuthOptions{}
	for _, opt := range opts {
		opt(options)
	}

	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			Abort(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		cred, results := chain.Authenticate(c.Request.Context(), token)
		if options.Observe != nil {
			options.Observe(results)
		}
		if cred == nil {
			Abort(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		for _, result := range results {
			if result.Strategy == auth.ProvenanceNativeAuth && result.OK() {
				setNativeAuthHeaders(c, result.Credential)
			}
		}
		c.Set(credentialKey, cred)
		c.Next()
	}
}

func setNativeAuthHeaders(c *gin.Context, cred *auth.Credential) {
	c.Header(HeaderNativeAuthIssued, strconv.FormatInt(cred.Issued, 10))
	c.Header(HeaderNativeAuthExpires, strconv.FormatInt(cred.Expires, 10))
	c.Header(HeaderNativeAuthAddress, cred.Address)
	c.Header(HeaderNativeAuthTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
}

// CredentialFrom returns the credential stored by Authenticate.
func CredentialFrom(c *gin.Context) *auth.Credential {
	value, ok := c.Get(credentialKey)
	if !ok {
		return nil
	}
	cred, _ := value.(*auth.Credential)
	return cred
}

// RequireAdmin allows only admin credentials through. It must run after Authenticate.
func RequireAdmin(admins auth.Admins) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !admins.IsAdmin(CredentialFrom(c)) {
			Abort(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Next()
	}
}
