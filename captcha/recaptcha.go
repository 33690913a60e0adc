// Package captcha verifies reCAPTCHA tokens.
package captcha

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

// DefaultVerifyURL is Google's verification endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Config configures the verifier.
type Config struct {
	Secret    string
	VerifyURL string

	// Timeout for requests (optional, defaults to 10s)
	Timeout time.Duration
}

// Verifier checks captcha tokens against the reCAPTCHA service.
type Verifier struct {
	secret string
	url    string
	client *resty.Client
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// NewVerifier creates a verifier.
func NewVerifier(config Config) *Verifier {
	url := config.VerifyURL
	if url == "" {
		url = DefaultVerifyURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Verifier{
		secret: config.Secret,
		url:    url,
		client: resty.New().SetTimeout(timeout),
	}
}

// Verify reports whether token is a valid captcha solution. A false result
// with a non-nil error means the service could not be asked.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	var out verifyResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"secret":   v.secret,
			"response": token,
			"remoteip": remoteIP,
		}).
		SetResult(&out).
		Post(v.url)
	if err != nil {
		return false, errors.Wrap(err, "captcha verification request failed")
	}
	if resp.IsError() {
		return false, errors.Newf("captcha verification returned status %d", resp.StatusCode())
	}
	return out.Success, nil
}
