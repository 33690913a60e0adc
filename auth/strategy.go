// Package auth resolves the caller identity of a request from its bearer
// token. Several strategies may each recognize a token; the Chain accepts a
// request when any of them does.
package auth

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Provenance names the strategy that produced a credential.
type Provenance string

const (
	ProvenanceJWT        Provenance = "jwt"
	ProvenanceNativeAuth Provenance = "nativeAuth"
)

// ErrInvalidCredential marks a token that was examined and refused. Strategy
// errors that do not wrap it are operational failures.
var ErrInvalidCredential = errors.New("invalid credential")

// Credential is an authenticated caller identity.
type Credential struct {
	Address    string
	Provenance Provenance

	// Set for native auth credentials only.
	Issued        int64
	Expires       int64
	Origin        string
	SignerAddress string
}

// Impersonated reports whether the signer acts on behalf of another address.
func (c *Credential) Impersonated() bool {
	return c.SignerAddress != "" && c.SignerAddress != c.Address
}

// Result is the verdict of one strategy: a credential or the reason there is none.
type Result struct {
	Strategy   Provenance
	Credential *Credential
	Err        error
}

// OK reports whether the strategy authenticated the caller.
func (r Result) OK() bool {
	return r.Err == nil && r.Credential != nil
}

// Rejected reports whether the strategy refused the token, as opposed to
// failing to evaluate it.
func (r Result) Rejected() bool {
	return r.Err != nil && errors.Is(r.Err, ErrInvalidCredential)
}

// Strategy authenticates a bearer token.
type Strategy interface {
	Name() Provenance
	Authenticate(ctx context.Context, token string) Result
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) >= len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return strings.TrimSpace(header)
}

func reject(name Provenance, err error) Result {
	return Result{Strategy: name, Err: errors.Mark(err, ErrInvalidCredential)}
}
