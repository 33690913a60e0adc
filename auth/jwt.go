package auth

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// JWTStrategy accepts HS256 tokens signed with a shared secret. The caller
// address is read from the "user.address" claim.
type JWTStrategy struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTStrategy creates the legacy token strategy.
func NewJWTStrategy(secret string) (*JWTStrategy, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWTStrategy{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Name implements Strategy.
func (s *JWTStrategy) Name() Provenance {
	return ProvenanceJWT
}

// Authenticate implements Strategy.
func (s *JWTStrategy) Authenticate(_ context.Context, token string) Result {
	if token == "" {
		return reject(ProvenanceJWT, errors.New("missing token"))
	}

	claims := jwt.MapClaims{}
	if _, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return reject(ProvenanceJWT, err)
	}

	address := claimAddress(claims)
	if address == "" {
		return reject(ProvenanceJWT, errors.New("token carries no address"))
	}
	return Result{
		Strategy:   ProvenanceJWT,
		Credential: &Credential{Address: address, Provenance: ProvenanceJWT},
	}
}

func claimAddress(claims jwt.MapClaims) string {
	if user, ok := claims["user"].(map[string]any); ok {
		if address, ok := user["address"].(string); ok {
			return address
		}
	}
	address, _ := claims["address"].(string)
	return address
}
