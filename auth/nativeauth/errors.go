package nativeauth

import "github.com/cockroachdb/errors"

// Validation failures. Every one of them means the token is not acceptable;
// errors outside this set are operational failures.
var (
	ErrInvalidToken          = errors.New("invalid native auth token")
	ErrMaxExpiryExceeded     = errors.New("token ttl exceeds the allowed maximum")
	ErrOriginNotAccepted     = errors.New("token origin is not accepted")
	ErrTokenExpired          = errors.New("token expired")
	ErrInvalidSignature      = errors.New("invalid token signature")
	ErrImpersonateNotAllowed = errors.New("impersonation not allowed")
	ErrBlockNotFound         = errors.New("token block not found")
)

// IsRejection reports whether err means the token was judged and refused, as
// opposed to the validator failing to reach a verdict.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidToken,
		ErrMaxExpiryExceeded,
		ErrOriginNotAccepted,
		ErrTokenExpired,
		ErrInvalidSignature,
		ErrImpersonateNotAllowed,
		ErrBlockNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
