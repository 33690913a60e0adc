package faucet

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error represents a grant failure that is reported to the caller.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotEnabled               = "not_enabled"
	ErrCodeInvalidAddress           = "invalid_address"
	ErrCodeCaptchaMissing           = "captcha_missing"
	ErrCodeCaptchaFailed            = "captcha_failed"
	ErrCodeUnauthorized             = "unauthorized"
	ErrCodeForbidden                = "forbidden"
	ErrCodeAborted                  = "aborted"
	ErrCodeAllocationFailed         = "allocation_failed"
	ErrCodeDispatchFailed           = "dispatch_failed"
	ErrCodeNetworkConfigUnavailable = "network_config_unavailable"
	ErrCodeStoreUnavailable         = "store_unavailable"
)

// Messages returned to HTTP clients.
const (
	MsgNotEnabled     = "Faucet not enabled"
	MsgCaptchaMissing = "Captcha not provided"
	MsgCaptchaFailed  = "Failed captcha check"
	MsgAlreadyFunded  = "Funds already received"
	MsgInvalidAddress = "Invalid address"
)

// NewError creates a new grant error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the first *Error in err's chain, or "" if there is none.
func ErrorCode(err error) string {
	var faucetErr *Error
	if errors.As(err, &faucetErr) {
		return faucetErr.Code
	}
	return ""
}
