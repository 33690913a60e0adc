package faucet

import "time"

// GrantStatus is the outcome of an admission attempt that did not fail.
type GrantStatus string

const (
	// GrantStatusGranted means the primary transfer was submitted.
	GrantStatusGranted GrantStatus = "success"
	// GrantStatusAlreadyReceived means the recipient is still in its cooldown window.
	GrantStatusAlreadyReceived GrantStatus = "already_received"
)

// ReplayMode selects how the replay guard is consulted.
type ReplayMode string

const (
	// ReplayModeClaim reserves the recipient atomically before dispatch and
	// releases it if dispatch fails.
	ReplayModeClaim ReplayMode = "claim"
	// ReplayModeCheckCommit reads before dispatch and writes after it. Two
	// concurrent requests for the same recipient can both pass the read.
	ReplayModeCheckCommit ReplayMode = "checkCommit"
)

// GrantRequest is one admission attempt.
type GrantRequest struct {
	Address  string
	ClientIP string
	Captcha  string

	// Nonce overrides sequence allocation. Only privileged callers set it; an
	// override also skips the captcha requirement and the secondary transfer.
	Nonce *uint64
}

// GrantResult describes a completed admission attempt.
type GrantResult struct {
	Status GrantStatus `json:"status"`

	Nonce  uint64 `json:"nonce,omitempty"`
	TxHash string `json:"txHash,omitempty"`

	SecondaryNonce  *uint64 `json:"secondaryNonce,omitempty"`
	SecondaryTxHash string  `json:"secondaryTxHash,omitempty"`
	SecondaryError  string  `json:"secondaryError,omitempty"`
}

// Settings is the public view of the faucet configuration.
type Settings struct {
	Address         string  `json:"address"`
	Amount          string  `json:"amount"`
	Token           *string `json:"token,omitempty"`
	TokenAmount     string  `json:"tokenAmount,omitempty"`
	RecaptchaBypass bool    `json:"recaptchaBypass"`
}

// Config holds the grant parameters of the service.
type Config struct {
	// Amount is the primary grant in atomic units, base 10.
	Amount string

	// Token is the optional secondary token identifier.
	Token string
	// TokenAmount is the secondary grant, base 10.
	TokenAmount string

	Cooldown        time.Duration
	RecaptchaBypass bool
	ReplayMode      ReplayMode

	// CallTimeout bounds every external call made while admitting a request.
	CallTimeout time.Duration
}

const (
	// DefaultCooldown is how long a funded recipient is refused when Config.Cooldown is unset.
	DefaultCooldown = time.Hour
	// DefaultCallTimeout bounds each external call when Config.CallTimeout is unset.
	DefaultCallTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ReplayMode == "" {
		c.ReplayMode = ReplayModeClaim
	}
	return c
}
