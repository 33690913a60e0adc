package nativeauth

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Token is a decoded, not yet validated, native auth access token:
//
//	b64url(address) "." b64url(body) "." hex(signature)
//	body = b64url(origin) "." blockHash "." ttl "." b64url(extraInfo)
type Token struct {
	Address   string
	Body      string
	Origin    string
	BlockHash string
	TTL       int64
	ExtraInfo map[string]any
	Signature []byte
}

// ImpersonateTarget returns the address the signer acts for, if any.
func (t *Token) ImpersonateTarget() string {
	for _, key := range []string{"multisig", "impersonate"} {
		if value, ok := t.ExtraInfo[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// DecodeToken parses an access token.
func DecodeToken(accessToken string) (*Token, error) {
	parts := strings.Split(accessToken, ".")
	if len(parts) != 3 {
		return nil, errors.Wrap(ErrInvalidToken, "expected three segments")
	}

	addr, err := decodeSegment(parts[0])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, "address is not base64")
	}
	body, err := decodeSegment(parts[1])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, "body is not base64")
	}
	signature, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, "signature is not hex")
	}

	bodyParts := strings.Split(body, ".")
	if len(bodyParts) != 3 && len(bodyParts) != 4 {
		return nil, errors.Wrap(ErrInvalidToken, "malformed body")
	}

	origin, err := decodeSegment(bodyParts[0])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, "origin is not base64")
	}
	ttl, err := strconv.ParseInt(bodyParts[2], 10, 64)
	if err != nil || ttl <= 0 {
		return nil, errors.Wrap(ErrInvalidToken, "invalid ttl")
	}

	token := &Token{
		Address:   addr,
		Body:      body,
		Origin:    origin,
		BlockHash: bodyParts[1],
		TTL:       ttl,
		ExtraInfo: map[string]any{},
		Signature: signature,
	}
	if len(bodyParts) == 4 && bodyParts[3] != "" {
		extra, err := decodeSegment(bodyParts[3])
		if err != nil {
			return nil, errors.Wrap(ErrInvalidToken, "extra info is not base64")
		}
		if err := json.Unmarshal([]byte(extra), &token.ExtraInfo); err != nil {
			return nil, errors.Wrap(ErrInvalidToken, "extra info is not a JSON object")
		}
	}
	return token, nil
}

// EncodeSegment encodes a token segment.
func EncodeSegment(value string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

func decodeSegment(value string) (string, error) {
	value = strings.TrimRight(value, "=")
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(value)
	}
	return string(raw), err
}
