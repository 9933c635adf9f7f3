package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// TokenDelimiter separates payload fields and the trailing signature.
const TokenDelimiter = "|"

// Strict decoding rejects non-zero trailing bits so every character of a
// token is significant.
var transportEncoding = base64.RawURLEncoding.Strict()

var (
	// ErrInvalidToken is returned for every decode failure. Callers must not
	// learn which check failed.
	ErrInvalidToken = errors.New("invalid token")

	// ErrFieldContainsDelimiter is returned when a payload field would make the
	// encoding ambiguous.
	ErrFieldContainsDelimiter = errors.New("token field contains delimiter")

	// ErrEmptySecret is returned when a codec is built without a key.
	ErrEmptySecret = errors.New("token secret is empty")
)

// TokenCodec encodes ordered payload fields into a self-contained,
// HMAC-SHA256 signed token. Nothing is persisted server side; expiry, if
// needed, is a payload field checked by the caller after Decode.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a codec keyed by secret.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &TokenCodec{secret: []byte(secret)}, nil
}

// Encode joins fields, appends the base64 signature and base64-encodes the
// result for transport in URLs.
func (c *TokenCodec) Encode(fields ...string) (string, error) {
	for _, f := range fields {
		if strings.Contains(f, TokenDelimiter) {
			return "", ErrFieldContainsDelimiter
		}
	}

	payload := strings.Join(fields, TokenDelimiter)
	raw := payload + TokenDelimiter + c.sign(payload)
	return transportEncoding.EncodeToString([]byte(raw)), nil
}

// Decode verifies token and returns exactly n payload fields.
func (c *TokenCodec) Decode(token string, n int) ([]string, error) {
	if n < 1 || token == "" {
		return nil, ErrInvalidToken
	}

	raw, err := transportEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	parts := strings.Split(string(raw), TokenDelimiter)
	if len(parts) != n+1 {
		return nil, ErrInvalidToken
	}

	payload := strings.Join(parts[:n], TokenDelimiter)
	expected := c.sign(payload)
	if !hmac.Equal([]byte(expected), []byte(parts[n])) {
		return nil, ErrInvalidToken
	}

	return parts[:n], nil
}

func (c *TokenCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
