package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec("test-secret")
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodec(t *testing.T) {
	t.Run("rejects empty secret", func(t *testing.T) {
		codec, err := NewTokenCodec("")

		assert.ErrorIs(t, err, ErrEmptySecret)
		assert.Nil(t, codec)
	})
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	payloads := [][]string{
		{"Ada", "Lovelace", "ada@example.com", "+4412345", "18151210", "female", "$2a$10$hash"},
		{"single"},
		{"", "empty-first", ""},
		{"unicode ✓", "ñandú", "日本"},
	}

	for _, fields := range payloads {
		token, err := codec.Encode(fields...)
		require.NoError(t, err)

		decoded, err := codec.Decode(token, len(fields))
		require.NoError(t, err)
		assert.Equal(t, fields, decoded)
	}
}

func TestTokenCodec_Encode(t *testing.T) {
	codec := newTestCodec(t)

	t.Run("rejects fields containing the delimiter", func(t *testing.T) {
		_, err := codec.Encode("a|b", "c")
		assert.ErrorIs(t, err, ErrFieldContainsDelimiter)
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, err := codec.Encode("x", "y")
		require.NoError(t, err)
		b, err := codec.Encode("x", "y")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestTokenCodec_DecodeRejectsMutations(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Encode("ada@example.com", "nonce", "1700000000")
	require.NoError(t, err)

	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	for i := range token {
		for _, r := range []byte{alphabet[0], alphabet[len(alphabet)-1]} {
			if token[i] == r {
				continue
			}
			mutated := token[:i] + string(r) + token[i+1:]
			_, err := codec.Decode(mutated, 3)
			assert.ErrorIs(t, err, ErrInvalidToken, "mutation at %d", i)
		}
	}
}

func TestTokenCodec_DecodeFailuresAreUniform(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Encode("a", "b")
	require.NoError(t, err)

	other, err := NewTokenCodec("other-secret")
	require.NoError(t, err)
	foreign, err := other.Encode("a", "b")
	require.NoError(t, err)

	forged := base64.RawURLEncoding.EncodeToString([]byte("a|b|not-a-signature"))

	cases := map[string]struct {
		token string
		n     int
	}{
		"empty":          {"", 2},
		"bad base64":     {"%%%", 2},
		"wrong count":    {token, 3},
		"too few fields": {token, 1},
		"foreign secret": {foreign, 2},
		"forged":         {forged, 2},
		"zero fields":    {token, 0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fields, err := codec.Decode(tc.token, tc.n)
			assert.Nil(t, fields)
			assert.Equal(t, ErrInvalidToken, err)
		})
	}
}
