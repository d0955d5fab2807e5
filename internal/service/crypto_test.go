package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSecretCipher_RoundTrip(t *testing.T) {
	c, err := NewSecretCipher(testAESKey)
	require.NoError(t, err)

	enc, err := c.Encrypt("bfb279f9aa9bdbcf158e97dd71a467cd2e0c893059b10f78e6b72ada1ed2c919")
	require.NoError(t, err)
	assert.NotContains(t, enc, "bfb279f9")

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "bfb279f9aa9bdbcf158e97dd71a467cd2e0c893059b10f78e6b72ada1ed2c919", dec)
}

func TestSecretCipher_FreshNonce(t *testing.T) {
	c, err := NewSecretCipher(testAESKey)
	require.NoError(t, err)

	a, err := c.Encrypt("consumer-secret")
	require.NoError(t, err)
	b, err := c.Encrypt("consumer-secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSecretCipher_Tampered(t *testing.T) {
	c, err := NewSecretCipher(testAESKey)
	require.NoError(t, err)

	enc, err := c.Encrypt("passkey")
	require.NoError(t, err)

	flipped := []byte(enc)
	if flipped[len(flipped)-1] == '0' {
		flipped[len(flipped)-1] = '1'
	} else {
		flipped[len(flipped)-1] = '0'
	}
	_, err = c.Decrypt(string(flipped))
	assert.Error(t, err)

	_, err = c.Decrypt("abcd")
	assert.Error(t, err)

	_, err = c.Decrypt("not-hex")
	assert.Error(t, err)
}

func TestNewSecretCipher_BadKey(t *testing.T) {
	_, err := NewSecretCipher("zz")
	assert.Error(t, err)

	_, err = NewSecretCipher("0011")
	assert.Error(t, err)
}

func TestHMACSigner(t *testing.T) {
	s := NewHMACSigner()
	sig := s.Sign("alert-secret", `{"kind":"settlement_failed"}`)

	assert.Len(t, sig, 64)
	assert.True(t, s.Verify("alert-secret", `{"kind":"settlement_failed"}`, sig))
	assert.True(t, s.Verify("alert-secret", `{"kind":"settlement_failed"}`, strings.ToUpper(sig)))
	assert.False(t, s.Verify("other-secret", `{"kind":"settlement_failed"}`, sig))
	assert.False(t, s.Verify("alert-secret", `{"kind":"unknown_correlation"}`, sig))
}

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	h := NewArgon2Hasher()

	encoded, err := h.Hash("cb-token-7f3a")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	ok, err := h.Verify("cb-token-7f3a", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("cb-token-guess", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2Hasher_UniqueSalts(t *testing.T) {
	h := NewArgon2Hasher()

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestArgon2Hasher_InvalidEncodings(t *testing.T) {
	h := NewArgon2Hasher()

	cases := []string{
		"",
		"plain-text",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=16$m=65536,t=1,p=4$c2FsdA$a2V5",
		"$argon2id$v=19$bogus$c2FsdA$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$!!$a2V5",
		"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$",
	}
	for _, c := range cases {
		_, err := h.Verify("x", c)
		assert.Error(t, err, "encoding %q", c)
	}
}
