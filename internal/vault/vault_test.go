package vault

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func TestVault_RoundTrip(t *testing.T) {
	v, err := New(testKey, "")
	require.NoError(t, err)

	sealed, err := v.Encrypt("strava-access-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "strava-access-token")

	again, err := v.Encrypt("strava-access-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must be fresh per call")

	plain, err := v.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "strava-access-token", plain)
}

func TestVault_ContextSeparation(t *testing.T) {
	a, err := New(testKey, "tokens")
	require.NoError(t, err)
	b, err := New(testKey, "other")
	require.NoError(t, err)

	sealed, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestVault_DecryptErrors(t *testing.T) {
	v, err := New(testKey, "")
	require.NoError(t, err)

	_, err = v.Decrypt("")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = v.Decrypt("not base64!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = v.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	sealed, err := v.Encrypt("secret")
	require.NoError(t, err)
	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	_, err = v.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNew_KeyValidation(t *testing.T) {
	_, err := New("", "")
	assert.ErrorIs(t, err, ErrKeyMissing)

	_, err = New("%%%", "")
	assert.Error(t, err)

	_, err = New(base64.StdEncoding.EncodeToString([]byte("tooshort")), "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "at least 16 bytes"))
}

func TestVault_EncryptEmpty(t *testing.T) {
	v, err := New(testKey, "")
	require.NoError(t, err)

	_, err = v.Encrypt("")
	assert.Error(t, err)
}
