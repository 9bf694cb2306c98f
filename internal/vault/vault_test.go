package vault

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestVault_RoundTrip(t *testing.T) {
	v, err := New(testKey(0x01))
	require.NoError(t, err)

	for _, plaintext := range []string{"", "sk-or-v1-abc123", "with spaces and ünïcode", "a"} {
		ciphertext, err := v.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		got, err := v.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestVault_NonceIsRandom(t *testing.T) {
	v, err := New(testKey(0x01))
	require.NoError(t, err)

	a, err := v.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := v.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "two encryptions of the same plaintext must differ")
}

func TestVault_WrongKeyFailsWithDecryptionError(t *testing.T) {
	v1, err := New(testKey(0x01))
	require.NoError(t, err)
	v2, err := New(testKey(0x02))
	require.NoError(t, err)

	ciphertext, err := v1.Encrypt("secret")
	require.NoError(t, err)

	_, err = v2.Decrypt(ciphertext)
	require.Error(t, err)

	var decErr *DecryptionError
	assert.ErrorAs(t, err, &decErr)
}

func TestVault_MalformedCiphertext(t *testing.T) {
	v, err := New(testKey(0x01))
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "!!!not-base64!!!"},
		{name: "too short", input: "YWJj"}, // "abc", shorter than a nonce
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.input)
			require.Error(t, err)

			var decErr *DecryptionError
			assert.ErrorAs(t, err, &decErr, "malformed input must surface as DecryptionError")
		})
	}
}

func TestNew_BadKeyLength(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33} {
		_, err := New(bytes.Repeat([]byte{0x01}, size))
		require.Error(t, err, "key size %d", size)

		var encErr *EncryptionError
		assert.ErrorAs(t, err, &encErr, "bad key must surface as EncryptionError")
	}
}
