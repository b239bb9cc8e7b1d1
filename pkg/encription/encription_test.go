package encription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	enc := NewEnc("supersecretkey")
	data := "eyJhbGciOiJIUzI1NiJ9.session"

	encryptedData, err := enc.Encrypt(data)
	require.NoError(t, err)
	assert.NotContains(t, encryptedData, data)

	decryptedData, err := enc.Decrypt(encryptedData)
	require.NoError(t, err)
	assert.Equal(t, data, decryptedData)

	// Every seal uses a fresh nonce.
	again, err := enc.Encrypt(data)
	require.NoError(t, err)
	assert.NotEqual(t, encryptedData, again)
}

func TestDecrypt_WrongKey(t *testing.T) {
	sealed, err := NewEnc("one").Encrypt("token")
	require.NoError(t, err)

	_, err = NewEnc("two").Decrypt(sealed)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecrypt_Garbage(t *testing.T) {
	enc := NewEnc("key")

	_, err := enc.Decrypt("not base64 !")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = enc.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
