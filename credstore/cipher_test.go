package credstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCipherBox(t *testing.T) {
	key := bytes.Repeat([]byte{0x5a}, 32)
	box, err := newCipherBox(key)
	require.NoError(t, err)

	t.Run("seal then open round-trips", func(t *testing.T) {
		sealed, err := box.seal([]byte("secret value"))
		require.NoError(t, err)

		plaintext, err := box.open(sealed)
		require.NoError(t, err)
		require.Equal(t, "secret value", string(plaintext))
	})

	t.Run("sealing twice yields different ciphertexts", func(t *testing.T) {
		first, err := box.seal([]byte("same"))
		require.NoError(t, err)
		second, err := box.seal([]byte("same"))
		require.NoError(t, err)
		require.NotEqual(t, first, second)
	})

	t.Run("tampered ciphertext fails to open", func(t *testing.T) {
		sealed, err := box.seal([]byte("secret value"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff

		_, err = box.open(sealed)
		require.Error(t, err)
	})

	t.Run("truncated input fails to open", func(t *testing.T) {
		_, err := box.open([]byte("short"))
		require.Error(t, err)
	})

	t.Run("wrong key fails to open", func(t *testing.T) {
		otherBox, err := newCipherBox(bytes.Repeat([]byte{0x11}, 32))
		require.NoError(t, err)

		sealed, err := box.seal([]byte("secret value"))
		require.NoError(t, err)

		_, err = otherBox.open(sealed)
		require.Error(t, err)
	})

	t.Run("invalid key size is rejected", func(t *testing.T) {
		_, err := newCipherBox([]byte("too-short"))
		require.Error(t, err)
	})
}
