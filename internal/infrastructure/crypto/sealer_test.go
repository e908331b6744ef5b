package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := s.Seal([]byte(`{"cursor":10}`), []byte("session-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "cursor")

	plain, err := s.Open(sealed, []byte("session-1"))
	require.NoError(t, err)
	assert.Equal(t, `{"cursor":10}`, string(plain))
}

func TestSealer_NonceIsRandom(t *testing.T) {
	s, err := NewSealer("secret")
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealer_Rejects(t *testing.T) {
	s, err := NewSealer("secret")
	require.NoError(t, err)
	other, err := NewSealer("other")
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("payload"), []byte("id-1"))
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := other.Open(sealed, []byte("id-1"))
		assert.ErrorIs(t, err, ErrOpenFailed)
	})

	t.Run("wrong associated data", func(t *testing.T) {
		_, err := s.Open(sealed, []byte("id-2"))
		assert.ErrorIs(t, err, ErrOpenFailed)
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := append([]byte(nil), sealed...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := s.Open(tampered, []byte("id-1"))
		assert.ErrorIs(t, err, ErrOpenFailed)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := s.Open([]byte("short"), nil)
		assert.ErrorIs(t, err, ErrOpenFailed)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := NewSealer("")
		assert.Error(t, err)
	})
}
