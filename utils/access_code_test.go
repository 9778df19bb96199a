package utils

import (
	"testing"

	"parking-system/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAccessCode(t *testing.T) {
	code, err := GenerateAccessCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, c := range code {
		assert.True(t, c >= '0' && c <= '9', "code must be digits only, got %q", code)
	}

	other, err := GenerateAccessCode(6)
	require.NoError(t, err)
	// Collisions are possible but a fixed output would mean broken entropy.
	if code == other {
		third, err := GenerateAccessCode(6)
		require.NoError(t, err)
		assert.NotEqual(t, code, third)
	}
}

func TestAccessCodeRoundTrip(t *testing.T) {
	code, err := GenerateAccessCode(6)
	require.NoError(t, err)

	hash, err := HashAccessCode(code)
	require.NoError(t, err)
	assert.NotEqual(t, code, hash)

	assert.NoError(t, CheckAccessCode(hash, code))

	wrong := []byte(code)
	wrong[0] = '0' + ('9'-wrong[0])%10
	assert.ErrorIs(t, CheckAccessCode(hash, string(wrong)), status.ErrAccessCodeWrong)
}
