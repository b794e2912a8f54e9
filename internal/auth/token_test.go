package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.True(t, IsValidTokenFormat(token))

	other, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestIsValidTokenFormat(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", TokenPrefix + strings.Repeat("ab", 32), true},
		{"missing prefix", strings.Repeat("ab", 32), false},
		{"wrong prefix", "kld_" + strings.Repeat("ab", 32), false},
		{"too short", TokenPrefix + "abcd", false},
		{"not hex", TokenPrefix + strings.Repeat("zz", 32), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidTokenFormat(tt.token))
		})
	}
}

func TestHashToken(t *testing.T) {
	hash := HashToken("lodo_abc")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashToken("lodo_abc"))
	assert.NotEqual(t, hash, HashToken("lodo_abd"))
}

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()
	userID := uuid.New()

	t.Run("save and lookup", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "hash1", userID, time.Minute))
		got, err := store.Lookup(ctx, "hash1")
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("unknown hash", func(t *testing.T) {
		_, err := store.Lookup(ctx, "nope")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("expired token", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "hash2", userID, -time.Second))
		_, err := store.Lookup(ctx, "hash2")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("revoke", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "hash3", userID, time.Minute))
		require.NoError(t, store.Revoke(ctx, "hash3"))
		_, err := store.Lookup(ctx, "hash3")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})
}

func TestPassword(t *testing.T) {
	t.Run("hash and verify", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery")
		require.NoError(t, err)
		assert.True(t, CheckPassword(hash, "correct horse battery"))
		assert.False(t, CheckPassword(hash, "wrong password"))
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		_, err := HashPassword("short")
		assert.Error(t, err)
	})
}
