package session

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofyan2108/codeheaven-ta/internal/apperror"
)

// signTestToken builds a realistic access token. The signing secret is
// irrelevant — the session layer never verifies signatures — but signing
// with HS256 produces the same three-part shape the backend issues.
func signTestToken(t *testing.T, sub string, metadata map[string]any) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if metadata != nil {
		claims["user_metadata"] = metadata
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestFromAccessToken(t *testing.T) {
	raw := signTestToken(t, "user-1", map[string]any{
		"full_name":  "Sofyan",
		"avatar_url": "https://example.com/a.png",
	})

	sess, err := FromAccessToken(raw)
	require.NoError(t, err)

	assert.Equal(t, "user-1", sess.UserID())
	assert.Equal(t, "Sofyan", sess.FullName())
	assert.Equal(t, "https://example.com/a.png", sess.AvatarURL())

	tok, err := sess.Token()
	require.NoError(t, err)
	assert.Equal(t, raw, tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
}

func TestFromAccessTokenWithoutMetadata(t *testing.T) {
	sess, err := FromAccessToken(signTestToken(t, "user-2", nil))
	require.NoError(t, err)

	assert.Equal(t, "user-2", sess.UserID())
	assert.Empty(t, sess.FullName())
}

func TestFromAccessTokenRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "whitespace", raw: "   "},
		{name: "not a JWT", raw: "definitely-not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromAccessToken(tt.raw)
			assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
		})
	}
}

func TestFromAccessTokenRequiresSubject(t *testing.T) {
	_, err := FromAccessToken(signTestToken(t, "", nil))
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}

func TestAnonymous(t *testing.T) {
	var s Session = Anonymous{}

	assert.Empty(t, s.UserID())
	_, err := s.Token()
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
}
