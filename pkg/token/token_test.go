package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseSessionToken(t *testing.T) {
	SetSecretKey([]byte("test-secret-key-32-bytes-long!!!"))

	payload := SessionPayload{
		SessionID: "session-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}

	tokenStr, err := GenerateSessionToken(payload)
	require.NoError(t, err)
	assert.Contains(t, tokenStr, ".")

	parsed, err := ParseSessionToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, payload.SessionID, parsed.SessionID)
	assert.Equal(t, payload.UserID, parsed.UserID)
	assert.Equal(t, payload.ExpiresAt, parsed.ExpiresAt)
}

func TestParseSessionTokenRejectsTampering(t *testing.T) {
	SetSecretKey([]byte("test-secret-key-32-bytes-long!!!"))

	tokenStr, err := GenerateSessionToken(SessionPayload{
		SessionID: "session-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	// 篡改payload部分，签名应当不再匹配
	parts := strings.SplitN(tokenStr, ".", 2)
	tampered := parts[0] + "x." + parts[1]
	_, err = ParseSessionToken(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// 换一把密钥签发的令牌同样无效
	SetSecretKey([]byte("another-secret-key-32-bytes-long"))
	_, err = ParseSessionToken(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseSessionTokenRejectsExpired(t *testing.T) {
	SetSecretKey([]byte("test-secret-key-32-bytes-long!!!"))

	tokenStr, err := GenerateSessionToken(SessionPayload{
		SessionID: "session-1",
		UserID:    "user-1",
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)

	_, err = ParseSessionToken(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseSessionTokenRejectsGarbage(t *testing.T) {
	SetSecretKey([]byte("test-secret-key-32-bytes-long!!!"))

	for _, tokenStr := range []string{"", "no-dot", "!!!.###", "a.b.c"} {
		_, err := ParseSessionToken(tokenStr)
		assert.ErrorIs(t, err, ErrInvalidToken, "token: %q", tokenStr)
	}
}
