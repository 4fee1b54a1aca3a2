package hum

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hummify/hummify-backend/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newJSONContext 构造一个携带JSON请求体和路径参数的gin测试上下文
func newJSONContext(t *testing.T, body, humID string, author *user.User) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: humID}}
	c.Set(user.CurrentUserKey, author)
	return c, w
}

func TestHandleRemixDefaultsSpeed(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	original, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "Foo", "")
	require.NoError(t, err)

	// 未提供speed的请求体使用缺省值1.0，而不是被0拒绝
	c, w := newJSONContext(t, `{"pitch":2}`, original.ID, author)
	HandleRemix(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "Remix of Foo")
	assert.Contains(t, w.Body.String(), "speed: 1x")
}

func TestHandleRemixRejectsOutOfRangeParams(t *testing.T) {
	setupTestEnv(t)
	author := newTestUser(t, "alice")

	original, err := Upload(author, []byte("audio"), "audio/wav", "hum.wav", "Foo", "")
	require.NoError(t, err)

	c, w := newJSONContext(t, `{"pitch":13}`, original.ID, author)
	HandleRemix(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newJSONContext(t, `{"speed":0.1}`, original.ID, author)
	HandleRemix(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
