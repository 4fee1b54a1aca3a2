package user

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/open", CurrentUserMiddleware(), func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			c.JSON(http.StatusOK, gin.H{"user": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": u.UUID})
	})
	router.GET("/protected", CurrentUserMiddleware(), RequireUserMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentUser(c).UUID})
	})
	return router
}

func TestMiddlewareAllowsAnonymousOnOpenRoutes(t *testing.T) {
	setupTestEnv(t)
	router := newAuthedRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user":null`)
}

func TestMiddlewareRejectsAnonymousOnProtectedRoutes(t *testing.T) {
	setupTestEnv(t)
	router := newAuthedRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 格式正确但已失效的令牌同样被拒绝
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bogus.token")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareResolvesSessionOnEachRequest(t *testing.T) {
	setupTestEnv(t)
	router := newAuthedRouter()

	session, err := Signup("alice", "alice@example.com", "password123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), session.User.UUID)

	// 登出吊销会话后，同一令牌立即失效
	require.NoError(t, Logout(session.Token))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
