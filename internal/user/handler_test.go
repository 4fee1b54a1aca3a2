package user

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func recordAuthError(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondAuthError(c, err)
	return w
}

func TestRespondAuthErrorStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, recordAuthError(ErrInvalidCredentials).Code)
	assert.Equal(t, http.StatusUnauthorized, recordAuthError(ErrUserNotFound).Code)
	assert.Equal(t, http.StatusUnauthorized, recordAuthError(ErrUnauthenticated).Code)
	assert.Equal(t, http.StatusTooManyRequests, recordAuthError(ErrTooManyAttempts).Code)
	assert.Equal(t, http.StatusBadRequest, recordAuthError(ErrDuplicateEmail).Code)
	assert.Equal(t, http.StatusBadRequest, recordAuthError(ErrWeakPassword).Code)
}

func TestRespondAuthErrorFallsBackToNetworkMessage(t *testing.T) {
	// 非认证类错误（存储、Redis等）映射为网络异常文案
	w := recordAuthError(errors.New("redis: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), ErrNetwork.Error())
}
