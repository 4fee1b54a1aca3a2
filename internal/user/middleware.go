package user

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// CurrentUserKey 是gin上下文中当前用户文档的键名
	CurrentUserKey = "currentUser"
	// BearerTokenKey 是gin上下文中原始Bearer令牌的键名
	BearerTokenKey = "bearerToken"
)

// bearerFromHeader 从Authorization头中剥出Bearer令牌
func bearerFromHeader(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// CurrentUserMiddleware 是全进程"当前用户"的唯一写入者。
// 每个请求都重新解析令牌并拉取用户文档；匿名请求原样放行，不设置任何用户。
func CurrentUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerFromHeader(c)
		if tokenStr == "" {
			c.Next()
			return
		}
		c.Set(BearerTokenKey, tokenStr)

		u, err := ResolveSession(tokenStr)
		if err != nil {
			// 令牌无效等同于匿名；是否拒绝由RequireUserMiddleware决定
			c.Next()
			return
		}
		c.Set(CurrentUserKey, u)
		c.Next()
	}
}

// RequireUserMiddleware 拒绝所有未携带有效会话的请求。
// 客户端收到401后应将会话重定向到登录页。
func RequireUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CurrentUserKey); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		c.Next()
	}
}

// CurrentUser 从gin上下文中取出当前用户文档，匿名请求返回nil
func CurrentUser(c *gin.Context) *User {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*User)
	return u
}

// BearerToken 返回当前请求携带的原始令牌，供向外部服务转发时使用
func BearerToken(c *gin.Context) string {
	v, ok := c.Get(BearerTokenKey)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
