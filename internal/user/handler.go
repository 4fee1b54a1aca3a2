package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SignupRequestBody 定义了注册请求体的JSON结构
type SignupRequestBody struct {
	Username string `json:"username"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequestBody 定义了登录请求体的JSON结构
type LoginRequestBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse 是注册/登录成功后的响应
type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// UserResponse 是对外暴露的用户视图
type UserResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	CreatedAt   string `json:"createdAt"`
}

// StatsResponse 是资料页的统计视图
type StatsResponse struct {
	TotalHums       int `json:"totalHums"`
	TotalLikes      int `json:"totalLikes"`
	TotalComments   int `json:"totalComments"`
	SongsIdentified int `json:"songsIdentified"`
}

func formatUser(u *User) UserResponse {
	return UserResponse{
		UID:         u.UUID,
		Email:       u.Email,
		Username:    u.ResolvedName(),
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		CreatedAt:   u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// FormatStats 把用户文档的计数器缓存组装成统计视图
func FormatStats(u *User) StatsResponse {
	return StatsResponse{
		TotalHums:       u.TotalHums,
		TotalLikes:      u.TotalLikes,
		TotalComments:   u.TotalComments,
		SongsIdentified: u.SongsIdentified,
	}
}

// respondAuthError 将身份网关的错误映射为HTTP响应。
// 认证类错误一律400/401，其余视为服务端错误。
func respondAuthError(c *gin.Context, err error) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		status := http.StatusBadRequest
		switch authErr {
		case ErrInvalidCredentials, ErrUserNotFound, ErrUnauthenticated:
			status = http.StatusUnauthorized
		case ErrTooManyAttempts:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": authErr.Error()})
		return
	}
	// 非认证类错误（存储、Redis等）统一映射为网络异常文案
	c.JSON(http.StatusInternalServerError, gin.H{"error": ErrNetwork.Error()})
}

// HandleSignup 处理 POST /api/auth/signup
func HandleSignup(c *gin.Context) {
	var body SignupRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	session, err := Signup(body.Username, body.Email, body.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Unix(),
		User:      formatUser(session.User),
	})
}

// HandleLogin 处理 POST /api/auth/login
func HandleLogin(c *gin.Context) {
	var body LoginRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	session, err := Login(body.Email, body.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Unix(),
		User:      formatUser(session.User),
	})
}

// HandleLogout 处理 POST /api/auth/logout
// 远端吊销失败会以500传播给调用方，而不是静默成功。
func HandleLogout(c *gin.Context) {
	tokenStr := BearerToken(c)
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
		return
	}
	if err := Logout(tokenStr); err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

// HandleGetProfile 处理 GET /api/auth/profile
func HandleGetProfile(c *gin.Context) {
	u := CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"user":  formatUser(u),
		"stats": FormatStats(u),
	})
}

// HandleUpdateProfile 处理 PUT /api/auth/profile
func HandleUpdateProfile(c *gin.Context) {
	u := CurrentUser(c)

	var update ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	updated, err := UpdateProfile(u.UUID, update)
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    formatUser(updated),
		"message": "资料已更新",
	})
}
