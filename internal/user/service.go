package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hummify/hummify-backend/internal/platform/config"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/pkg/token"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Session 是登录/注册成功后返回给调用方的会话信息
type Session struct {
	Token     string
	User      *User
	ExpiresAt time.Time
}

// validateEmail 做本地的邮箱格式校验，不触达任何网络
func validateEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t\n")
}

// Signup 创建身份记录和带零值计数器的用户文档。
// 校验失败在任何写操作之前返回，身份记录和文档在同一个事务中落库。
func Signup(username, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	// 1. 本地校验，不触达数据库
	if !validateEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}

	// 2. 生成主键和密码哈希
	newUUID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成UUID v7: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), config.Cfg.Auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("无法哈希密码: %w", err)
	}

	newUser := &User{
		UUID:         newUUID.String(),
		Email:        email,
		PasswordHash: string(hash),
		Username:     username,
		DisplayName:  username,
		LastLoginAt:  time.Now(),
	}

	// 3. 在一个事务中创建用户行；计数器字段的零值即"全部归零"
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateEmail
		}
		return tx.Create(newUser).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("无法创建用户: %w", err)
	}

	// 4. 注册即登录，与身份提供方的行为保持一致
	return createSession(newUser)
}

// Login 验证凭证，加载用户文档，合并显示名（存储的用户名优先），
// 并铸造一个新的会话令牌。
func Login(email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// 1. 窗口期内失败次数超限时直接拒绝
	attemptKey := LoginAttemptKey(email)
	attempts, err := database.RDB.Get(database.Ctx, attemptKey).Int()
	if err == nil && attempts >= config.Cfg.Auth.MaxLoginAttempts {
		return nil, ErrTooManyAttempts
	}

	// 2. 查找身份记录
	var u User
	if err := database.DB.Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	// 3. 校验密码；失败时登记一次尝试
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		pipe := database.RDB.Pipeline()
		pipe.Incr(database.Ctx, attemptKey)
		pipe.Expire(database.Ctx, attemptKey, config.Cfg.Auth.LoginAttemptWindow)
		_, _ = pipe.Exec(database.Ctx)
		return nil, ErrInvalidCredentials
	}

	// 4. 成功后清除失败计数并更新最后登录时间
	_ = database.RDB.Del(database.Ctx, attemptKey).Err()
	u.LastLoginAt = time.Now()
	if err := database.DB.Model(&User{}).Where("uuid = ?", u.UUID).
		Update("last_login_at", u.LastLoginAt).Error; err != nil {
		fmt.Printf("警告: 更新最后登录时间失败: %v\n", err)
	}

	return createSession(&u)
}

// createSession 在Redis中登记一个会话并签发Bearer令牌
func createSession(u *User) (*Session, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成会话ID: %w", err)
	}

	ttl := config.Cfg.Auth.SessionTTL
	expiresAt := time.Now().Add(ttl)

	// 会话登记在Redis中，登出时删除即可吊销令牌
	if err := database.RDB.Set(database.Ctx, SessionKey(sessionID.String()), u.UUID, ttl).Err(); err != nil {
		return nil, fmt.Errorf("无法登记会话: %w", err)
	}

	tokenStr, err := token.GenerateSessionToken(token.SessionPayload{
		SessionID: sessionID.String(),
		UserID:    u.UUID,
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("无法签发会话令牌: %w", err)
	}

	return &Session{Token: tokenStr, User: u, ExpiresAt: expiresAt}, nil
}

// Logout 吊销令牌对应的会话。
// 远端（Redis）失败必须向调用方传播，不允许只在本地静默成功。
func Logout(tokenStr string) error {
	payload, err := token.ParseSessionToken(tokenStr)
	if err != nil {
		return ErrUnauthenticated
	}
	if err := database.RDB.Del(database.Ctx, SessionKey(payload.SessionID)).Err(); err != nil {
		return fmt.Errorf("无法吊销会话: %w", err)
	}
	return nil
}

// ResolveSession 验证令牌并重新拉取用户文档。
// 这是全进程"当前用户"的唯一来源：每次会话状态变化（请求到达）
// 都会重新加载文档并合并显示名。
func ResolveSession(tokenStr string) (*User, error) {
	payload, err := token.ParseSessionToken(tokenStr)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	// 会话必须仍然登记在Redis中（未被登出吊销）
	uid, err := database.RDB.Get(database.Ctx, SessionKey(payload.SessionID)).Result()
	if err != nil || uid != payload.UserID {
		return nil, ErrUnauthenticated
	}

	var u User
	if err := database.DB.Where("uuid = ?", payload.UserID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("加载用户文档失败: %w", err)
	}
	return &u, nil
}

// GetByUUID 按主键加载用户文档
func GetByUUID(uid string) (*User, error) {
	var u User
	if err := database.DB.Where("uuid = ?", uid).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("加载用户文档失败: %w", err)
	}
	return &u, nil
}

// ProfileUpdate 限定了用户可以自行修改的资料字段
type ProfileUpdate struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
}

// UpdateProfile 更新当前用户的资料文档，只允许白名单内的字段
func UpdateProfile(uid string, update ProfileUpdate) (*User, error) {
	fields := map[string]interface{}{}
	if update.Username != nil && strings.TrimSpace(*update.Username) != "" {
		fields["username"] = strings.TrimSpace(*update.Username)
	}
	if update.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*update.DisplayName)
	}
	if update.Bio != nil {
		fields["bio"] = *update.Bio
	}

	if len(fields) > 0 {
		if err := database.DB.Model(&User{}).Where("uuid = ?", uid).Updates(fields).Error; err != nil {
			return nil, fmt.Errorf("更新用户资料失败: %w", err)
		}
	}
	return GetByUUID(uid)
}
