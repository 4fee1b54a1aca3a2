package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// secretKey 是一个全局变量，用于存储服务器在启动时生成的32字节密钥。
var secretKey []byte

// ErrInvalidToken 表示令牌格式错误、签名不匹配或已过期。
var ErrInvalidToken = errors.New("无效的会话令牌")

// SessionPayload 定义了会话令牌中被签名的数据结构。
// 它在登录响应中被序列化，并在每个携带Bearer令牌的请求中被还原。
type SessionPayload struct {
	SessionID string `json:"s"`
	UserID    string `json:"u"`
	ExpiresAt int64  `json:"e"`
}

// GenerateSecretKey 生成一个密码学安全的32字节随机密钥。
// 密钥只存在于进程内存中，重启后所有旧令牌自动失效。
func GenerateSecretKey() {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		panic("无法生成安全的密钥: " + err.Error())
	}
	secretKey = key
	fmt.Println("HMAC会话密钥已成功生成。")
}

// SetSecretKey 使用外部提供的密钥（例如来自配置），供多实例部署和测试使用。
func SetSecretKey(key []byte) {
	secretKey = key
}

func sign(payloadBytes []byte) []byte {
	mac := hmac.New(sha256.New, secretKey)
	mac.Write(payloadBytes)
	return mac.Sum(nil)
}

// GenerateSessionToken 为一个给定的SessionPayload生成完整的Bearer令牌。
// 令牌格式为 base64(payload) + "." + base64(HMAC-SHA256签名)。
func GenerateSessionToken(payload SessionPayload) (string, error) {
	// 1. 将payload序列化为JSON字符串
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", errors.New("无法序列化会话payload")
	}

	// 2. 对payload进行签名，并分别Base64编码
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	encodedSignature := base64.RawURLEncoding.EncodeToString(sign(payloadBytes))
	return encodedPayload + "." + encodedSignature, nil
}

// ParseSessionToken 验证令牌的签名与有效期，并还原其payload。
func ParseSessionToken(tokenStr string) (*SessionPayload, error) {
	parts := strings.SplitN(tokenStr, ".", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidToken
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	actualSignature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}

	// 使用 hmac.Equal 进行安全的、时间恒定的比较，防止时序攻击
	if !hmac.Equal(sign(payloadBytes), actualSignature) {
		return nil, ErrInvalidToken
	}

	// 还原payload并检查有效期
	var payload SessionPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if payload.ExpiresAt > 0 && time.Now().Unix() > payload.ExpiresAt {
		return nil, ErrInvalidToken
	}
	return &payload, nil
}
