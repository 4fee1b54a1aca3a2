package user

// AuthError 表示一个身份提供侧的错误。
// Code 沿用提供方风格的错误码，Error() 返回映射表中的用户可读文案。
type AuthError struct {
	Code string
}

func (e *AuthError) Error() string {
	if msg, ok := authErrorMessages[e.Code]; ok {
		return msg
	}
	return "认证服务发生未知错误，请稍后重试"
}

// 身份网关对外暴露的错误集合
var (
	ErrDuplicateEmail     = &AuthError{Code: "auth/email-already-in-use"}
	ErrWeakPassword       = &AuthError{Code: "auth/weak-password"}
	ErrInvalidEmail       = &AuthError{Code: "auth/invalid-email"}
	ErrInvalidCredentials = &AuthError{Code: "auth/wrong-password"}
	ErrUserNotFound       = &AuthError{Code: "auth/user-not-found"}
	ErrTooManyAttempts    = &AuthError{Code: "auth/too-many-requests"}
	ErrNetwork            = &AuthError{Code: "auth/network-request-failed"}
	ErrUnauthenticated    = &AuthError{Code: "auth/unauthenticated"}
)

// authErrorMessages 是提供方错误码到用户可读文案的映射表。
// 文案会原样出现在页面的错误横幅里，所以保持完整的句子。
var authErrorMessages = map[string]string{
	"auth/email-already-in-use":   "该邮箱已被注册，请直接登录或使用其他邮箱",
	"auth/weak-password":          "密码强度不足，至少需要6个字符",
	"auth/invalid-email":          "邮箱格式不正确，请检查后重试",
	"auth/wrong-password":         "邮箱或密码不正确",
	"auth/user-not-found":         "该邮箱尚未注册",
	"auth/too-many-requests":      "登录尝试过于频繁，请稍后再试",
	"auth/network-request-failed": "网络异常，请检查连接后重试",
	"auth/unauthenticated":        "请先登录",
}
