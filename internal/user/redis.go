package user

// 定义与用户相关的Redis键名
const (
	// SessionKeyPrefix 之后拼接会话ID，Value是用户UUID，带会话TTL。
	// 登出即删除该键，令牌随之失效。
	SessionKeyPrefix = "session:"

	// LoginAttemptKeyPrefix 之后拼接邮箱，Value是窗口期内的失败次数计数。
	LoginAttemptKeyPrefix = "login_attempts:"

	// DirtyUsersKey 是一个Set，存放计数器可能发生漂移的用户UUID，
	// 由hum模块在每次内容写操作后登记，对账任务消费后清除。
	DirtyUsersKey = "user:dirty"
)

// SessionKey 返回某个会话在Redis中的键名。
func SessionKey(sessionID string) string {
	return SessionKeyPrefix + sessionID
}

// LoginAttemptKey 返回某个邮箱的登录失败计数键名。
func LoginAttemptKey(email string) string {
	return LoginAttemptKeyPrefix + email
}
