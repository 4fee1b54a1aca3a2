package user

import (
	"time"

	"gorm.io/gorm"
)

// User 定义了用户在文档库中的持久化模型。
// 身份记录（邮箱+密码哈希）和个人资料文档在这里合并为一行，
// 统计字段是派生聚合的最终一致缓存，由hum模块在内容操作中顺带维护，
// 并由后台对账任务定期修复。
type User struct {
	// UUID 是用户的主键，UUIDv7字符串
	UUID string `gorm:"primarykey;type:varchar(36)" json:"uid"`

	// Email 是登录凭证，全局唯一
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	// PasswordHash 是bcrypt哈希后的密码，永不外发
	PasswordHash string `gorm:"not null" json:"-"`

	// Username 是用户选择的名字；展示时优先于DisplayName
	Username string `gorm:"not null" json:"username"`

	// DisplayName 是身份记录侧的显示名，注册时与Username一致
	DisplayName string `json:"displayName"`

	// Bio 是用户简介
	Bio string `json:"bio"`

	// --- 以下是派生聚合的计数器缓存 ---

	// TotalHums 是用户发布的哼唱总数
	TotalHums int `json:"totalHums"`

	// TotalLikes 是用户的哼唱收到的点赞总数
	TotalLikes int `json:"totalLikes"`

	// TotalComments 是用户发出的评论总数
	TotalComments int `json:"totalComments"`

	// SongsIdentified 是用户成功识别出歌曲的次数
	SongsIdentified int `json:"songsIdentified"`

	// LastLoginAt 在每次登录时被更新
	LastLoginAt time.Time `json:"lastLoginAt"`

	// 部分gorm.Model，由GORM自动管理
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ResolvedName 返回对外展示的名字：存储的Username存在时优先，
// 否则回落到身份记录的DisplayName。
func (u *User) ResolvedName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return "Anonymous"
}
