package user

import (
	"fmt"

	"github.com/hummify/hummify-backend/internal/platform/database"
)

// migrateDB 负责自动迁移用户表结构
func migrateDB() error {
	if err := database.DB.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("无法迁移user表: %w", err)
	}
	fmt.Println("User数据库表迁移成功。")
	return nil
}

// PrimeCachedDB 是user模块的初始化总入口。
// 会话和登录限流数据只存在于Redis中并自带TTL，无需预热。
func PrimeCachedDB() error {
	return migrateDB()
}
