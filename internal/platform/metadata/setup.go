package metadata

import (
	"fmt"

	"github.com/hummify/hummify-backend/internal/platform/database"
)

// schemaVersion 是当前文档库结构的版本号，随破坏性迁移递增
const schemaVersion = "1"

// PrimeCachedDB 是metadata模块的初始化入口，负责迁移元数据表
// 并登记当前的结构版本。
func PrimeCachedDB() error {
	if err := database.DB.AutoMigrate(&Metadata{}); err != nil {
		return fmt.Errorf("无法迁移metadata表: %w", err)
	}
	if err := SetValue(database.DB, SchemaVersionKey, schemaVersion); err != nil {
		return fmt.Errorf("无法登记结构版本: %w", err)
	}
	fmt.Println("Metadata数据库表迁移成功。")
	return nil
}
