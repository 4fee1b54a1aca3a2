package hum

import (
	"fmt"

	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/redis/go-redis/v9"
)

// migrateDB 负责自动迁移哼唱相关的表结构
func migrateDB() error {
	if err := database.DB.AutoMigrate(&Hum{}, &Comment{}, &HumLike{}); err != nil {
		return fmt.Errorf("无法迁移hum相关表: %w", err)
	}
	fmt.Println("Hum数据库表迁移成功。")
	return nil
}

// WarmupCache 从文档库重建Redis中的Feed索引和点赞者Set。
// 在启动时和Redis重启恢复后调用。
func WarmupCache() error {
	// 1. 重建Feed索引
	var hums []Hum
	if err := database.DB.Select("id", "created_at").Find(&hums).Error; err != nil {
		return fmt.Errorf("无法从文档库读取哼唱列表: %w", err)
	}

	pipe := database.RDB.Pipeline()
	pipe.Del(database.Ctx, FeedKey)
	if len(hums) > 0 {
		members := make([]redis.Z, len(hums))
		for i, h := range hums {
			members[i] = redis.Z{Score: float64(h.CreatedAt.UnixMilli()), Member: h.ID}
		}
		pipe.ZAdd(database.Ctx, FeedKey, members...)
	}
	if _, err := pipe.Exec(database.Ctx); err != nil {
		return fmt.Errorf("预热Feed索引失败: %w", err)
	}

	// 2. 重建点赞者Set
	var likes []HumLike
	if err := database.DB.Find(&likes).Error; err != nil {
		return fmt.Errorf("无法从文档库读取点赞行: %w", err)
	}
	byHum := make(map[string][]interface{})
	for _, l := range likes {
		byHum[l.HumID] = append(byHum[l.HumID], l.UserID)
	}

	pipe = database.RDB.Pipeline()
	for _, h := range hums {
		pipe.Del(database.Ctx, LikersKey(h.ID))
	}
	for humID, likers := range byHum {
		pipe.SAdd(database.Ctx, LikersKey(humID), likers...)
	}
	if _, err := pipe.Exec(database.Ctx); err != nil {
		return fmt.Errorf("预热点赞者集合失败: %w", err)
	}

	fmt.Printf("成功预热 %d 条哼唱、%d 条点赞到Redis。\n", len(hums), len(likes))
	return nil
}

// PrimeCachedDB 是hum模块的初始化总入口
func PrimeCachedDB() error {
	if err := migrateDB(); err != nil {
		return err
	}
	return WarmupCache()
}
