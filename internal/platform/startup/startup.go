package startup

import (
	"fmt"

	"github.com/hummify/hummify-backend/internal/hum"
	"github.com/hummify/hummify-backend/internal/platform/metadata"
	"github.com/hummify/hummify-backend/internal/user"
)

// InitializeApplication 是应用首次启动时执行的总入口
func InitializeApplication() error {
	fmt.Println("开始应用首次初始化...")

	if err := metadata.PrimeCachedDB(); err != nil {
		return err
	}
	if err := user.PrimeCachedDB(); err != nil {
		return err
	}
	if err := hum.PrimeCachedDB(); err != nil {
		return err
	}

	fmt.Println("应用初始化完成！")
	return nil
}

// RebuildCache 是一个专门用于在运行时热重建Redis缓存的函数。
// 会话键不重建：Redis重启后旧会话自然失效，用户重新登录即可。
func RebuildCache() error {
	fmt.Println("开始缓存热重建...")

	if err := hum.WarmupCache(); err != nil {
		return err
	}

	fmt.Println("缓存热重建完成。")
	return nil
}
