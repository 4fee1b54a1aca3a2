package feed

import (
	"context"
	"fmt"

	"github.com/hummify/hummify-backend/internal/hum"
	"github.com/hummify/hummify-backend/internal/matcher"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"golang.org/x/sync/singleflight"
)

// Source 标记一次Feed加载最终使用的数据来源
type Source string

const (
	// SourceEnhanced 表示数据来自识别服务的增强Feed
	SourceEnhanced Source = "enhanced"
	// SourceFallback 表示数据来自文档库的回退路径
	SourceFallback Source = "fallback"
)

// Result 是一次Feed加载的带标记结果
type Result struct {
	Source Source
	Hums   []hum.FeedEntry
}

// backendClient 是模块级的识别服务客户端，在启动时注入
var backendClient *matcher.Client

// UseMatcherClient 在启动阶段注入识别服务客户端
func UseMatcherClient(c *matcher.Client) {
	backendClient = c
}

// loadGroup 合并并发的相同Feed加载，避免同一瞬间重复打到后端
var loadGroup singleflight.Group

// Load 执行两层回退链的Feed加载。
// 第一层（增强Feed）每次用户触发最多尝试一次，失败只记录为回退事件；
// 第二层（文档库）的失败才是调用方看到的最终错误。这不是重试循环。
func Load(ctx context.Context, requesterID, bearer string, enhanced bool, limit int) (*Result, error) {
	key := fmt.Sprintf("%s|%t|%d", requesterID, enhanced, limit)
	v, err, _ := loadGroup.Do(key, func() (interface{}, error) {
		// 合并执行与首个调用方的生命周期解耦：
		// 首个请求中途取消时，其余被合并的调用方不应跟着失败
		return loadOnce(context.WithoutCancel(ctx), requesterID, bearer, enhanced, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func loadOnce(ctx context.Context, requesterID, bearer string, enhanced bool, limit int) (*Result, error) {
	// 第一层：增强Feed。服务已被健康检查标记为不可用时直接跳过。
	if enhanced && backendClient != nil && database.IsMatcherHealthy() {
		entries, err := backendClient.EnhancedFeed(ctx, bearer)
		if err == nil {
			return &Result{Source: SourceEnhanced, Hums: entries}, nil
		}
		// 回退事件只进日志，绝不作为用户可见错误
		fmt.Printf("Feed回退: 增强Feed失败，改用文档库: %v\n", err)
	}

	// 第二层：文档库。这里的失败向调用方传播。
	entries, err := hum.ListFeed(requesterID, limit)
	if err != nil {
		return nil, err
	}
	return &Result{Source: SourceFallback, Hums: entries}, nil
}
