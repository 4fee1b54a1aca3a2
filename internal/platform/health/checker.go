package health

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/hummify/hummify-backend/internal/matcher"
	"github.com/hummify/hummify-backend/internal/platform/database"
	"github.com/hummify/hummify-backend/internal/platform/startup"
	"github.com/hummify/hummify-backend/pkg/lifecycle"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

// matcherClient 是健康探测使用的识别服务客户端，在启动时注入
var matcherClient *matcher.Client

// UseMatcherClient 在启动阶段注入识别服务客户端
func UseMatcherClient(c *matcher.Client) {
	matcherClient = c
}

// getRedisRunID 从Redis服务器信息中提取run_id
func getRedisRunID() (string, error) {
	ctx, cancel := context.WithTimeout(database.Ctx, pingTimeout)
	defer cancel()
	info, err := database.RDB.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	re := regexp.MustCompile(`run_id:([a-f0-9]+)`)
	matches := re.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", fmt.Errorf("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// InitializeRunID 在应用启动时执行一次，获取并设置初始的run_id。
func InitializeRunID() {
	fmt.Println("正在获取初始Redis Run ID...")
	runID, err := getRedisRunID()
	if err != nil {
		panic(fmt.Sprintf("无法在启动时获取Redis Run ID，请检查Redis服务: %v", err))
	}
	database.SetInitialRunID(runID)
	fmt.Printf("获取初始Redis Run ID成功: %s\n", runID)
}

// triggerAtomicRebuild 执行一次原子的、自校验的缓存重建。
// 它确保只有在重建期间Redis没有再次重启的情况下，才认为重建成功。
func triggerAtomicRebuild(idBeforeRebuild string) bool {
	fmt.Println("健康检查: 正在触发缓存热重建...")
	if err := startup.RebuildCache(); err != nil {
		fmt.Printf("健康检查错误: 缓存热重建失败: %v\n", err)
		return false
	}

	// 重建后，再次检查run_id以确认原子性
	idAfterRebuild, err := getRedisRunID()
	if err != nil {
		fmt.Println("健康检查错误: 缓存重建后无法连接到Redis，重建无效。")
		return false
	}
	if idBeforeRebuild != idAfterRebuild {
		fmt.Printf("健康检查错误: 缓存重建期间检测到Redis再次重启 (run_id: %s -> %s)。重建无效。\n", idBeforeRebuild, idAfterRebuild)
		return false
	}

	fmt.Println("健康检查: 缓存热重建成功并通过原子性校验。")
	return true
}

// PerformRedisCheck 执行一次完整的Redis健康检查和可能的修复操作。
func PerformRedisCheck() {
	currentRunID, err := getRedisRunID()
	if err != nil {
		// 无法连接到Redis，直接标记为不可用
		database.UpdateRedisStatus(false, "")
		return
	}

	lastKnownRunID := database.GetLastKnownRunID()

	if currentRunID != lastKnownRunID {
		// 检测到Redis重启，Feed索引和点赞者集合已丢失，触发原子重建
		if triggerAtomicRebuild(currentRunID) {
			database.UpdateRedisStatus(true, currentRunID)
		} else {
			database.UpdateRedisStatus(false, "")
		}
	} else {
		// run_id未变，说明服务健康
		database.UpdateRedisStatus(true, currentRunID)
	}
}

// PerformMatcherCheck 探测一次识别服务，翻转其能力标记。
// 标记为不可用后，增强Feed自动降级到文档库。
func PerformMatcherCheck(ctx context.Context) {
	if matcherClient == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	database.UpdateMatcherStatus(matcherClient.Ping(pingCtx) == nil)
}

// StartHealthCheck 启动一个后台Goroutine来定期、阻塞式地执行健康检查。
func StartHealthCheck(handle *lifecycle.Handle) {
	defer handle.Close()
	fmt.Println("高级健康检查器已启动。")

	for {
		if err := handle.Sleep(checkInterval); err != nil {
			fmt.Println("健康检查器: 收到停机信号，正在关闭...")
			return
		}
		PerformRedisCheck()
		PerformMatcherCheck(handle.Ctx())
	}
}
