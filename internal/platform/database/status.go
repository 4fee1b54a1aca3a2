package database

import (
	"fmt"
	"sync"
)

// statusManager 负责线程安全地管理和提供系统的健康状态。
type statusManager struct {
	mu               sync.RWMutex
	isRedisHealthy   bool
	isMatcherHealthy bool
	lastKnownRunID   string
}

// 全局的状态管理器实例
var globalStatus = &statusManager{
	isRedisHealthy:   true, // 默认启动时是健康的
	isMatcherHealthy: true,
}

// IsRedisHealthy 返回当前Redis的健康状态。
func IsRedisHealthy() bool {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.isRedisHealthy
}

// IsMatcherHealthy 返回外部识别/混音服务的健康状态。
// 增强Feed和识别能力在该状态为false时自动降级。
func IsMatcherHealthy() bool {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.isMatcherHealthy
}

// SetInitialRunID 在应用启动时，由main.go调用，用于设置初始的Redis run_id。
func SetInitialRunID(runID string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.lastKnownRunID = runID
}

// UpdateRedisStatus 用于线程安全地更新Redis健康状态。
func UpdateRedisStatus(isHealthy bool, newRunID string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()

	// 只有当状态发生变化时才打印日志
	if globalStatus.isRedisHealthy != isHealthy {
		globalStatus.isRedisHealthy = isHealthy
		if isHealthy {
			fmt.Println("健康检查: Redis服务状态已更新为 [可用]")
		} else {
			fmt.Println("健康检查警告: Redis服务状态已更新为 [不可用]")
		}
	}

	// 只有在健康状态下，才更新已知的run_id
	if isHealthy {
		globalStatus.lastKnownRunID = newRunID
	}
}

// UpdateMatcherStatus 用于线程安全地更新外部识别服务的健康状态。
func UpdateMatcherStatus(isHealthy bool) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()

	if globalStatus.isMatcherHealthy != isHealthy {
		globalStatus.isMatcherHealthy = isHealthy
		if isHealthy {
			fmt.Println("健康检查: 识别服务状态已更新为 [可用]")
		} else {
			fmt.Println("健康检查警告: 识别服务状态已更新为 [不可用]，Feed将回退到文档库")
		}
	}
}

// GetLastKnownRunID 用于线程安全地获取已知的run_id。
func GetLastKnownRunID() string {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.lastKnownRunID
}
