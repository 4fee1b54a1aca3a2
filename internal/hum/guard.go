package hum

import "sync"

// inflightGuard 实现按实体的在途互斥：同一哼唱、同一用户
// 在任意时刻最多允许一个未完成的点赞变更，避免快速连点造成的丢失更新。
type inflightGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

var likeGuard = &inflightGuard{active: make(map[string]bool)}

// tryAcquire 尝试占用一个键，已被占用时返回false。
func (g *inflightGuard) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[key] {
		return false
	}
	g.active[key] = true
	return true
}

// release 释放一个键。
func (g *inflightGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}
