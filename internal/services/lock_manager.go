// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 按剧本划分的互斥锁
type LockManager struct {
	scriptLocks map[string]*lockEntry
	globalLock  sync.Mutex
	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// lockEntry 锁及其引用计数，引用计数大于 0 的锁不会被清理
type lockEntry struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// NewLockManager 创建锁管理器，空闲超过 idleTimeout 的锁会被定期清理
func NewLockManager(idleTimeout time.Duration) *LockManager {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	lm := &LockManager{
		scriptLocks: make(map[string]*lockEntry),
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
	}
	go lm.cleanupLoop()
	return lm
}

func (lm *LockManager) acquire(scriptID string) *lockEntry {
	lm.globalLock.Lock()
	entry, ok := lm.scriptLocks[scriptID]
	if !ok {
		entry = &lockEntry{}
		lm.scriptLocks[scriptID] = entry
	}
	entry.refs++
	entry.lastUsed = time.Now()
	lm.globalLock.Unlock()

	entry.mu.Lock()
	return entry
}

func (lm *LockManager) release(entry *lockEntry) {
	entry.mu.Unlock()

	lm.globalLock.Lock()
	entry.refs--
	entry.lastUsed = time.Now()
	lm.globalLock.Unlock()
}

// ExecuteWithScriptLock 在剧本锁保护下执行 fn，同一剧本的操作串行执行
func (lm *LockManager) ExecuteWithScriptLock(scriptID string, fn func() error) error {
	entry := lm.acquire(scriptID)
	defer lm.release(entry)
	return fn()
}

// LockCount 当前持有的锁数量
func (lm *LockManager) LockCount() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.scriptLocks)
}

// Stop 停止后台清理
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}

func (lm *LockManager) cleanupLoop() {
	ticker := time.NewTicker(lm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-lm.stop:
			return
		case <-ticker.C:
			lm.cleanupIdle(time.Now())
		}
	}
}

func (lm *LockManager) cleanupIdle(now time.Time) int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	removed := 0
	for scriptID, entry := range lm.scriptLocks {
		if entry.refs == 0 && now.Sub(entry.lastUsed) > lm.idleTimeout {
			delete(lm.scriptLocks, scriptID)
			removed++
		}
	}
	return removed
}
