// Package keylock 提供按 key 互斥的锁。
//
// 同一 key 的 Acquire 调用互斥执行，不同 key 之间互不影响。
// 本地实现适用于单实例部署；多实例部署使用 Redis 实现。
package keylock

import (
	"context"
	"sync"
)

// Locker 按 key 互斥的锁
type Locker interface {
	// Acquire 阻塞直到获取 key 对应的锁或 ctx 结束；成功时返回释放函数
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ShiftKey 班次维度的锁 key
func ShiftKey(shiftID string) string { return "shift:" + shiftID }

// WorkerKey 员工维度的锁 key
func WorkerKey(userID string) string { return "worker:" + userID }

// ── 进程内实现 ──

type entry struct {
	ch   chan struct{} // 容量为 1 的信号量，可配合 ctx 取消
	refs int
}

// Local 进程内按 key 互斥锁，无人持有或等待的 key 会被回收
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocal 创建进程内 Locker
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(key, e)
		})
	}, nil
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// size 当前被跟踪的 key 数量
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Acquire2 依次获取两个 key 的锁（按字典序，避免交叉加锁导致死锁）
func Acquire2(ctx context.Context, l Locker, a, b string) (func(), error) {
	if a == b {
		return l.Acquire(ctx, a)
	}
	if b < a {
		a, b = b, a
	}
	releaseA, err := l.Acquire(ctx, a)
	if err != nil {
		return nil, err
	}
	releaseB, err := l.Acquire(ctx, b)
	if err != nil {
		releaseA()
		return nil, err
	}
	return func() {
		releaseB()
		releaseA()
	}, nil
}
