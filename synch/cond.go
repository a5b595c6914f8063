package synch

import (
	"sort"

	"github.com/cdfmlr/sham"
)

// condWaiter 每个等待者一个私有的信号量
type condWaiter struct {
	sema   *Semaphore
	thread *sham.Thread
}

// Cond 条件变量（Mesa 语义）：
// Signal 只是把等待者叫醒，醒来的线程要重新拿锁，条件可能又不成立了，调用者应当循环检查。
type Cond struct {
	k       Kernel
	waiters []*condWaiter
}

// NewCond 新建一个条件变量
func NewCond(k Kernel) *Cond {
	return &Cond{k: k}
}

// Wait 原子地放开 lock 并等待 Signal，醒来后重新拿到 lock 再返回。
// 调用时必须持有 lock。
func (c *Cond) Wait(lock *Lock) {
	if c.k.InIntr() {
		c.k.Panicf("cond wait in interrupt context")
	}
	if !lock.HeldByCurrent() {
		c.k.Panicf("cond wait: lock %s not held by current thread", lock.name)
	}

	w := &condWaiter{
		sema:   NewSemaphore(c.k, 0),
		thread: c.k.Current(),
	}
	c.waiters = append(c.waiters, w)
	lock.Release()
	w.sema.Down()
	lock.Acquire()
}

// Signal 叫醒一个等待者：优先级最高的，同优先级先来的。调用时必须持有 lock。
func (c *Cond) Signal(lock *Lock) {
	if c.k.InIntr() {
		c.k.Panicf("cond signal in interrupt context")
	}
	if !lock.HeldByCurrent() {
		c.k.Panicf("cond signal: lock %s not held by current thread", lock.name)
	}
	if len(c.waiters) == 0 {
		return
	}

	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].thread.Priority() > c.waiters[j].thread.Priority()
	})
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	w.sema.Up()
}

// Broadcast 叫醒所有等待者。调用时必须持有 lock。
func (c *Cond) Broadcast(lock *Lock) {
	for len(c.waiters) > 0 {
		c.Signal(lock)
	}
}

// Waiters 返回等待者数量
func (c *Cond) Waiters() int {
	return len(c.waiters)
}
