package synch

import (
	"github.com/cdfmlr/sham"
	log "github.com/sirupsen/logrus"
)

// Lock 锁：初值为 1 的信号量加上持有者。
// 同一时刻最多一个线程持有；谁拿的谁放；不可重入。
// 等锁的线程会把优先级捐给持有者（见 sham.OS.Donate）。
type Lock struct {
	k      Kernel
	name   string
	holder *sham.Thread
	sema   *Semaphore
}

// NewLock 新建一个锁
func NewLock(k Kernel, name string) *Lock {
	return &Lock{
		k:    k,
		name: name,
		sema: NewSemaphore(k, 1),
	}
}

// Holder 返回持有者，没人持有时返回 nil
func (l *Lock) Holder() *sham.Thread {
	return l.holder
}

func (l *Lock) String() string {
	return l.name
}

// Acquire 拿锁，必要时阻塞等待。
// 锁被别人拿着时，先把优先级捐给持有者，再去等。
func (l *Lock) Acquire() {
	if l.k.InIntr() {
		l.k.Panicf("acquire lock %s in interrupt context", l.name)
	}
	if l.HeldByCurrent() {
		l.k.Panicf("acquire lock %s: already held by current thread", l.name)
	}

	old := l.k.Disable()
	if l.holder != nil {
		log.WithField("lock", l.name).WithField("holder", l.holder.String()).
			Debug("[SYNCH] Lock contended")
		l.k.Donate(l)
	}
	l.sema.Down()
	l.k.Acquired(l)
	l.holder = l.k.Current()
	l.k.Restore(old)
}

// TryAcquire 锁空着就拿下并返回 true，否则立即返回 false
func (l *Lock) TryAcquire() bool {
	if l.HeldByCurrent() {
		l.k.Panicf("try acquire lock %s: already held by current thread", l.name)
	}

	old := l.k.Disable()
	ok := l.sema.TryDown()
	if ok {
		l.holder = l.k.Current()
	}
	l.k.Restore(old)
	return ok
}

// Release 放锁。只有持有者能放。
// 因为这把锁而来的捐赠随之撤销，优先级回落到剩下的捐赠者和基础优先级中的最高者。
func (l *Lock) Release() {
	if !l.HeldByCurrent() {
		l.k.Panicf("release lock %s: not held by current thread", l.name)
	}

	old := l.k.Disable()
	l.k.Revoke(l)
	l.holder = nil
	l.sema.Up()
	l.k.Restore(old)
}

// HeldByCurrent 当前线程是否持有这把锁
func (l *Lock) HeldByCurrent() bool {
	return l.holder != nil && l.holder == l.k.Current()
}
