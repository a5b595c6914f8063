// Package synch 是建在 sham 调度器上的同步原语：信号量、锁、条件变量。
//
// 这些原语只依赖调度器暴露的一小组操作（Kernel），
// 用「关中断」保护自己的状态：单 CPU 上关了中断就不会被抢占。
package synch

import (
	"github.com/cdfmlr/sham"
)

// Kernel 是同步原语需要的调度器操作，*sham.OS 实现了它。
type Kernel interface {
	Current() *sham.Thread
	Disable() sham.IntrLevel
	Restore(level sham.IntrLevel)
	InIntr() bool

	BlockOn(q *sham.WaitQueue)
	WakeOne(q *sham.WaitQueue) *sham.Thread
	PreemptIfNeeded()

	Donate(site sham.DonationSite)
	Revoke(site sham.DonationSite)
	Acquired(site sham.DonationSite)

	Create(name string, priority int, fn sham.ThreadFunc, aux interface{}) (sham.Tid, error)
	Panicf(format string, args ...interface{})
}

var _ Kernel = (*sham.OS)(nil)
