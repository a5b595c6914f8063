package sham

import (
	"fmt"

	"github.com/cdfmlr/sham/fixedpoint"
	log "github.com/sirupsen/logrus"
)

// Tid 是线程标识符
type Tid int

// TidError 表示创建线程失败
const TidError Tid = -1

// 线程优先级，数字越大越优先
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

// nice 的取值范围（仅 MLFQS）
const (
	NiceMin     = -20
	NiceDefault = 0
	NiceMax     = 20
)

// Status 是线程的状态
type Status int

const (
	StatusRunning Status = iota
	StatusReady
	StatusBlocked
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusReady:
		return "ready"
	case StatusBlocked:
		return "blocked"
	case StatusDying:
		return "dying"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ThreadFunc 是线程要运行的内容。
// 返回即线程结束（相当于调用 Exit）。
type ThreadFunc func(aux interface{})

// membership 记录线程当前挂在哪个容器里。
// 一个线程任何时刻最多属于一个容器，插入/移除时都会校验。
type membership int

const (
	inNone membership = iota
	inRunning
	inReady
	inSleep
	inWait
)

func (m membership) String() string {
	return [...]string{"none", "running", "ready", "sleep", "wait"}[m]
}

// Thread 线程：一个可以被调度到 CPU 上跑的东西。
// 字段只在持有 CPU 的执行流里读写，外部请用方法读。
type Thread struct {
	tid    Tid
	name   string
	status Status

	// priority 是当前的有效优先级，basePriority 是创建时或 SetPriority 设置的优先级，
	// 捐赠结束后回到 basePriority。
	priority     int
	basePriority int

	// MLFQS
	nice      int
	recentCPU fixedpoint.Value

	// 睡眠到第几个 tick（只在睡眠时有效）
	wakeupTick int64

	// 优先级捐赠
	waitingOn DonationSite
	donors    []*Thread

	queue membership
	slot  int

	fn      ThreadFunc
	aux     interface{}
	resume  chan struct{}
	started bool
}

func newThread(name string, priority int, fn ThreadFunc, aux interface{}) *Thread {
	return &Thread{
		name:         name,
		status:       StatusBlocked,
		priority:     priority,
		basePriority: priority,
		nice:         NiceDefault,
		fn:           fn,
		aux:          aux,
		resume:       make(chan struct{}, 1),
		slot:         -1,
	}
}

func (t *Thread) Tid() Tid                    { return t.tid }
func (t *Thread) Name() string                { return t.name }
func (t *Thread) Status() Status              { return t.status }
func (t *Thread) Priority() int               { return t.priority }
func (t *Thread) BasePriority() int           { return t.basePriority }
func (t *Thread) Nice() int                   { return t.nice }
func (t *Thread) RecentCPU() fixedpoint.Value { return t.recentCPU }
func (t *Thread) WakeupTick() int64           { return t.wakeupTick }
func (t *Thread) WaitingOn() DonationSite     { return t.waitingOn }

// Donors 返回正在向 t 捐赠优先级的线程，按优先级从高到低。
func (t *Thread) Donors() []*Thread {
	return append([]*Thread(nil), t.donors...)
}

func (t *Thread) String() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%d)", t.name, t.tid)
}

// fields 是打日志用的
func (t *Thread) fields() log.Fields {
	return log.Fields{
		"tid":      t.tid,
		"thread":   t.name,
		"priority": t.priority,
		"status":   t.status.String(),
	}
}
