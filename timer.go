package sham

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// HandleTimerInterrupt 处理时钟中断：
// 时钟加一，记账（时间片 / MLFQS），然后叫醒到点的睡眠线程。
func HandleTimerInterrupt(os *OS, data interface{}) {
	os.ticks++
	os.stats.ticks.Inc()
	os.threadTick()
	os.wake(os.ticks)
	os.publish()
}

// threadTick 每个 tick 调用一次，记账并交给调度策略
func (os *OS) threadTick() {
	cur := os.cpu.thread
	if cur == os.idle {
		os.stats.idleTicks.Inc()
	} else {
		os.stats.kernelTicks.Inc()
	}
	os.threadTicks++
	os.Scheduler.tick(os, cur)
}

// Ticks 返回启动以来的 tick 数
func (os *OS) Ticks() int64 {
	return os.ticks
}

// Elapsed 返回从 then 到现在过去了多少 tick
func (os *OS) Elapsed(then int64) int64 {
	return os.ticks - then
}

// Tick 由当前线程发出并立即处理一个时钟中断。
// 用来在虚拟时钟下模拟「跑了一个 tick」，相当于一条指令的执行时间。
func (os *OS) Tick() {
	i, _ := GetInterrupt(TimerInterrupt, nil)
	os.Raise(i)
	os.Checkpoint()
}

/********* 👇 睡眠 👇 ***************/

// Sleep 让当前线程睡 ticks 个 tick。ticks <= 0 时立即返回。
func (os *OS) Sleep(ticks int64) {
	if ticks <= 0 {
		return
	}
	os.assert(!os.cpu.inIntr, "sleep in interrupt context")

	old := os.Disable()
	cur := os.Current()
	if cur == os.idle {
		os.Panicf("idle thread cannot sleep")
	}
	cur.wakeupTick = os.ticks + ticks
	os.vacate(cur)
	os.sleeping.insert(cur)

	os.log.WithFields(cur.fields()).WithField("wakeup", cur.wakeupTick).Debug("[OS] Sleep")
	os.trace(EventSleep, cur, nil)
	os.Block()
	os.Restore(old)
}

// wake 叫醒所有到点（wakeupTick <= now）的睡眠线程。
// 睡眠集合按 wakeupTick 升序，遇到第一个没到点的就可以停。
func (os *OS) wake(now int64) {
	for os.sleeping.len() > 0 {
		t := os.sleeping.front()
		if t.wakeupTick > now {
			break
		}
		os.sleeping.popFront()
		os.Unblock(t)
		os.trace(EventWake, t, nil)
		if os.Scheduler.preemptOnWake() {
			os.PreemptIfNeeded()
		}
	}
}

// SleepingThreads 返回睡眠中的线程，最早醒的在前
func (os *OS) SleepingThreads() []*Thread {
	return append([]*Thread(nil), os.sleeping.items...)
}

/********* 👆 睡眠 👆 ***************/

// Timer 是定时器设备：按固定频率发出时钟中断。
// 只在真实时钟（ClockReal）下使用；虚拟时钟由 idle 线程拨快。
type Timer struct {
	os     *OS
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newTimer(os *OS) *Timer {
	return &Timer{os: os}
}

// Start 开始按 Config.TimerFreq 发出时钟中断
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})

	period := time.Second / time.Duration(t.os.cfg.TimerFreq)
	log.WithField("period", period).Debug("[Timer] Start")

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				i, _ := GetInterrupt(TimerInterrupt, nil)
				t.os.Raise(i)
			}
		}
	}()
}

// Stop 停掉定时器
func (t *Timer) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		log.Debug("[Timer] Stop")
	}
}
