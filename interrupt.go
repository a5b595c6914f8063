package sham

import (
	"runtime"

	log "github.com/sirupsen/logrus"
)

// Interrupt 是代表中断的对象
type Interrupt struct {
	Typ     string
	Handler InterruptHandler
	Data    interface{}
}

// InterruptHandler 是「中断处理程序」。
// 它在中断上下文里运行：中断是关着的，不能阻塞，不能让出 CPU，
// 能用的只有不阻塞的操作（信号量 Up/TryDown、Unblock、PreemptIfNeeded 等）。
type InterruptHandler func(os *OS, data interface{})

// 内置的中断类型
const (
	TimerInterrupt = "TimerInterrupt"
)

// 中断类型与中断处理程序的映射
var interrupts = map[string]InterruptHandler{
	TimerInterrupt: HandleTimerInterrupt,
}

// GetInterrupt 按类型获取中断对象。未知类型返回 false。
func GetInterrupt(typ string, data interface{}) (Interrupt, bool) {
	h, ok := interrupts[typ]
	if !ok {
		return Interrupt{}, false
	}
	return Interrupt{Typ: typ, Handler: h, Data: data}, true
}

/********* 👇 中断开关 👇 ***************/

// Disable 关中断，返回之前的状态
func (os *OS) Disable() IntrLevel {
	old := os.cpu.level
	os.cpu.level = IntrOff
	return old
}

// Restore 把中断开关恢复到 level。
// 从关到开时，先处理积压的中断，再按需让出 CPU（中断返回时的抢占）。
func (os *OS) Restore(level IntrLevel) {
	if level == IntrOff {
		os.cpu.level = IntrOff
		return
	}
	os.enable()
}

// Enable 开中断
func (os *OS) Enable() {
	os.enable()
}

// Level 返回当前的中断开关状态
func (os *OS) Level() IntrLevel {
	return os.cpu.level
}

// InIntr 是否在中断处理程序里
func (os *OS) InIntr() bool {
	return os.cpu.inIntr
}

// YieldOnReturn 要求中断返回时让出 CPU。只能在中断上下文里调用。
func (os *OS) YieldOnReturn() {
	os.assert(os.cpu.inIntr, "yield on return outside interrupt context")
	os.cpu.yieldOnReturn = true
}

func (os *OS) enable() {
	c := os.cpu
	if c.inIntr {
		os.Panicf("enable interrupts inside interrupt handler")
	}
	c.level = IntrOff
	for {
		pending := c.takePending()
		if len(pending) == 0 {
			break
		}
		for _, i := range pending {
			os.handle(i)
		}
	}
	c.level = IntrOn

	if c.yieldOnReturn {
		c.yieldOnReturn = false
		if c.thread != os.idle {
			os.Yield()
		}
	}
}

// handle 在中断上下文里运行一个中断处理程序
func (os *OS) handle(i Interrupt) {
	c := os.cpu
	c.inIntr = true
	if i.Typ != TimerInterrupt {
		os.log.WithField("type", i.Typ).Debug("[INT] Handle Interrupt")
	}
	i.Handler(os, i.Data)
	c.inIntr = false
}

/********* 👆 中断开关 👆 ***************/

// Raise 发出一个中断请求。任何 goroutine 都可以调用（设备、定时器、测试）。
// 中断会在当前线程下一次开中断或到达 Checkpoint 时处理；CPU 空闲时立即处理。
func (os *OS) Raise(i Interrupt) {
	if i.Handler == nil {
		log.WithField("type", i.Typ).Error("[INT] Raise: interrupt has no handler")
		return
	}
	os.cpu.post(i)
}

// Checkpoint 是线程的「指令边界」：处理积压的中断，
// 若中断要求抢占则在这里让出 CPU。关着中断时什么都不做。
func (os *OS) Checkpoint() {
	os.assert(!os.cpu.inIntr, "checkpoint in interrupt context")
	if os.cpu.level == IntrOn {
		os.enable()
	}
}

// hlt 是 idle 线程的「sti; hlt」：开中断，等下一个中断来。
// 虚拟时钟下没有中断要等时，直接拨快时钟到下一个 tick。
func (os *OS) hlt() {
	c := os.cpu
	if !c.hasPending() {
		if os.cfg.Clock == ClockVirtual {
			if os.sleeping.len() == 0 {
				os.Panicf("all threads blocked and none sleeping: deadlock")
			}
			i, _ := GetInterrupt(TimerInterrupt, nil)
			c.post(i)
		} else {
			select {
			case <-c.irq:
			case <-c.halt:
				runtime.Goexit()
			}
		}
	}
	os.enable()
}
