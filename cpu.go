package sham

import (
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// IntrLevel 是中断开关状态
type IntrLevel int

const (
	IntrOff IntrLevel = iota
	IntrOn
)

func (l IntrLevel) String() string {
	if l == IntrOn {
		return "on"
	}
	return "off"
}

// CPU 处理器：是一个模拟的「CPU」。
// CPU 在某一时刻只能跑一个线程。每个线程背后是一个 goroutine，
// 只有拿到 CPU 的那个 goroutine 在跑，其余的都停在自己的 resume 信道上。
// 切换就是把接力棒交给下一个线程，然后自己停下来。
type CPU struct {
	thread *Thread

	// 以下字段只在持有 CPU 的执行流里访问
	level         IntrLevel
	inIntr        bool
	yieldOnReturn bool

	// 外部（设备 goroutine）发来的中断，等当前执行流开中断时处理
	pendingMu sync.Mutex
	pending   []Interrupt
	irq       chan struct{}

	halt     chan struct{}
	haltOnce sync.Once
	halted   atomic.Bool
}

func newCPU() *CPU {
	return &CPU{
		level: IntrOff,
		irq:   make(chan struct{}, 1),
		halt:  make(chan struct{}),
	}
}

// switchTo 保存当前执行流并切到 next：
// next 从上次停下的地方继续，或者（第一次运行）从入口开始。
// prev 将要死亡时不再等待，直接返回，由调用者结束 goroutine。
func (c *CPU) switchTo(os *OS, prev, next *Thread) {
	dying := prev.status == StatusDying
	c.thread = next
	if !next.started {
		next.started = true
		go os.kernelThread(next)
	} else {
		next.resume <- struct{}{}
	}

	if dying {
		return
	}
	c.park(prev)
}

// park 让 t 的 goroutine 停下，直到再次被调度或关机
func (c *CPU) park(t *Thread) {
	select {
	case <-t.resume:
	case <-c.halt:
		runtime.Goexit()
	}
}

// post 记下一个外部中断，并叫醒可能在 hlt 的 idle 线程
func (c *CPU) post(i Interrupt) {
	c.pendingMu.Lock()
	c.pending = append(c.pending, i)
	c.pendingMu.Unlock()

	select {
	case c.irq <- struct{}{}:
	default:
	}
}

func (c *CPU) takePending() []Interrupt {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}

func (c *CPU) hasPending() bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending) > 0
}

// stop 关机：所有停着的线程 goroutine 退出
func (c *CPU) stop() {
	c.haltOnce.Do(func() {
		c.halted.Store(true)
		close(c.halt)
		log.Debug("[CPU] halted")
	})
}
