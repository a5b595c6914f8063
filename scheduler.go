package sham

// Scheduler 是调度策略。
// 就绪队列、派发、阻塞/唤醒的机制都在 OS 里，策略只决定：
// 新线程的初始参数、每个 tick 的记账，以及优先级能不能手动设置、能不能捐赠。
type Scheduler interface {
	// Name 策略名，打日志用
	Name() string

	// init 在 t 被放进就绪队列之前调用，parent 是创建它的线程
	init(os *OS, parent, t *Thread)

	// tick 在每个时钟中断里调用，cur 是被打断的线程。中断上下文。
	tick(os *OS, cur *Thread)

	// manualPriority 是否接受 SetPriority
	manualPriority() bool

	// donation 是否做优先级捐赠
	donation() bool

	// preemptOnWake 睡眠线程醒来时是否检查抢占
	preemptOnWake() bool
}

// PriorityScheduler 优先级调度：
// 总是运行优先级最高的就绪线程，相同优先级轮转，时间片 Config.TimeSlice 个 tick。
// 支持优先级捐赠。
type PriorityScheduler struct{}

func (PriorityScheduler) Name() string { return "priority" }

func (PriorityScheduler) init(os *OS, parent, t *Thread) {}

// tick 时间片用完了就在中断返回时让出 CPU
func (PriorityScheduler) tick(os *OS, cur *Thread) {
	if cur == os.idle {
		return
	}
	if os.threadTicks >= os.cfg.TimeSlice {
		os.cpu.yieldOnReturn = true
	}
}

func (PriorityScheduler) manualPriority() bool { return true }
func (PriorityScheduler) donation() bool       { return true }
func (PriorityScheduler) preemptOnWake() bool  { return true }

// MLFQScheduler 多级反馈队列调度（4.4BSD 风格）：
// 优先级由 nice 和 recent_cpu 算出来，不能手动设置，也没有捐赠。
// 公式见 mlfqs.go。
type MLFQScheduler struct{}

func (MLFQScheduler) Name() string { return "mlfqs" }

// init 新线程继承创建者的 nice 和 recent_cpu
func (MLFQScheduler) init(os *OS, parent, t *Thread) {
	if parent != nil && parent != os.idle {
		t.nice = parent.nice
		t.recentCPU = parent.recentCPU
	}
	p := os.mlfqsPriority(t)
	t.priority = p
	t.basePriority = p
}

func (MLFQScheduler) tick(os *OS, cur *Thread) {
	os.mlfqsTick(cur)
}

func (MLFQScheduler) manualPriority() bool { return false }
func (MLFQScheduler) donation() bool       { return false }

// preemptOnWake 醒来的线程等下一次重算优先级再竞争
func (MLFQScheduler) preemptOnWake() bool { return false }
