package sham

import (
	"runtime"

	"github.com/cdfmlr/sham/fixedpoint"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// OS 是模拟的「操作系统」内核：持有 CPU、线程页、就绪队列、睡眠集合和调度策略。
// 单核。一次启动（Boot）对应一个 OS 对象，所有全局状态都挂在它上面。
type OS struct {
	cfg       Config
	boot      string
	log       *log.Entry
	cpu       *CPU
	mem       *Memory
	Scheduler Scheduler

	ready    threadList
	sleeping threadList

	threads     map[Tid]*Thread
	all         []*Thread // 除 idle 外所有活着的线程，按创建顺序
	initial     *Thread
	idle        *Thread
	faulted     *KernelPanic
	destruction []*Thread
	nextTid     Tid

	ticks       int64
	threadTicks int
	loadAvg     fixedpoint.Value

	stats    counters
	snapshot atomic.Value
	tracer   Tracer
	console  *Console
	timer    *Timer
}

// NewOS 构建一个「操作系统」。调度策略由 cfg.MLFQS 决定。
// 构建完要调用 Boot 才能用。
func NewOS(cfg Config) *OS {
	cfg = cfg.withDefaults()
	boot := uuid.New().String()

	os := &OS{
		cfg:      cfg,
		boot:     boot,
		log:      log.WithField("boot", boot[:8]),
		cpu:      newCPU(),
		mem:      NewMemory(cfg.MaxThreads),
		ready:    threadList{tag: inReady, less: byPriority},
		sleeping: threadList{tag: inSleep, less: byWakeup},
		threads:  map[Tid]*Thread{},
		nextTid:  1,
		console:  NewConsole(nil),
	}
	if cfg.MLFQS {
		os.Scheduler = MLFQScheduler{}
	} else {
		os.Scheduler = PriorityScheduler{}
	}
	os.timer = newTimer(os)
	os.publish()
	return os
}

// Boot 启动操作系统：把调用 Boot 的 goroutine 变成 main 线程，
// 建好 idle 线程，然后打开中断。
// 之后调用者就是一个普通的内核线程了，会被调度、阻塞、抢占。
func (os *OS) Boot() {
	field := "[OS] "

	main := newThread("main", PriDefault, nil, nil)
	if !os.mem.Alloc(main) {
		os.Panicf("no page for main thread")
	}
	main.tid = os.allocateTid()
	main.status = StatusRunning
	main.queue = inRunning
	main.started = true
	os.threads[main.tid] = main
	os.all = append(os.all, main)
	os.initial = main
	os.cpu.thread = main
	os.Scheduler.init(os, nil, main)

	idle := newThread("idle", PriMin, os.idleLoop, nil)
	if !os.mem.Alloc(idle) {
		os.Panicf("no page for idle thread")
	}
	idle.tid = os.allocateTid()
	os.threads[idle.tid] = idle
	os.idle = idle

	os.log.WithFields(log.Fields{
		"policy":     os.Scheduler.Name(),
		"clock":      os.cfg.Clock,
		"time_slice": os.cfg.TimeSlice,
		"max_pages":  os.mem.Cap(),
	}).Info(field, "OS Boot")

	if os.cfg.Clock == ClockReal {
		os.timer.Start()
	}
	os.publish()
	os.Restore(IntrOn)
}

// Shutdown 关机：停掉时钟，让所有停着的线程 goroutine 退出。
// 由当前运行的线程调用，之后不能再用这个 OS。
func (os *OS) Shutdown() {
	os.timer.Stop()
	st := os.Stats()
	os.log.WithFields(log.Fields{
		"ticks":        st.Ticks,
		"idle_ticks":   st.IdleTicks,
		"kernel_ticks": st.KernelTicks,
		"switches":     st.Switches,
	}).Info("[OS] Shutdown")
	os.cpu.stop()
	os.console.Close()
	if os.tracer != nil {
		os.tracer.Flush()
	}
}

// Config 返回启动配置
func (os *OS) Config() Config {
	return os.cfg
}

// BootID 返回本次启动的标识
func (os *OS) BootID() string {
	return os.boot
}

// Console 返回控制台设备
func (os *OS) Console() *Console {
	return os.console
}

// SetConsole 换掉控制台设备
func (os *OS) SetConsole(c *Console) {
	os.console.Close()
	os.console = c
}

// Current 返回正在运行的线程
func (os *OS) Current() *Thread {
	t := os.cpu.thread
	if t == nil || t.status != StatusRunning {
		os.Panicf("current thread %v is not running", t)
	}
	return t
}

// Idle 返回 idle 线程
func (os *OS) Idle() *Thread {
	return os.idle
}

// Thread 按 tid 找线程，找不到（或已回收）返回 nil
func (os *OS) Thread(tid Tid) *Thread {
	return os.threads[tid]
}

// ReadyLen 返回就绪队列长度
func (os *OS) ReadyLen() int {
	return os.ready.len()
}

// ReadyThreads 返回就绪队列，队首在前
func (os *OS) ReadyThreads() []*Thread {
	return append([]*Thread(nil), os.ready.items...)
}

func (os *OS) allocateTid() Tid {
	tid := os.nextTid
	os.nextTid++
	return tid
}

/********* 👇 线程生命周期 👇 ***************/

// Create 创建一个名为 name、优先级为 priority 的线程，运行 fn(aux)，放进就绪队列。
// 新线程可能在 Create 返回之前就被调度，甚至已经结束。
// 没有空闲页时返回 TidError, ErrNoMemory。
func (os *OS) Create(name string, priority int, fn ThreadFunc, aux interface{}) (Tid, error) {
	os.assert(os.initial != nil, "create %q before boot", name)
	os.assert(fn != nil, "create %q: nil function", name)
	os.assert(!os.cpu.inIntr, "create %q: in interrupt context", name)
	os.checkPriority(priority)

	t := newThread(name, priority, fn, aux)
	if !os.mem.Alloc(t) {
		os.log.WithField("thread", name).Warn("[OS] Create Failed: out of pages")
		return TidError, ErrNoMemory
	}

	old := os.Disable()
	t.tid = os.allocateTid()
	os.threads[t.tid] = t
	os.all = append(os.all, t)
	os.Scheduler.init(os, os.cpu.thread, t)
	os.stats.created.Inc()

	os.log.WithFields(t.fields()).Debug("[OS] Create")
	os.trace(EventCreate, t, nil)

	os.Unblock(t)
	os.publish()
	os.PreemptIfNeeded()
	os.Restore(old)
	return t.tid, nil
}

// Block 让当前线程进入阻塞状态，直到有人 Unblock 它。
// 必须关着中断调用。调用者应当已经把自己挂在了某个等待队列上。
func (os *OS) Block() {
	os.assert(!os.cpu.inIntr, "block in interrupt context")
	os.assert(os.cpu.level == IntrOff, "block with interrupts on")

	cur := os.Current()
	if cur.queue == inRunning {
		os.vacate(cur)
	}
	os.log.WithFields(cur.fields()).Trace("[OS] Block")
	os.trace(EventBlock, cur, nil)
	os.doSchedule(StatusBlocked)
}

// Unblock 把阻塞的 t 放回就绪队列。不会抢占当前线程，
// 所以调用者可以关着中断原子地唤醒线程并更新其他数据。
func (os *OS) Unblock(t *Thread) {
	old := os.Disable()
	if t.status != StatusBlocked {
		os.Panicf("unblock %v: status is %s", t, t.status)
	}
	os.ready.insert(t)
	t.status = StatusReady
	os.log.WithFields(t.fields()).Trace("[OS] Unblock")
	os.trace(EventUnblock, t, nil)
	os.Restore(old)
}

// Yield 让出 CPU。当前线程回到就绪队列，可能立刻又被选中。
func (os *OS) Yield() {
	os.assert(!os.cpu.inIntr, "yield in interrupt context")

	old := os.Disable()
	cur := os.Current()
	os.vacate(cur)
	if cur != os.idle {
		os.ready.insert(cur)
	}
	os.trace(EventYield, cur, nil)
	os.doSchedule(StatusReady)
	os.Restore(old)
}

// Exit 结束当前线程，不会返回。
func (os *OS) Exit() {
	os.assert(!os.cpu.inIntr, "exit in interrupt context")
	if os.cpu.thread == os.initial {
		os.exitCurrent()
	}
	runtime.Goexit()
}

// exitCurrent 把当前线程标为 dying 并调度走。
// 线程页要等切走之后（下一次调度开始时）才回收。
func (os *OS) exitCurrent() {
	os.Disable()
	cur := os.Current()
	os.vacate(cur)
	for i, t := range os.all {
		if t == cur {
			os.all = append(os.all[:i], os.all[i+1:]...)
			break
		}
	}
	os.log.WithFields(cur.fields()).Debug("[OS] Exit")
	os.trace(EventExit, cur, nil)
	os.doSchedule(StatusDying)
}

// kernelThread 是每个线程 goroutine 的入口
func (os *OS) kernelThread(t *Thread) {
	defer func() {
		if os.cpu.halted.Load() {
			return
		}
		if r := recover(); r != nil {
			p, ok := r.(*KernelPanic)
			if !ok {
				panic(r)
			}
			os.fault(p)
			return
		}
		os.exitCurrent()
	}()

	os.Restore(IntrOn) // 调度总是关着中断进行的
	t.fn(t.aux)
}

// fault 把别的线程里的内核 panic 交给 main 线程：
// 出错的线程就此结束，main 从停下的地方醒来，原样 panic。
// Boot 的调用者因此总能在自己的 goroutine 上 recover 到 *KernelPanic。
func (os *OS) fault(p *KernelPanic) {
	cur := os.cpu.thread
	main := os.initial
	os.cpu.level = IntrOff
	os.faulted = p

	switch main.queue {
	case inReady:
		os.ready.remove(main)
	case inSleep:
		os.sleeping.remove(main)
	}
	main.status = StatusRunning
	main.queue = inRunning

	os.log.WithFields(cur.fields()).WithField("msg", p.Msg).Error("[OS] Kernel panic, handing over to main")
	cur.status = StatusDying
	os.cpu.switchTo(os, cur, main)
}

// idleLoop 是 idle 线程：没有别的线程可跑时运行。
// idle 从不进入就绪队列，就绪队列空时由 nextThreadToRun 特殊返回。
func (os *OS) idleLoop(interface{}) {
	for {
		os.Disable()
		os.Block()

		os.hlt()
	}
}

/********* 👆 线程生命周期 👆 ***************/

/********* 👇 调度 👇 ***************/

// vacate 让当前线程离开「正在运行」的位置
func (os *OS) vacate(cur *Thread) {
	if cur.queue != inRunning {
		os.Panicf("vacate %v: thread is in %s", cur, cur.queue)
	}
	cur.queue = inNone
}

// PreemptIfNeeded 如果就绪队列队首比当前线程更优先，就让出 CPU。
// 在中断上下文里只做标记，等中断返回时再让出。
func (os *OS) PreemptIfNeeded() {
	cur := os.cpu.thread
	if cur == os.idle || os.ready.len() == 0 {
		return
	}
	if os.ready.front().priority <= cur.priority {
		return
	}
	if os.cpu.inIntr {
		os.cpu.yieldOnReturn = true
		return
	}
	os.Yield()
}

func (os *OS) nextThreadToRun() *Thread {
	if os.ready.len() == 0 {
		return os.idle
	}
	return os.ready.popFront()
}

// doSchedule 先回收等待销毁的线程页，再把当前线程设为 status 并调度。
func (os *OS) doSchedule(status Status) {
	os.assert(os.cpu.level == IntrOff, "schedule with interrupts on")
	cur := os.cpu.thread
	os.assert(cur.status == StatusRunning, "schedule: %v is %s", cur, cur.status)

	os.reclaim()
	cur.status = status
	os.schedule()
}

func (os *OS) reclaim() {
	for _, victim := range os.destruction {
		os.mem.Free(victim)
		delete(os.threads, victim.tid)
		os.log.WithField("tid", victim.tid).Trace("[OS] reclaim page")
	}
	os.destruction = os.destruction[:0]
}

func (os *OS) schedule() {
	cur := os.cpu.thread
	next := os.nextThreadToRun()

	if next.queue != inNone {
		os.Panicf("dispatch %v: thread is in %s", next, next.queue)
	}
	next.status = StatusRunning
	next.queue = inRunning

	// 新的时间片
	os.threadTicks = 0
	os.cpu.yieldOnReturn = false

	if cur == next {
		return
	}
	if cur.status == StatusDying {
		os.destruction = append(os.destruction, cur)
	}

	os.stats.switches.Inc()
	os.log.WithFields(log.Fields{
		"from": cur.String(),
		"to":   next.String(),
		"tick": os.ticks,
	}).Trace("[CPU] switch")
	os.trace(EventDispatch, next, cur)
	os.publish()

	os.cpu.switchTo(os, cur, next)
	if p := os.faulted; p != nil {
		panic(p)
	}
}

/********* 👆 调度 👆 ***************/

/********* 👇 优先级 👇 ***************/

func (os *OS) checkPriority(priority int) {
	if priority < PriMin || priority > PriMax {
		os.Panicf("priority %d out of range [%d, %d]", priority, PriMin, PriMax)
	}
}

// Priority 返回当前线程的有效优先级
func (os *OS) Priority() int {
	return os.Current().priority
}

// SetPriority 设置当前线程的基础优先级。
// 有效优先级 = max(基础优先级, 捐赠者中最高的优先级)。MLFQS 下忽略。
func (os *OS) SetPriority(priority int) {
	os.checkPriority(priority)
	if !os.Scheduler.manualPriority() {
		os.log.WithField("priority", priority).Debug("[OS] SetPriority ignored by ", os.Scheduler.Name())
		return
	}

	old := os.Disable()
	cur := os.Current()
	cur.basePriority = priority
	os.refreshPriority(cur)
	os.PreemptIfNeeded()
	os.Restore(old)
}

// setEffective 修改 t 的有效优先级；t 在就绪队列里就重新排队。
func (os *OS) setEffective(t *Thread, priority int) {
	if t.priority == priority {
		return
	}
	if t.queue == inReady {
		os.ready.remove(t)
		t.priority = priority
		os.ready.insert(t)
		return
	}
	t.priority = priority
}

/********* 👆 优先级 👆 ***************/
