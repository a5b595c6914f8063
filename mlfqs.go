package sham

import (
	"github.com/cdfmlr/sham/fixedpoint"
)

// 每隔多少个 tick 重算一次所有线程的优先级
const mlfqsPriorityPeriod = 4

// mlfqsPriority = PRI_MAX - recent_cpu/4 - nice*2，向零截断后夹在 [PRI_MIN, PRI_MAX]
func (os *OS) mlfqsPriority(t *Thread) int {
	p := fixedpoint.FromInt(PriMax).
		Sub(t.recentCPU.DivInt(4)).
		SubInt(t.nice * 2).
		Trunc()
	if p < PriMin {
		return PriMin
	}
	if p > PriMax {
		return PriMax
	}
	return p
}

// mlfqsRecentCPU = (2*load_avg)/(2*load_avg+1) * recent_cpu + nice，不小于 0
func (os *OS) mlfqsRecentCPU(t *Thread) fixedpoint.Value {
	twice := os.loadAvg.MulInt(2)
	decay := twice.Div(twice.AddInt(1))
	r := decay.Mul(t.recentCPU).AddInt(t.nice)
	if r < 0 {
		return 0
	}
	return r
}

// mlfqsLoadAvg = 59/60*load_avg + 1/60*ready_threads，不小于 0
func (os *OS) mlfqsLoadAvg() fixedpoint.Value {
	readyThreads := os.ready.len()
	if os.cpu.thread != os.idle {
		readyThreads++
	}
	la := fixedpoint.FromInt(59).DivInt(60).Mul(os.loadAvg).
		Add(fixedpoint.FromInt(readyThreads).DivInt(60))
	if la < 0 {
		return 0
	}
	return la
}

// mlfqsTick 是 MLFQS 在每个时钟中断里的工作。中断上下文。
func (os *OS) mlfqsTick(cur *Thread) {
	if cur != os.idle {
		cur.recentCPU = cur.recentCPU.AddInt(1)
	}

	if os.ticks%int64(os.cfg.TimerFreq) == 0 {
		os.loadAvg = os.mlfqsLoadAvg()
		for _, t := range os.all {
			t.recentCPU = os.mlfqsRecentCPU(t)
		}
		os.log.WithField("load_avg", os.loadAvg.String()).Debug("[MLFQS] per-second update")
	}

	if os.ticks%mlfqsPriorityPeriod == 0 {
		os.mlfqsRecompute()
	}
}

// mlfqsRecompute 重算所有线程的优先级，重排就绪队列，
// 就绪队列队首比当前线程更优先时在中断返回时让出 CPU。
func (os *OS) mlfqsRecompute() {
	for _, t := range os.all {
		p := os.mlfqsPriority(t)
		t.priority = p
		t.basePriority = p
	}
	os.ready.resort()
	if head := os.ready.front(); head != nil && os.cpu.thread != os.idle &&
		head.priority > os.cpu.thread.priority {
		os.cpu.yieldOnReturn = true
	}
}

// Nice 返回当前线程的 nice 值
func (os *OS) Nice() int {
	return os.Current().nice
}

// SetNice 设置当前线程的 nice，重算它的优先级，必要时让出 CPU。
// nice 超出 [NiceMin, NiceMax] 是致命错误。
func (os *OS) SetNice(nice int) {
	if nice < NiceMin || nice > NiceMax {
		os.Panicf("nice %d out of range [%d, %d]", nice, NiceMin, NiceMax)
	}

	old := os.Disable()
	cur := os.Current()
	cur.nice = nice
	if !os.Scheduler.manualPriority() {
		p := os.mlfqsPriority(cur)
		cur.priority = p
		cur.basePriority = p
	}
	os.log.WithFields(cur.fields()).WithField("nice", nice).Debug("[MLFQS] SetNice")
	os.PreemptIfNeeded()
	os.Restore(old)
}

// LoadAvg 返回 100 倍的 load_avg，四舍五入
func (os *OS) LoadAvg() int {
	return os.loadAvg.MulInt(100).Round()
}

// RecentCPU 返回当前线程 100 倍的 recent_cpu，四舍五入
func (os *OS) RecentCPU() int {
	return os.Current().recentCPU.MulInt(100).Round()
}
