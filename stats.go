package sham

import (
	"fmt"
	"io"

	"go.uber.org/atomic"
)

// counters 是运行统计。只有持有 CPU 的执行流写，别的 goroutine 可以随时读。
type counters struct {
	ticks       atomic.Int64
	idleTicks   atomic.Int64
	kernelTicks atomic.Int64
	switches    atomic.Int64
	created     atomic.Int64
}

// Stats 运行统计
type Stats struct {
	Ticks       int64 `json:"ticks"`
	IdleTicks   int64 `json:"idle_ticks"`
	KernelTicks int64 `json:"kernel_ticks"`
	Switches    int64 `json:"switches"`
	Created     int64 `json:"created"`
}

// Stats 返回运行统计，任何 goroutine 都可以调用
func (os *OS) Stats() Stats {
	return Stats{
		Ticks:       os.stats.ticks.Load(),
		IdleTicks:   os.stats.idleTicks.Load(),
		KernelTicks: os.stats.kernelTicks.Load(),
		Switches:    os.stats.switches.Load(),
		Created:     os.stats.created.Load(),
	}
}

// PrintStats 把统计信息写到 w
func (os *OS) PrintStats(w io.Writer) {
	st := os.Stats()
	fmt.Fprintf(w, "Thread: %d idle ticks, %d kernel ticks, %d switches\n",
		st.IdleTicks, st.KernelTicks, st.Switches)
}

// ThreadInfo 是某一时刻线程的样子
type ThreadInfo struct {
	Tid          Tid    `json:"tid"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	Priority     int    `json:"priority"`
	BasePriority int    `json:"base_priority"`
	Nice         int    `json:"nice"`
	RecentCPU    string `json:"recent_cpu"`
	WakeupTick   int64  `json:"wakeup_tick,omitempty"`
	Donors       []Tid  `json:"donors,omitempty"`
}

// Snapshot 是某一时刻内核状态的只读副本
type Snapshot struct {
	Boot    string       `json:"boot"`
	Policy  string       `json:"policy"`
	Tick    int64        `json:"tick"`
	Running Tid          `json:"running"`
	Ready   []Tid        `json:"ready"`
	Sleep   []Tid        `json:"sleeping"`
	LoadAvg string       `json:"load_avg"`
	Threads []ThreadInfo `json:"threads"`
	Stats   Stats        `json:"stats"`
}

// publish 发布一份新的快照。在持有 CPU 的执行流里调用。
func (os *OS) publish() {
	s := &Snapshot{
		Boot:    os.boot,
		Policy:  os.Scheduler.Name(),
		Tick:    os.ticks,
		Running: TidError,
		Ready:   os.ready.tids(),
		Sleep:   os.sleeping.tids(),
		LoadAvg: os.loadAvg.String(),
		Stats:   os.Stats(),
	}
	if t := os.cpu.thread; t != nil {
		s.Running = t.tid
	}
	for _, t := range os.all {
		s.Threads = append(s.Threads, t.info())
	}
	if os.idle != nil {
		s.Threads = append(s.Threads, os.idle.info())
	}
	os.snapshot.Store(s)
}

// Snapshot 返回最近一次发布的快照，任何 goroutine 都可以调用
func (os *OS) Snapshot() *Snapshot {
	s, _ := os.snapshot.Load().(*Snapshot)
	return s
}

func (t *Thread) info() ThreadInfo {
	ti := ThreadInfo{
		Tid:          t.tid,
		Name:         t.name,
		Status:       t.status.String(),
		Priority:     t.priority,
		BasePriority: t.basePriority,
		Nice:         t.nice,
		RecentCPU:    t.recentCPU.String(),
	}
	if t.queue == inSleep {
		ti.WakeupTick = t.wakeupTick
	}
	for _, d := range t.donors {
		ti.Donors = append(ti.Donors, d.tid)
	}
	return ti
}
