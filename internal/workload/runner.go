package workload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cdfmlr/sham"
	"github.com/cdfmlr/sham/synch"
	log "github.com/sirupsen/logrus"
)

// ThreadResult 是一个线程结束时的样子
type ThreadResult struct {
	Name         string   `json:"name"`
	Tid          sham.Tid `json:"tid"`
	Priority     int      `json:"priority"`
	BasePriority int      `json:"base_priority"`
	Nice         int      `json:"nice"`
	RecentCPU    int      `json:"recent_cpu"`
	StartTick    int64    `json:"start_tick"`
	FinishTick   int64    `json:"finish_tick"`
	Steps        int      `json:"steps"`
}

// Report 是一次运行的结果
type Report struct {
	Workload string         `json:"workload"`
	Boot     string         `json:"boot"`
	Policy   string         `json:"policy"`
	Ticks    int64          `json:"ticks"`
	LoadAvg  int            `json:"load_avg"`
	Order    []string       `json:"order"`
	Threads  []ThreadResult `json:"threads"`
	Console  []string       `json:"console"`
	Stats    sham.Stats     `json:"stats"`
}

// runner 持有一次运行的全部状态。
// 它的字段只被内核线程访问，内核一次只跑一个线程，不用加锁。
type runner struct {
	os    *sham.OS
	wl    *Workload
	locks map[string]*synch.Lock
	semas map[string]*synch.Semaphore
	conds map[string]*synch.Cond

	alive   int
	order   []string
	results []ThreadResult
	log     *log.Entry
}

// Run 在 shamOS 上跑脚本，等所有线程结束后返回报告。
// 必须由已经 Boot 的内核的当前线程调用（通常是 main）。
func Run(shamOS *sham.OS, wl *Workload) (*Report, error) {
	r := &runner{
		os:    shamOS,
		wl:    wl,
		locks: map[string]*synch.Lock{},
		semas: map[string]*synch.Semaphore{},
		conds: map[string]*synch.Cond{},
		log:   log.WithField("workload", wl.Name),
	}
	for _, name := range wl.Locks {
		r.locks[name] = synch.NewLock(shamOS, name)
	}
	for name, v := range wl.Semaphores {
		r.semas[name] = synch.NewSemaphore(shamOS, v)
	}
	for _, name := range wl.Conds {
		r.conds[name] = synch.NewCond(shamOS)
	}

	r.log.WithField("threads", len(wl.Threads)).Info("[Workload] start")
	start := shamOS.Ticks()

	for i := range wl.Threads {
		if wl.Threads[i].autostart() {
			if err := r.spawn(&wl.Threads[i]); err != nil {
				return nil, err
			}
		}
	}
	for _, s := range wl.Main {
		if err := r.exec("main", s); err != nil {
			return nil, err
		}
	}

	for r.alive > 0 {
		if shamOS.Elapsed(start) > wl.Timeout {
			return nil, fmt.Errorf("workload %s: %d thread(s) still alive after %d ticks",
				wl.Name, r.alive, wl.Timeout)
		}
		shamOS.Sleep(1)
	}

	sort.SliceStable(r.results, func(i, j int) bool {
		return r.results[i].Tid < r.results[j].Tid
	})
	rep := &Report{
		Workload: wl.Name,
		Boot:     shamOS.BootID(),
		Policy:   shamOS.Snapshot().Policy,
		Ticks:    shamOS.Elapsed(start),
		LoadAvg:  shamOS.LoadAvg(),
		Order:    r.order,
		Threads:  r.results,
		Console:  shamOS.Console().Lines(),
		Stats:    shamOS.Stats(),
	}
	r.log.WithField("order", strings.Join(r.order, ",")).Info("[Workload] done")
	return rep, nil
}

// spawn 创建 spec 描述的线程
func (r *runner) spawn(spec *ThreadSpec) error {
	r.alive++
	_, err := r.os.Create(spec.Name, spec.priority(), r.body, spec)
	if err != nil {
		r.alive--
		return fmt.Errorf("create thread %s: %w", spec.Name, err)
	}
	return nil
}

// body 是每个脚本线程的内容
func (r *runner) body(aux interface{}) {
	spec := aux.(*ThreadSpec)
	cur := r.os.Current()
	res := ThreadResult{Name: spec.Name, Tid: cur.Tid(), StartTick: r.os.Ticks()}

	for _, s := range spec.Steps {
		if err := r.exec(spec.Name, s); err != nil {
			r.log.WithError(err).WithField("thread", spec.Name).Error("[Workload] step failed")
			break
		}
		res.Steps++
	}

	res.Priority = cur.Priority()
	res.BasePriority = cur.BasePriority()
	res.Nice = cur.Nice()
	res.RecentCPU = r.os.RecentCPU()
	res.FinishTick = r.os.Ticks()
	r.results = append(r.results, res)
	r.order = append(r.order, spec.Name)
	r.alive--
}

// exec 让当前线程执行一步
func (r *runner) exec(who string, s Step) error {
	r.log.WithFields(log.Fields{"thread": who, "step": s.String()}).Debug("[Workload] exec")

	switch s.Op {
	case OpRun:
		for i := 0; i < s.N; i++ {
			r.os.Tick()
		}
	case OpSleep:
		r.os.Sleep(int64(s.N))
	case OpYield:
		r.os.Yield()
	case OpAcquire:
		r.locks[s.Args[0]].Acquire()
	case OpTryAcquire:
		ok := r.locks[s.Args[0]].TryAcquire()
		r.os.Console().Println(fmt.Sprintf("%s: try_acquire %s = %v", who, s.Args[0], ok))
	case OpRelease:
		r.locks[s.Args[0]].Release()
	case OpDown:
		r.semas[s.Args[0]].Down()
	case OpUp:
		r.semas[s.Args[0]].Up()
	case OpWait:
		r.conds[s.Args[0]].Wait(r.locks[s.Args[1]])
	case OpSignal:
		r.conds[s.Args[0]].Signal(r.locks[s.Args[1]])
	case OpBroadcast:
		r.conds[s.Args[0]].Broadcast(r.locks[s.Args[1]])
	case OpSetPriority:
		r.os.SetPriority(s.N)
	case OpSetNice:
		r.os.SetNice(s.N)
	case OpCreate:
		return r.spawn(r.wl.Thread(s.Args[0]))
	case OpMsg:
		r.os.Console().Println(fmt.Sprintf("%s: %s", who, s.Text))
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}
