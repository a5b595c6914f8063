// Package workload 读取 YAML 描述的线程脚本，在 sham 内核上跑，并汇报结果。
//
// 一个脚本长这样：
//
//	name: donate-one
//	locks: [a]
//	main:
//	  - acquire a
//	  - create high
//	  - release a
//	threads:
//	  - name: high
//	    priority: 40
//	    autostart: false
//	    steps:
//	      - acquire a
//	      - msg got it
//	      - release a
package workload

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cdfmlr/sham"
	"gopkg.in/yaml.v3"
)

// Op 是一步操作
type Op string

const (
	OpRun         Op = "run"
	OpSleep       Op = "sleep"
	OpYield       Op = "yield"
	OpAcquire     Op = "acquire"
	OpTryAcquire  Op = "try_acquire"
	OpRelease     Op = "release"
	OpDown        Op = "down"
	OpUp          Op = "up"
	OpWait        Op = "wait"
	OpSignal      Op = "signal"
	OpBroadcast   Op = "broadcast"
	OpSetPriority Op = "set_priority"
	OpSetNice     Op = "set_nice"
	OpCreate      Op = "create"
	OpMsg         Op = "msg"
)

// Step 是解析好的一步
type Step struct {
	Op   Op
	Args []string
	N    int    // run/sleep/set_priority/set_nice 的数字参数
	Text string // msg 的内容
}

func (s Step) String() string {
	if s.Op == OpMsg {
		return "msg " + s.Text
	}
	return strings.TrimSpace(string(s.Op) + " " + strings.Join(s.Args, " "))
}

// ThreadSpec 描述一个线程。
// Autostart 为 false 的线程只能由 create 步骤创建。
type ThreadSpec struct {
	Name      string   `yaml:"name"`
	Priority  *int     `yaml:"priority"`
	Autostart *bool    `yaml:"autostart"`
	Lines     []string `yaml:"steps"`

	Steps []Step `yaml:"-"`
}

// priority 没写时用默认优先级
func (t *ThreadSpec) priority() int {
	if t.Priority == nil {
		return sham.PriDefault
	}
	return *t.Priority
}

func (t *ThreadSpec) autostart() bool {
	return t.Autostart == nil || *t.Autostart
}

// Workload 是一个脚本。
// Timeout 是等所有线程结束的最长 tick 数。
type Workload struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	MLFQS       bool           `yaml:"mlfqs"`
	Locks       []string       `yaml:"locks"`
	Semaphores  map[string]int `yaml:"semaphores"`
	Conds       []string       `yaml:"conds"`
	Timeout     int64          `yaml:"timeout"`
	MainLine    []string       `yaml:"main"`
	Threads     []ThreadSpec   `yaml:"threads"`

	Main []Step `yaml:"-"`
}

const defaultTimeout = 10000

// Load 读取并解析脚本文件
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	wl, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("workload %s: %w", path, err)
	}
	return wl, nil
}

// Parse 解析脚本并检查引用的名字都存在
func Parse(data []byte) (*Workload, error) {
	var wl Workload
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if wl.Timeout == 0 {
		wl.Timeout = defaultTimeout
	}

	names := map[string]bool{}
	for _, t := range wl.Threads {
		if t.Name == "" {
			return nil, fmt.Errorf("thread without a name")
		}
		if names[t.Name] {
			return nil, fmt.Errorf("duplicate thread %q", t.Name)
		}
		names[t.Name] = true
		if p := t.priority(); p < sham.PriMin || p > sham.PriMax {
			return nil, fmt.Errorf("thread %s: priority %d out of range", t.Name, p)
		}
	}

	v := &validator{wl: &wl, threads: names}
	main, err := v.steps("main", wl.MainLine)
	if err != nil {
		return nil, err
	}
	wl.Main = main
	for i := range wl.Threads {
		t := &wl.Threads[i]
		steps, err := v.steps(t.Name, t.Lines)
		if err != nil {
			return nil, err
		}
		t.Steps = steps
	}
	return &wl, nil
}

// Thread 按名字找线程描述
func (wl *Workload) Thread(name string) *ThreadSpec {
	for i := range wl.Threads {
		if wl.Threads[i].Name == name {
			return &wl.Threads[i]
		}
	}
	return nil
}

type validator struct {
	wl      *Workload
	threads map[string]bool
}

func (v *validator) steps(owner string, lines []string) ([]Step, error) {
	steps := make([]Step, 0, len(lines))
	for i, line := range lines {
		s, err := v.parseStep(line)
		if err != nil {
			return nil, fmt.Errorf("%s step %d (%q): %w", owner, i+1, line, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func (v *validator) parseStep(line string) (Step, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Step{}, fmt.Errorf("empty step")
	}
	s := Step{Op: Op(fields[0]), Args: fields[1:]}

	switch s.Op {
	case OpMsg:
		s.Text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), string(OpMsg)))
		s.Args = nil
		return s, nil
	case OpYield:
		return s, v.arity(s, 0)
	case OpRun, OpSleep, OpSetPriority, OpSetNice:
		if err := v.arity(s, 1); err != nil {
			return s, err
		}
		n, err := strconv.Atoi(s.Args[0])
		if err != nil {
			return s, fmt.Errorf("not a number: %w", err)
		}
		s.N = n
		switch s.Op {
		case OpRun, OpSleep:
			if n < 0 {
				return s, fmt.Errorf("negative count %d", n)
			}
		case OpSetPriority:
			if n < sham.PriMin || n > sham.PriMax {
				return s, fmt.Errorf("priority %d out of range", n)
			}
		case OpSetNice:
			if n < sham.NiceMin || n > sham.NiceMax {
				return s, fmt.Errorf("nice %d out of range", n)
			}
		}
		return s, nil
	case OpAcquire, OpTryAcquire, OpRelease:
		if err := v.arity(s, 1); err != nil {
			return s, err
		}
		return s, v.has("lock", s.Args[0], v.wl.Locks)
	case OpDown, OpUp:
		if err := v.arity(s, 1); err != nil {
			return s, err
		}
		if _, ok := v.wl.Semaphores[s.Args[0]]; !ok {
			return s, fmt.Errorf("unknown semaphore %q", s.Args[0])
		}
		return s, nil
	case OpWait, OpSignal, OpBroadcast:
		if err := v.arity(s, 2); err != nil {
			return s, err
		}
		if err := v.has("cond", s.Args[0], v.wl.Conds); err != nil {
			return s, err
		}
		return s, v.has("lock", s.Args[1], v.wl.Locks)
	case OpCreate:
		if err := v.arity(s, 1); err != nil {
			return s, err
		}
		if !v.threads[s.Args[0]] {
			return s, fmt.Errorf("unknown thread %q", s.Args[0])
		}
		return s, nil
	}
	return s, fmt.Errorf("unknown op %q", s.Op)
}

func (v *validator) arity(s Step, n int) error {
	if len(s.Args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", s.Op, n, len(s.Args))
	}
	return nil
}

func (v *validator) has(kind, name string, names []string) error {
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", kind, name)
}
