package sham

import (
	"errors"
	"strings"
	"testing"
)

func bootOS(t *testing.T, cfg Config) *OS {
	t.Helper()
	shamOS := NewOS(cfg)
	shamOS.Boot()
	t.Cleanup(shamOS.Shutdown)
	return shamOS
}

func expectKernelPanic(t *testing.T, shamOS *OS, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected kernel panic containing %q, got none", want)
		}
		p, ok := r.(*KernelPanic)
		if !ok {
			t.Fatalf("expected *KernelPanic, got %T: %v", r, r)
		}
		if !strings.Contains(p.Msg, want) {
			t.Errorf("panic message %q does not contain %q", p.Msg, want)
		}
		shamOS.Restore(IntrOn)
	}()
	fn()
}

func TestBoot(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	cur := shamOS.Current()
	if cur.Name() != "main" {
		t.Errorf("current thread = %q, want main", cur.Name())
	}
	if cur.Priority() != PriDefault {
		t.Errorf("main priority = %d, want %d", cur.Priority(), PriDefault)
	}
	if shamOS.Level() != IntrOn {
		t.Errorf("interrupts should be on after boot")
	}
	if shamOS.Idle().Priority() != PriMin {
		t.Errorf("idle priority = %d, want %d", shamOS.Idle().Priority(), PriMin)
	}
	if shamOS.Thread(cur.Tid()) != cur {
		t.Errorf("Thread(%d) does not find main", cur.Tid())
	}
}

func TestCreateHigherPriorityPreempts(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	var order []string
	_, err := shamOS.Create("high", PriDefault+1, func(interface{}) {
		order = append(order, "high")
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	order = append(order, "main")

	if got := strings.Join(order, ","); got != "high,main" {
		t.Errorf("order = %s, want high,main", got)
	}
}

func TestCreateLowerPriorityWaits(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	var order []string
	shamOS.Create("low", PriDefault-1, func(interface{}) {
		order = append(order, "low")
	}, nil)
	order = append(order, "main")

	// 优先级更高的 main 让出 CPU 也还是自己
	shamOS.Yield()
	order = append(order, "main-yield")

	// main 睡了 low 才能跑
	shamOS.Sleep(1)
	order = append(order, "main-wake")

	if got := strings.Join(order, ","); got != "main,main-yield,low,main-wake" {
		t.Errorf("order = %s", got)
	}
}

func TestYieldRoundRobinFIFO(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	var order []string
	for _, name := range []string{"a", "b", "c"} {
		shamOS.Create(name, PriDefault, func(aux interface{}) {
			order = append(order, aux.(string))
		}, name)
	}
	if len(order) != 0 {
		t.Fatalf("equal priority threads ran before main yielded: %v", order)
	}
	shamOS.Yield()

	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("order = %s, want a,b,c", got)
	}
}

func TestSingleRunningAndReadyHead(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	check := func(where string) {
		running := 0
		for _, th := range shamOS.all {
			if th.Status() == StatusRunning {
				running++
			}
		}
		if shamOS.idle.Status() == StatusRunning {
			running++
		}
		if running != 1 {
			t.Errorf("%s: %d running threads", where, running)
		}
		if head := shamOS.ready.front(); head != nil && head.Priority() > shamOS.Current().Priority() {
			t.Errorf("%s: ready head %v outranks running %v", where, head, shamOS.Current())
		}
	}

	for i, p := range []int{10, 40, 20, 35} {
		shamOS.Create("t", p, func(aux interface{}) {
			check("thread")
			shamOS.Yield()
			check("thread after yield")
		}, i)
		check("main")
	}
	shamOS.Sleep(1)
	check("main after sleep")
}

func TestSetPriorityYields(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	var order []string
	shamOS.Create("peer", PriDefault, func(interface{}) {
		order = append(order, "peer")
	}, nil)
	shamOS.SetPriority(PriDefault - 10)
	order = append(order, "main")

	if got := strings.Join(order, ","); got != "peer,main" {
		t.Errorf("order = %s, want peer,main", got)
	}
	if shamOS.Priority() != PriDefault-10 {
		t.Errorf("priority = %d, want %d", shamOS.Priority(), PriDefault-10)
	}
}

func TestSleepWakeOrder(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	var order []string
	for _, s := range []struct {
		name  string
		ticks int64
	}{{"a", 30}, {"b", 10}, {"c", 20}} {
		s := s
		shamOS.Create(s.name, PriDefault, func(interface{}) {
			start := shamOS.Ticks()
			shamOS.Sleep(s.ticks)
			if e := shamOS.Elapsed(start); e < s.ticks {
				t.Errorf("%s woke after %d ticks, want >= %d", s.name, e, s.ticks)
			}
			order = append(order, s.name)
		}, nil)
	}
	shamOS.Sleep(50)

	if got := strings.Join(order, ","); got != "b,c,a" {
		t.Errorf("wake order = %s, want b,c,a", got)
	}
}

func TestSleepElapsed(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	start := shamOS.Ticks()
	shamOS.Sleep(5)
	if e := shamOS.Elapsed(start); e < 5 {
		t.Errorf("elapsed = %d, want >= 5", e)
	}
	if shamOS.Stats().IdleTicks < 5 {
		t.Errorf("idle ticks = %d, want >= 5", shamOS.Stats().IdleTicks)
	}

	now := shamOS.Ticks()
	shamOS.Sleep(0)
	shamOS.Sleep(-3)
	if shamOS.Ticks() != now {
		t.Errorf("non-positive sleep advanced the clock")
	}
}

func TestSleeperWakesOnExactTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeSlice = 100
	shamOS := bootOS(t, cfg)

	var start int64
	var woke int64 = -1
	tid, _ := shamOS.Create("sleeper", PriDefault, func(interface{}) {
		start = shamOS.Ticks()
		shamOS.Sleep(10)
		woke = shamOS.Ticks()
	}, nil)
	shamOS.Yield()
	sleeper := shamOS.Thread(tid)

	if sl := shamOS.SleepingThreads(); len(sl) != 1 || sl[0] != sleeper || sleeper.WakeupTick() != start+10 {
		t.Fatalf("sleeping = %v, wakeup = %d, want sleeper at %d", sl, sleeper.WakeupTick(), start+10)
	}
	for shamOS.Ticks() < start+9 {
		shamOS.Tick()
		if sleeper.Status() != StatusBlocked {
			t.Fatalf("tick %d: sleeper is %s, want blocked", shamOS.Ticks(), sleeper.Status())
		}
	}
	if shamOS.ReadyLen() != 0 {
		t.Errorf("tick %d: ready queue = %v, want empty", shamOS.Ticks(), shamOS.ReadyThreads())
	}

	shamOS.Tick()
	if shamOS.Ticks() != start+10 {
		t.Fatalf("ticks = %d, want %d", shamOS.Ticks(), start+10)
	}
	if sleeper.Status() != StatusReady {
		t.Errorf("tick %d: sleeper is %s, want ready", shamOS.Ticks(), sleeper.Status())
	}
	if rq := shamOS.ReadyThreads(); len(rq) != 1 || rq[0] != sleeper {
		t.Errorf("ready queue = %v, want [sleeper]", rq)
	}
	if len(shamOS.SleepingThreads()) != 0 {
		t.Errorf("sleeper still in the sleep set")
	}

	shamOS.Yield()
	if woke != start+10 {
		t.Errorf("sleeper resumed at tick %d, want %d", woke, start+10)
	}
}

func TestRealClockSleep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clock = ClockReal
	cfg.TimerFreq = 1000
	shamOS := bootOS(t, cfg)

	start := shamOS.Ticks()
	shamOS.Sleep(5)
	if e := shamOS.Elapsed(start); e < 5 {
		t.Errorf("elapsed = %d, want >= 5", e)
	}
}

func TestTimeSlice(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	var trace strings.Builder
	spin := func(aux interface{}) {
		for i := 0; i < 8; i++ {
			trace.WriteString(aux.(string))
			shamOS.Tick()
		}
	}
	shamOS.Create("a", PriDefault, spin, "a")
	shamOS.Create("b", PriDefault, spin, "b")
	shamOS.Sleep(20)

	if got := trace.String(); got != "aaaabbbbaaaabbbb" {
		t.Errorf("trace = %s, want aaaabbbbaaaabbbb", got)
	}
}

func TestArenaExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxThreads = 3
	shamOS := bootOS(t, cfg)

	noop := func(interface{}) {}
	if _, err := shamOS.Create("one", PriMin, noop, nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	tid, err := shamOS.Create("two", PriMin, noop, nil)
	if !errors.Is(err, ErrNoMemory) || tid != TidError {
		t.Fatalf("second create = (%d, %v), want (%d, ErrNoMemory)", tid, err, TidError)
	}

	// 线程死了之后页会被回收
	shamOS.Sleep(1)
	if _, err := shamOS.Create("three", PriMin, noop, nil); err != nil {
		t.Errorf("create after reclaim: %v", err)
	}
}

func TestKernelPanics(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	expectKernelPanic(t, shamOS, "out of range", func() {
		shamOS.SetPriority(PriMax + 1)
	})
	expectKernelPanic(t, shamOS, "nil function", func() {
		shamOS.Create("nil", PriDefault, nil, nil)
	})
	expectKernelPanic(t, shamOS, "status is running", func() {
		shamOS.Unblock(shamOS.Current())
	})
	expectKernelPanic(t, shamOS, "nice", func() {
		shamOS.SetNice(NiceMax + 1)
	})
}

func TestKernelPanicInThreadReachesMain(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	expectKernelPanic(t, shamOS, "out of range", func() {
		shamOS.Create("bad", PriMax, func(interface{}) {
			shamOS.SetPriority(PriMax + 1)
		}, nil)
	})
	if cur := shamOS.Current(); cur.Name() != "main" || cur.Status() != StatusRunning {
		t.Errorf("after kernel panic current = %v (%s), want running main", cur, cur.Status())
	}
}

func TestKernelPanicOnDeadlock(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	// main 阻塞后没人能叫醒它，也没有睡眠线程能让时钟走
	expectKernelPanic(t, shamOS, "deadlock", func() {
		shamOS.Disable()
		shamOS.Block()
	})
}

type recorder struct {
	events []Event
}

func (r *recorder) Record(e Event) { r.events = append(r.events, e) }
func (r *recorder) Flush()         {}

func (r *recorder) kinds(tid Tid) []EventKind {
	var kinds []EventKind
	for _, e := range r.events {
		if e.Tid == tid {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func TestTracer(t *testing.T) {
	rec := &recorder{}
	shamOS := NewOS(DefaultConfig())
	shamOS.SetTracer(rec)
	shamOS.Boot()
	t.Cleanup(shamOS.Shutdown)

	tid, _ := shamOS.Create("child", PriMax, func(interface{}) {}, nil)

	want := []EventKind{EventCreate, EventUnblock, EventDispatch, EventExit}
	got := rec.kinds(tid)
	if len(got) != len(want) {
		t.Fatalf("events for child = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
	for _, e := range rec.events {
		if e.Boot != shamOS.BootID() {
			t.Errorf("event boot = %s, want %s", e.Boot, shamOS.BootID())
		}
	}
}

func TestSnapshot(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	shamOS.Create("low", PriMin+1, func(interface{}) {}, nil)
	snap := shamOS.Snapshot()
	if snap.Running != shamOS.Current().Tid() {
		t.Errorf("snapshot running = %d, want %d", snap.Running, shamOS.Current().Tid())
	}
	if snap.Policy != "priority" {
		t.Errorf("policy = %s", snap.Policy)
	}
	if len(snap.Ready) != 1 {
		t.Errorf("snapshot ready = %v, want one thread", snap.Ready)
	}

	shamOS.Sleep(2)
	snap = shamOS.Snapshot()
	if snap.Tick < 2 {
		t.Errorf("snapshot tick = %d, want >= 2", snap.Tick)
	}
	if snap.Stats.Switches == 0 {
		t.Errorf("no switches recorded")
	}
}

func TestConsole(t *testing.T) {
	shamOS := bootOS(t, DefaultConfig())

	shamOS.Create("hello", PriMax, func(interface{}) {
		shamOS.Console().Println("hello from ", shamOS.Current().Name())
	}, nil)

	lines := shamOS.Console().Lines()
	if len(lines) != 1 || lines[0] != "hello from hello" {
		t.Errorf("console lines = %q", lines)
	}
}
