package sham

import "testing"

func TestThreadListOrderAndTies(t *testing.T) {
	l := threadList{tag: inReady, less: byPriority}
	a := newThread("a", 10, nil, nil)
	b := newThread("b", 20, nil, nil)
	c := newThread("c", 10, nil, nil)
	d := newThread("d", 20, nil, nil)
	for _, th := range []*Thread{a, b, c, d} {
		l.insert(th)
	}

	want := []*Thread{b, d, a, c}
	for i, th := range want {
		if l.items[i] != th {
			t.Errorf("items[%d] = %s, want %s", i, l.items[i].Name(), th.Name())
		}
	}

	l.remove(d)
	if d.queue != inNone || l.len() != 3 {
		t.Errorf("remove: queue=%s len=%d", d.queue, l.len())
	}

	// 优先级变了以后重排，相同优先级保持原顺序
	a.priority = 30
	l.resort()
	if l.front() != a {
		t.Errorf("front = %s, want a", l.front().Name())
	}
}

func TestThreadListMembership(t *testing.T) {
	ready := threadList{tag: inReady, less: byPriority}
	sleeping := threadList{tag: inSleep, less: byWakeup}
	th := newThread("t", PriDefault, nil, nil)
	ready.insert(th)

	mustPanic := func(name string, fn func()) {
		defer func() {
			if _, ok := recover().(*KernelPanic); !ok {
				t.Errorf("%s: expected kernel panic", name)
			}
		}()
		fn()
	}
	mustPanic("double insert", func() { sleeping.insert(th) })
	mustPanic("wrong remove", func() { sleeping.remove(th) })
}

func TestMemory(t *testing.T) {
	m := NewMemory(2)
	a := newThread("a", PriDefault, nil, nil)
	b := newThread("b", PriDefault, nil, nil)
	c := newThread("c", PriDefault, nil, nil)

	if !m.Alloc(a) || !m.Alloc(b) {
		t.Fatal("alloc failed with free pages")
	}
	if m.Alloc(c) {
		t.Fatal("alloc succeeded with no free pages")
	}
	if m.InUse() != 2 || m.Cap() != 2 {
		t.Errorf("in use %d cap %d", m.InUse(), m.Cap())
	}

	m.Free(a)
	m.Free(a)
	if m.InUse() != 1 {
		t.Errorf("in use after free = %d, want 1", m.InUse())
	}
	if !m.Alloc(c) {
		t.Error("alloc after free failed")
	}
}
