package sham

import "sort"

// byPriority 优先级高的在前；相同优先级保持先来后到。
func byPriority(a, b *Thread) bool {
	return a.priority > b.priority
}

// byWakeup 早醒的在前
func byWakeup(a, b *Thread) bool {
	return a.wakeupTick < b.wakeupTick
}

// threadList 是一个有序的线程容器。
// 就绪队列、睡眠集合、等待队列都是它，只是 tag 和排序不同。
type threadList struct {
	tag   membership
	less  func(a, b *Thread) bool
	items []*Thread
}

// insert 有序插入：插在第一个比 t「小」的元素之前，
// 所以相同键值的元素按插入顺序排列。
func (l *threadList) insert(t *Thread) {
	if t.queue != inNone {
		kernelPanic(t, "insert into %s list: thread already in %s", l.tag, t.queue)
	}
	i := sort.Search(len(l.items), func(i int) bool {
		return l.less(t, l.items[i])
	})
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = t
	t.queue = l.tag
}

// remove 把 t 从列表中拿掉
func (l *threadList) remove(t *Thread) {
	if t.queue != l.tag {
		kernelPanic(t, "remove from %s list: thread is in %s", l.tag, t.queue)
	}
	for i, x := range l.items {
		if x == t {
			l.items = append(l.items[:i], l.items[i+1:]...)
			t.queue = inNone
			return
		}
	}
	kernelPanic(t, "remove from %s list: thread not found", l.tag)
}

func (l *threadList) popFront() *Thread {
	t := l.items[0]
	l.items = l.items[1:]
	t.queue = inNone
	return t
}

func (l *threadList) front() *Thread {
	if len(l.items) == 0 {
		return nil
	}
	return l.items[0]
}

func (l *threadList) len() int {
	return len(l.items)
}

// resort 重新排序。元素的键值可能在入队之后变了（比如被捐赠了优先级）。
func (l *threadList) resort() {
	sort.SliceStable(l.items, func(i, j int) bool {
		return l.less(l.items[i], l.items[j])
	})
}

func (l *threadList) tids() []Tid {
	tids := make([]Tid, len(l.items))
	for i, t := range l.items {
		tids[i] = t.tid
	}
	return tids
}

// WaitQueue 是同步原语（信号量等）的等待队列，按优先级排序。
// 零值可用。入队出队只能通过 OS.BlockOn 和 OS.WakeOne。
type WaitQueue struct {
	list threadList
}

func (q *WaitQueue) l() *threadList {
	q.list.tag = inWait
	q.list.less = byPriority
	return &q.list
}

// Len 返回等待者数量
func (q *WaitQueue) Len() int {
	return q.list.len()
}

// Threads 返回等待者，按当前顺序
func (q *WaitQueue) Threads() []*Thread {
	return append([]*Thread(nil), q.list.items...)
}

// BlockOn 把当前线程挂到 q 上并阻塞，直到被 WakeOne 叫醒。
// 必须关着中断调用，不能在中断上下文里调用。
func (os *OS) BlockOn(q *WaitQueue) {
	os.assert(!os.cpu.inIntr, "block on wait queue in interrupt context")
	os.assert(os.cpu.level == IntrOff, "block on wait queue with interrupts on")

	cur := os.Current()
	os.vacate(cur)
	q.l().insert(cur)
	os.Block()
}

// WakeOne 叫醒 q 上优先级最高的线程（同优先级先来的先醒）。
// 队列里线程的优先级可能在入队后被捐赠改变了，所以先重排。
// 队列为空时返回 nil。不会抢占当前线程。中断上下文里也可以用。
func (os *OS) WakeOne(q *WaitQueue) *Thread {
	l := q.l()
	if l.len() == 0 {
		return nil
	}
	old := os.Disable()
	l.resort()
	t := l.popFront()
	os.Unblock(t)
	os.Restore(old)
	return t
}
