package sham

// Memory 是模拟的「内存」：固定数量的页，每页放一个线程记录。
// 线程用 slot 下标指向自己所在的页。
// 页只在线程彻底不再是当前执行流之后才回收（见 OS.reclaim）。
type Memory struct {
	pages []*Thread
	free  []int
}

// NewMemory 新建一个有 n 页的「内存」
func NewMemory(n int) *Memory {
	m := &Memory{
		pages: make([]*Thread, n),
		free:  make([]int, 0, n),
	}
	for i := n - 1; i >= 0; i-- {
		m.free = append(m.free, i)
	}
	return m
}

// Alloc 给 t 分一页。没有空闲页时返回 false。
func (m *Memory) Alloc(t *Thread) bool {
	if len(m.free) == 0 {
		return false
	}
	slot := m.free[len(m.free)-1]
	m.free = m.free[:len(m.free)-1]
	m.pages[slot] = t
	t.slot = slot
	return true
}

// Free 归还 t 所占的页
func (m *Memory) Free(t *Thread) {
	if t.slot < 0 || m.pages[t.slot] != t {
		return
	}
	m.pages[t.slot] = nil
	m.free = append(m.free, t.slot)
	t.slot = -1
}

// InUse 返回已分配的页数
func (m *Memory) InUse() int {
	return len(m.pages) - len(m.free)
}

// Cap 返回总页数
func (m *Memory) Cap() int {
	return len(m.pages)
}
