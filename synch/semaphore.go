package synch

import (
	"fmt"

	"github.com/cdfmlr/sham"
	log "github.com/sirupsen/logrus"
)

// Semaphore 计数信号量。等待者按优先级排队，同优先级先来先醒。
type Semaphore struct {
	k       Kernel
	value   int
	waiters sham.WaitQueue
}

// NewSemaphore 新建一个初值为 value 的信号量
func NewSemaphore(k Kernel, value int) *Semaphore {
	if value < 0 {
		k.Panicf("semaphore initial value %d < 0", value)
	}
	return &Semaphore{k: k, value: value}
}

// Down 等到值大于 0，然后减一（P 操作）。
// 可能阻塞，所以不能在中断上下文里调用。
// 每次醒来都重新检查，被叫醒不代表一定拿得到。
func (s *Semaphore) Down() {
	if s.k.InIntr() {
		s.k.Panicf("semaphore down in interrupt context")
	}
	old := s.k.Disable()
	for s.value == 0 {
		s.k.BlockOn(&s.waiters)
	}
	s.value--
	s.k.Restore(old)
}

// TryDown 值大于 0 时减一并返回 true，否则立即返回 false。
// 不阻塞，中断上下文里也可以用。
func (s *Semaphore) TryDown() bool {
	old := s.k.Disable()
	ok := s.value > 0
	if ok {
		s.value--
	}
	s.k.Restore(old)
	return ok
}

// Up 加一，叫醒优先级最高的等待者（V 操作），
// 被叫醒的线程比当前线程更优先时让出 CPU。中断上下文里也可以用。
func (s *Semaphore) Up() {
	old := s.k.Disable()
	if t := s.k.WakeOne(&s.waiters); t != nil {
		log.WithField("woken", t.String()).Trace("[SYNCH] Semaphore Up")
	}
	s.value++
	s.k.PreemptIfNeeded()
	s.k.Restore(old)
}

// Value 返回当前的值
func (s *Semaphore) Value() int {
	old := s.k.Disable()
	defer s.k.Restore(old)
	return s.value
}

// Waiters 返回等待者的数量
func (s *Semaphore) Waiters() int {
	return s.waiters.Len()
}

const selfTestRounds = 10

// SelfTest 让控制权在两个线程之间「乒乓」：
// 新线程 Down a 然后 Up b，当前线程 Up a 然后 Down b，各十次。
func SelfTest(k Kernel) error {
	log.Info("[SYNCH] Testing semaphores...")
	sema := [2]*Semaphore{NewSemaphore(k, 0), NewSemaphore(k, 0)}

	_, err := k.Create("sema-test", sham.PriDefault, func(aux interface{}) {
		sema := aux.([2]*Semaphore)
		for i := 0; i < selfTestRounds; i++ {
			sema[0].Down()
			sema[1].Up()
		}
	}, sema)
	if err != nil {
		return fmt.Errorf("semaphore self test: %w", err)
	}

	for i := 0; i < selfTestRounds; i++ {
		sema[0].Up()
		sema[1].Down()
	}
	log.Info("[SYNCH] Testing semaphores... done.")
	return nil
}
