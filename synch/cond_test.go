package synch

import (
	"strconv"
	"strings"
	"testing"

	"github.com/cdfmlr/sham"
)

func startWaiters(shamOS *sham.OS, l *Lock, c *Cond, order *[]string) {
	for _, p := range []int{32, 36, 34} {
		shamOS.Create("w"+strconv.Itoa(p), p, func(interface{}) {
			l.Acquire()
			c.Wait(l)
			*order = append(*order, shamOS.Current().Name())
			l.Release()
		}, nil)
	}
}

func TestCondSignalByPriority(t *testing.T) {
	shamOS := bootOS(t, sham.DefaultConfig())

	l := NewLock(shamOS, "l")
	c := NewCond(shamOS)
	var order []string
	startWaiters(shamOS, l, c, &order)
	if c.Waiters() != 3 {
		t.Fatalf("waiters = %d, want 3", c.Waiters())
	}

	for i := 0; i < 3; i++ {
		l.Acquire()
		c.Signal(l)
		l.Release()
	}

	if got := strings.Join(order, ","); got != "w36,w34,w32" {
		t.Errorf("order = %s, want w36,w34,w32", got)
	}
}

func TestCondBroadcast(t *testing.T) {
	shamOS := bootOS(t, sham.DefaultConfig())

	l := NewLock(shamOS, "l")
	c := NewCond(shamOS)
	var order []string
	startWaiters(shamOS, l, c, &order)

	l.Acquire()
	c.Broadcast(l)
	l.Release()

	if got := strings.Join(order, ","); got != "w36,w34,w32" {
		t.Errorf("order = %s, want w36,w34,w32", got)
	}
	if c.Waiters() != 0 {
		t.Errorf("waiters left: %d", c.Waiters())
	}
}

func TestCondSignalEmpty(t *testing.T) {
	shamOS := bootOS(t, sham.DefaultConfig())

	l := NewLock(shamOS, "l")
	c := NewCond(shamOS)
	l.Acquire()
	c.Signal(l)
	c.Broadcast(l)
	l.Release()
}
