package sham

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ErrNoMemory 没有空闲的页来放新线程
var ErrNoMemory = errors.New("sham: no free page for thread")

// KernelPanic 是违反内核约定（断言失败）时 panic 的值。
// 这类错误不可恢复：唯一的执行流已经处于不一致的状态。
type KernelPanic struct {
	Thread string
	Msg    string
}

func (p *KernelPanic) Error() string {
	return fmt.Sprintf("kernel panic in %s: %s", p.Thread, p.Msg)
}

func kernelPanic(t *Thread, format string, args ...interface{}) {
	p := &KernelPanic{
		Thread: t.String(),
		Msg:    fmt.Sprintf(format, args...),
	}
	entry := log.NewEntry(log.StandardLogger())
	if t != nil {
		entry = entry.WithFields(t.fields())
	}
	entry.Error("[KERNEL PANIC] ", p.Msg)
	panic(p)
}

// Panicf 以当前线程的名义 panic
func (os *OS) Panicf(format string, args ...interface{}) {
	kernelPanic(os.cpu.thread, format, args...)
}

func (os *OS) assert(cond bool, format string, args ...interface{}) {
	if !cond {
		os.Panicf(format, args...)
	}
}
