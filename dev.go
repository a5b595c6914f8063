package sham

import (
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
)

// device 是模拟的「IO设备」
// Inspired by *nix /dev
type device struct {
	Id string
	sync.Mutex

	output chan interface{}
}

// Console 是控制台设备：线程往里写一行，设备在后台把它打印出来。
// 写进来的行同时按顺序记下来，可以用 Lines 取回。
// 其实就是一个「生产者-消费者」问题中的「消费者」
type Console struct {
	device

	lines  []string
	closed bool
	done   chan struct{}
}

// ConsoleBufferSize：Console 的 Output chan 的 buffer 大小
const ConsoleBufferSize = 16

// NewConsole 新建 Console 设备，并使其开始工作。w 为 nil 时只记录不打印。
func NewConsole(w io.Writer) *Console {
	c := &Console{done: make(chan struct{})}

	c.Id = "console"
	c.output = make(chan interface{}, ConsoleBufferSize)

	go func() {
		defer close(c.done)
		for v := range c.output {
			if w != nil {
				fmt.Fprintln(w, "<CONSOLE>", v)
			}
		}
	}()

	return c
}

// Println 写一行。会被记录，并交给后台打印。
func (c *Console) Println(a ...interface{}) {
	line := fmt.Sprint(a...)
	log.WithField("device", c.Id).Trace("[Device] ", line)

	c.Lock()
	defer c.Unlock()
	c.lines = append(c.lines, line)
	if !c.closed {
		c.output <- line
	}
}

// Lines 返回到目前为止写过的所有行
func (c *Console) Lines() []string {
	c.Lock()
	defer c.Unlock()
	return append([]string(nil), c.lines...)
}

// Close 停止设备，等后台把已经写进来的行打印完
func (c *Console) Close() {
	c.Lock()
	if !c.closed {
		c.closed = true
		close(c.output)
	}
	c.Unlock()
	<-c.done
}
