package trace

import (
	"context"
	"sync"

	"github.com/cdfmlr/sham"
	"go.uber.org/atomic"
)

const (
	recorderBuffer = 1024
	batchSize      = 256
)

type item struct {
	ev  sham.Event
	ack chan struct{}
}

// Recorder 是 sham.Tracer：事件先进缓冲，后台 goroutine 成批写库，
// 不让调度路径等数据库。
type Recorder struct {
	store *Store
	in    chan item
	done  chan struct{}
	once  sync.Once

	written atomic.Int64
	failed  atomic.Int64
}

var _ sham.Tracer = (*Recorder)(nil)

// NewRecorder 新建 Recorder 并开始后台写库
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		in:    make(chan item, recorderBuffer),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record 记一个事件
func (r *Recorder) Record(e sham.Event) {
	r.in <- item{ev: e}
}

// Flush 等到之前记的事件都写进库
func (r *Recorder) Flush() {
	ack := make(chan struct{})
	select {
	case r.in <- item{ack: ack}:
		<-ack
	case <-r.done:
	}
}

// Close 写完剩下的事件，停止后台 goroutine。之后不能再 Record。
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.in)
		<-r.done
	})
}

// Written 返回成功写入的事件数
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Failed 返回写入失败的事件数
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

func (r *Recorder) loop() {
	defer close(r.done)

	batch := make([]sham.Event, 0, batchSize)
	for it := range r.in {
		if it.ack != nil {
			close(it.ack)
			continue
		}
		batch = append(batch[:0], it.ev)

		var ack chan struct{}
	drain:
		for len(batch) < batchSize {
			select {
			case next, ok := <-r.in:
				if !ok {
					break drain
				}
				if next.ack != nil {
					ack = next.ack
					break drain
				}
				batch = append(batch, next.ev)
			default:
				break drain
			}
		}

		r.write(batch)
		if ack != nil {
			close(ack)
		}
	}
}

func (r *Recorder) write(batch []sham.Event) {
	if err := r.store.Insert(context.Background(), batch); err != nil {
		r.failed.Add(int64(len(batch)))
		r.store.log.WithError(err).WithField("events", len(batch)).Error("[Trace] write failed")
		return
	}
	r.written.Add(int64(len(batch)))
}
