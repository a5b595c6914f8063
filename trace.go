package sham

// EventKind 是调度事件的种类
type EventKind string

const (
	EventCreate   EventKind = "create"
	EventBlock    EventKind = "block"
	EventUnblock  EventKind = "unblock"
	EventYield    EventKind = "yield"
	EventSleep    EventKind = "sleep"
	EventWake     EventKind = "wake"
	EventDonate   EventKind = "donate"
	EventExit     EventKind = "exit"
	EventDispatch EventKind = "dispatch"
)

// Event 是一个调度事件。
// Other 是事件的另一方：dispatch 时是被换下的线程，donate 时是捐赠者。
type Event struct {
	Boot     string    `json:"boot"`
	Tick     int64     `json:"tick"`
	Kind     EventKind `json:"kind"`
	Tid      Tid       `json:"tid"`
	Name     string    `json:"name"`
	Priority int       `json:"priority"`
	Other    Tid       `json:"other,omitempty"`
}

// Tracer 接收调度事件。
// Record 在持有 CPU 的执行流里、关着中断调用，不能阻塞。
type Tracer interface {
	Record(e Event)
	Flush()
}

// SetTracer 设置事件接收者，nil 表示不记录。要在 Boot 之前设置。
func (os *OS) SetTracer(t Tracer) {
	os.tracer = t
}

func (os *OS) trace(kind EventKind, t, other *Thread) {
	if os.tracer == nil {
		return
	}
	e := Event{
		Boot:     os.boot,
		Tick:     os.ticks,
		Kind:     kind,
		Tid:      t.tid,
		Name:     t.name,
		Priority: t.priority,
	}
	if other != nil {
		e.Other = other.tid
	}
	os.tracer.Record(e)
}
