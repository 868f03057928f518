package botcore

import (
	"fmt"
	"sync"
	"time"
)

type Severity int

const (
	SevInfo Severity = iota
	SevSuccess
	SevWait
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevSuccess:
		return "success"
	case SevWait:
		return "wait"
	case SevError:
		return "error"
	default:
		return "info"
	}
}

// LogEvent is one immutable, timestamped log record.
type LogEvent struct {
	Time time.Time
	Sev  Severity
	Msg  string
}

// Sink consumes progress events for display. Implementations must not block;
// the core fires events inline from the campaign goroutine.
type Sink interface {
	Event(LogEvent)
	Wallets([]Snapshot)
	RunState(State)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Event(LogEvent)     {}
func (NopSink) Wallets([]Snapshot) {}
func (NopSink) RunState(State)     {}

// EventLog is a bounded append-only log consumed by the status sink. Oldest
// entries are evicted past the cap.
type EventLog struct {
	mu     sync.Mutex
	cap    int
	events []LogEvent
	sink   Sink
}

func NewEventLog(cap int, sink Sink) *EventLog {
	if cap <= 0 {
		cap = 500
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &EventLog{cap: cap, sink: sink}
}

func (l *EventLog) Logf(sev Severity, format string, a ...any) {
	ev := LogEvent{Time: time.Now(), Sev: sev, Msg: fmt.Sprintf(format, a...)}
	l.mu.Lock()
	l.events = append(l.events, ev)
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
	l.mu.Unlock()
	l.sink.Event(ev)
}

// Events returns a copy of the buffered events, oldest first.
func (l *EventLog) Events() []LogEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *EventLog) Clear() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

func (l *EventLog) Sink() Sink { return l.sink }
