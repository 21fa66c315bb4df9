package monitoring

import (
	"fmt"
	"sync"
)

// EventKind enumerates the messages a generation run emits.
type EventKind int

const (
	EventProgressStart EventKind = iota
	EventProgressIncrement
	EventProgressFinish
	EventLog
	EventTaskComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgressStart:
		return "progress_start"
	case EventProgressIncrement:
		return "progress_increment"
	case EventProgressFinish:
		return "progress_finish"
	case EventLog:
		return "log"
	case EventTaskComplete:
		return "task_complete"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one message on the progress channel. Delta is only meaningful for
// EventProgressIncrement and lies in [0, 1]; Tag names the completed task for
// EventTaskComplete; Fatal marks errors that end the run.
type Event struct {
	Kind  EventKind
	Delta float64
	Text  string
	Tag   string
	Fatal bool
}

// Sink is the one-way progress channel. Implementations decide whether Send
// blocks; the pipeline never waits on a reply.
type Sink interface {
	Send(Event)
}

// Convenience constructors keep call sites short.

func ProgressStart(text string) Event { return Event{Kind: EventProgressStart, Text: text} }

func ProgressIncrement(delta float64) Event {
	if delta < 0 {
		delta = 0
	}
	if delta > 1 {
		delta = 1
	}
	return Event{Kind: EventProgressIncrement, Delta: delta}
}

func ProgressFinish() Event { return Event{Kind: EventProgressFinish} }

func LogLine(format string, v ...interface{}) Event {
	return Event{Kind: EventLog, Text: fmt.Sprintf(format, v...)}
}

func TaskComplete(tag string) Event { return Event{Kind: EventTaskComplete, Tag: tag} }

func ErrorEvent(err error, fatal bool) Event {
	return Event{Kind: EventError, Text: err.Error(), Fatal: fatal}
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Send(Event) {}

// ChannelSink forwards events to a channel. Send blocks when the channel is
// full; a consumer that cannot keep up should buffer on its side.
type ChannelSink struct {
	C chan<- Event
}

func (s ChannelSink) Send(e Event) { s.C <- e }

// LogSink writes events to the structured logger.
type LogSink struct{}

func (LogSink) Send(e Event) {
	entry := Logger.WithField("event", e.Kind.String())
	switch e.Kind {
	case EventError:
		if e.Fatal {
			entry.Error(e.Text)
		} else {
			entry.Warn(e.Text)
		}
	case EventProgressIncrement:
		entry.WithField("delta", e.Delta).Debug("progress")
	case EventTaskComplete:
		entry.WithField("tag", e.Tag).Info("task complete")
	default:
		if e.Text != "" {
			entry.Info(e.Text)
		} else {
			entry.Debug(e.Kind.String())
		}
	}
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Send(e Event) {
	for _, s := range m {
		if s != nil {
			s.Send(e)
		}
	}
}

// RecordingSink keeps every event in memory. It is safe for concurrent use
// and is mainly useful in tests and for post-run summaries.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingSink) Send(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events of the given kind.
func (r *RecordingSink) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
