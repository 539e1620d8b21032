package telemetry

import (
	"strings"
	"sync"
)

type Level int

const (
	LevelBroken Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
	LevelCount
)

type Event struct {
	Level  Level
	ID     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps every report in memory so tests can make
// assertions about what was logged.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.record(Event{Level: LevelBroken, ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.record(Event{Level: LevelWarning, ID: id, Params: params})
}

func (r *Recorder) ReportInfo(msg string, params ...any) {
	r.record(Event{Level: LevelInfo, ID: msg, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.record(Event{Level: LevelDebug, ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.record(Event{Level: LevelCount, ID: id, Count: count})
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the events of the given level whose id ends with suffix.
func (r *Recorder) Filter(level Level, suffix string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Level == level && strings.HasSuffix(e.ID, suffix) {
			out = append(out, e)
		}
	}
	return out
}
