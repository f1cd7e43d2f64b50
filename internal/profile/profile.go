// Package profile implements the opt-in, mutex-guarded query-timing state
// described in spec §5 ("Per-silo profile timing state is written behind a
// mutex; profiling is opt-in") and the CLI's --profile flag.
//
// It is adapted from the teacher's internal/trace package: the same
// PendingEvent/Event/Sink shape, narrowed to per-query timing (the
// teacher's /proc/stat and /proc/meminfo CPU/memory samplers have no
// analogue in a query engine and are dropped) and extended with an
// in-memory summary a silo can render on demand (Silo.ProfileString).
package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

var start = time.Now()

// Profiler accumulates per-query timing, optionally also emitting Chrome
// trace events to a sink (set via SetSink, or Silo.SetProfileSink).
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	sink    io.Writer
	entries []Entry
}

// Entry is one completed query execution's timing.
type Entry struct {
	XPath    string
	Duration time.Duration
}

// New returns a disabled Profiler; call Enable to turn it on.
func New() *Profiler { return &Profiler{} }

// Enable turns on accumulation of Entry records.
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

// Enabled reports whether profiling is on.
func (p *Profiler) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetSink directs Chrome trace events ("X" phase, microsecond timestamps,
// loadable via chrome://tracing) to w, matching the teacher's Sink().
func (p *Profiler) SetSink(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = w
	if w != nil {
		w.Write([]byte{'['})
	}
}

type traceEvent struct {
	Name           string `json:"name"`
	Type           string `json:"ph"`
	ClockTimestamp uint64 `json:"ts"`
	Duration       uint64 `json:"dur"`
	Pid            uint64 `json:"pid"`
}

// Start begins timing an execution of xpath. Call the returned func when
// the execution completes.
func (p *Profiler) Start(xpath string) func() {
	if !p.Enabled() {
		return func() {}
	}
	begin := time.Now()
	ts := uint64(begin.Sub(start) / time.Microsecond)
	return func() {
		d := time.Since(begin)
		p.mu.Lock()
		p.entries = append(p.entries, Entry{XPath: xpath, Duration: d})
		sink := p.sink
		p.mu.Unlock()
		if sink == nil {
			return
		}
		ev := traceEvent{
			Name:           xpath,
			Type:           "X",
			ClockTimestamp: ts,
			Duration:       uint64(d / time.Microsecond),
			Pid:            1,
		}
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.sink.Write(append(b, ','))
		p.mu.Unlock()
	}
}

// String renders an accumulated summary (total executions, total and mean
// duration per distinct XPath), for the CLI --profile flag and
// Silo.ProfileString.
func (p *Profiler) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	totals := make(map[string]time.Duration)
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, e := range p.entries {
		if _, ok := totals[e.XPath]; !ok {
			order = append(order, e.XPath)
		}
		totals[e.XPath] += e.Duration
		counts[e.XPath]++
	}
	var out string
	for _, xpath := range order {
		mean := totals[xpath] / time.Duration(counts[xpath])
		out += fmt.Sprintf("%s: %d runs, %s total, %s mean\n", xpath, counts[xpath], totals[xpath], mean)
	}
	return out
}
