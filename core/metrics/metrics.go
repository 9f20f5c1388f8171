// Package metrics times service operations. Every timer feeds a prometheus
// histogram and counter and an in-process summary that is logged on demand.
package metrics

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Timer names.
const (
	Initialization = "initialization"
	BulkExecute    = "bulk execute"
	AddElement     = "add element"
	RemoveElement  = "remove element"
	UpdateProperty = "update property"
	RemoveProperty = "remove property"
	Get            = "get"
	Search         = "search"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Recorder collects operation timings.
type Recorder struct {
	durations *prometheus.HistogramVec
	ops       *prometheus.CounterVec
	logger    *slog.Logger

	mu      sync.Mutex
	summary map[string]*Summary
}

// Summary aggregates the observations of one timer.
type Summary struct {
	Name   string
	Count  int64
	Errors int64
	Total  time.Duration
	Max    time.Duration
}

// Mean returns the average observed duration.
func (s Summary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// New creates a recorder registering its collectors with reg. A nil reg
// leaves the collectors unregistered.
func New(reg prometheus.Registerer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	factory := promauto.With(reg)

	return &Recorder{
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docgraph",
			Name:      "operation_duration_seconds",
			Help:      "Duration of graph operations against the document store",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"operation"}),
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docgraph",
			Name:      "operations_total",
			Help:      "Total graph operations by outcome",
		}, []string{"operation", "outcome"}),
		logger:  logger,
		summary: make(map[string]*Summary),
	}
}

// Timer measures one operation.
type Timer struct {
	r     *Recorder
	name  string
	start time.Time
}

// Start begins timing the named operation.
func (r *Recorder) Start(name string) *Timer {
	return &Timer{r: r, name: name, start: time.Now()}
}

// Stop records the elapsed time with the outcome given by err.
func (t *Timer) Stop(err error) time.Duration {
	elapsed := time.Since(t.start)
	t.r.observe(t.name, elapsed, err)
	return elapsed
}

// Done is Stop for deferred use with a named error result:
//
//	defer rec.Start(metrics.Get).Done(&err)
func (t *Timer) Done(errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	t.Stop(err)
}

func (r *Recorder) observe(name string, elapsed time.Duration, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	r.durations.WithLabelValues(name).Observe(elapsed.Seconds())
	r.ops.WithLabelValues(name, outcome).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.summary[name]
	if !ok {
		s = &Summary{Name: name}
		r.summary[name] = s
	}
	s.Count++
	if err != nil {
		s.Errors++
	}
	s.Total += elapsed
	if elapsed > s.Max {
		s.Max = elapsed
	}
}

// Snapshot returns the summaries of every timer observed so far, by name.
func (r *Recorder) Snapshot() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.summary))
	for _, s := range r.summary {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LogSummary writes one line per timer.
func (r *Recorder) LogSummary() {
	for _, s := range r.Snapshot() {
		r.logger.Info("timer",
			slog.String("name", s.Name),
			slog.Int64("count", s.Count),
			slog.Int64("errors", s.Errors),
			slog.Duration("total", s.Total),
			slog.Duration("mean", s.Mean()),
			slog.Duration("max", s.Max))
	}
}
