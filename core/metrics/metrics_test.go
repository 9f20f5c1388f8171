package metrics

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountsByOutcome(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := New(reg, nil)

	r.Start(AddElement).Stop(nil)
	r.Start(AddElement).Stop(nil)
	r.Start(AddElement).Stop(errors.New("conflict"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ops.WithLabelValues(AddElement, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ops.WithLabelValues(AddElement, "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.durations))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{"docgraph_operation_duration_seconds", "docgraph_operations_total"}, names)
}

func TestTimer_Done(t *testing.T) {
	t.Parallel()

	r := New(nil, nil)

	run := func(fail bool) (err error) {
		defer r.Start(Get).Done(&err)
		if fail {
			return errors.New("boom")
		}
		return nil
	}
	_ = run(false)
	_ = run(true)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Get, snap[0].Name)
	assert.Equal(t, int64(2), snap[0].Count)
	assert.Equal(t, int64(1), snap[0].Errors)
}

func TestSnapshot_SortedAndAggregated(t *testing.T) {
	t.Parallel()

	r := New(nil, nil)
	r.observe(Search, 10*time.Millisecond, nil)
	r.observe(Search, 30*time.Millisecond, nil)
	r.observe(BulkExecute, time.Millisecond, nil)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, BulkExecute, snap[0].Name)
	assert.Equal(t, Search, snap[1].Name)
	assert.Equal(t, 40*time.Millisecond, snap[1].Total)
	assert.Equal(t, 30*time.Millisecond, snap[1].Max)
	assert.Equal(t, 20*time.Millisecond, snap[1].Mean())
	assert.Zero(t, Summary{}.Mean())
}

func TestLogSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := New(nil, slog.New(slog.NewTextHandler(&buf, nil)))
	r.observe(Initialization, time.Millisecond, nil)

	r.LogSummary()
	assert.Contains(t, buf.String(), `name=initialization`)
	assert.Contains(t, buf.String(), `count=1`)
}
