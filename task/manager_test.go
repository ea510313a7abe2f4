package task

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, m *Manager, id string) []Event {
	t.Helper()
	q, ok := m.Queue(id)
	require.True(t, ok)
	var out []Event
	for {
		e, ok := q.Poll(context.Background(), time.Millisecond)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func running(t *testing.T, m *Manager) string {
	t.Helper()
	id := m.Create()
	require.NoError(t, m.SetRunning(id))
	return id
}

func TestCreate(t *testing.T) {
	m := New()
	id := m.Create()

	assert.Regexp(t, regexp.MustCompile(`^task_[0-9a-f]{12}$`), id)
	p, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, p.Status)
	assert.False(t, p.CreatedAt.IsZero())

	assert.NotEqual(t, id, m.Create())
}

func TestSendProgress_WeightedOverall(t *testing.T) {
	m := New()
	id := running(t, m)

	m.SendResult(id, StageAnalyze, "analysis", map[string]any{"concepts": []string{"cache"}})
	m.SendProgress(id, StageOutline, 50, "drafting outline")

	p, _ := m.Get(id)
	assert.Equal(t, 20, p.OverallProgress)
	assert.Equal(t, StageOutline, p.CurrentStage)
	assert.Equal(t, 50, p.StageProgress)

	events := drain(t, m, id)
	require.Len(t, events, 2)
	assert.Equal(t, EventResult, events[0].Name)
	assert.Equal(t, EventProgress, events[1].Name)
	assert.Equal(t, 20, events[1].Data["overall_progress"])
	assert.Equal(t, 50, events[1].Data["progress"])
}

func TestSendProgress_TruncatesAndClamps(t *testing.T) {
	m := New()
	id := running(t, m)

	m.SendProgress(id, StageMetaphor, 33, "")
	p, _ := m.Get(id)
	assert.Equal(t, 4, p.OverallProgress) // 15 * 0.33 = 4.95

	m.SendProgress(id, StageMetaphor, 250, "")
	p, _ = m.Get(id)
	assert.Equal(t, 100, p.StageProgress)
	assert.Equal(t, 15, p.OverallProgress)

	m.SendProgress(id, "unlisted", 50, "")
	p, _ = m.Get(id)
	assert.Equal(t, 0, p.OverallProgress)
}

func TestSendProgress_Extra(t *testing.T) {
	m := New()
	id := running(t, m)

	m.SendProgress(id, StageContent, 40, "page 2", KV("current", 2), KV("total", 5), KV("stage", "ignored"))

	events := drain(t, m, id)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Data["current"])
	assert.Equal(t, 5, events[0].Data["total"])
	assert.Equal(t, StageContent, events[0].Data["stage"])
}

func TestCustomWeights(t *testing.T) {
	m := New(WithStageWeights(map[string]int{"a": 50, "b": 50}))
	id := running(t, m)

	m.SendResult(id, "a", "x", nil)
	m.SendProgress(id, "b", 10, "")

	p, _ := m.Get(id)
	assert.Equal(t, 55, p.OverallProgress)
}

func TestSendError(t *testing.T) {
	m := New()
	id := running(t, m)

	m.SendError(id, StageImage, "x", true)
	p, _ := m.Get(id)
	assert.Equal(t, StatusRunning, p.Status)
	assert.Equal(t, "x", p.Error)

	m.SendError(id, StageOutline, "no outline", false)
	p, _ = m.Get(id)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "no outline", p.Error)

	events := drain(t, m, id)
	require.Len(t, events, 2)
	assert.Equal(t, true, events[0].Data["recoverable"])
	assert.False(t, events[0].Final())
	assert.True(t, events[1].Final())
}

func TestSendComplete(t *testing.T) {
	m := New()
	id := running(t, m)

	outputs := map[string]any{"title": "Caching"}
	m.SendComplete(id, outputs)

	p, _ := m.Get(id)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 100, p.OverallProgress)
	assert.Equal(t, "Caching", p.Outputs["title"])

	events := drain(t, m, id)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].Data["task_id"])
	assert.Equal(t, "completed", events[0].Data["status"])
}

func TestTerminalStatesAreFinal(t *testing.T) {
	m := New()
	id := running(t, m)

	m.SendComplete(id, nil)
	m.SendProgress(id, StageImage, 50, "late")
	m.SendStream(id, StageOutline, "x", "x")
	m.SendResult(id, StageImage, "image", nil)
	m.SendError(id, StageImage, "late", false)
	m.SendComplete(id, map[string]any{"again": true})

	p, _ := m.Get(id)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Empty(t, p.Error)
	assert.NotContains(t, p.Outputs, "again")
	assert.Len(t, drain(t, m, id), 1)

	assert.False(t, m.Cancel(id))
	assert.Error(t, m.SetRunning(id))
}

func TestCancel(t *testing.T) {
	m := New()

	pending := m.Create()
	assert.False(t, m.Cancel(pending), "pending tasks cannot be cancelled")
	assert.False(t, m.Cancel("task_missing"))

	id := running(t, m)
	assert.True(t, m.Cancel(id))
	assert.True(t, m.Cancelled(id))
	assert.False(t, m.Cancel(id))

	m.SendProgress(id, StageContent, 10, "still working")

	events := drain(t, m, id)
	require.Len(t, events, 1)
	assert.Equal(t, EventCancelled, events[0].Name)
	assert.Equal(t, id, events[0].Data["task_id"])
}

func TestGetReturnsCopy(t *testing.T) {
	m := New()
	id := running(t, m)
	m.SendResult(id, StageAnalyze, "analysis", nil)

	p, _ := m.Get(id)
	p.Results["injected"] = StageResult{Completed: true}
	p.Status = StatusFailed

	again, _ := m.Get(id)
	assert.NotContains(t, again.Results, "injected")
	assert.Equal(t, StatusRunning, again.Status)
}

func TestUnknownTask(t *testing.T) {
	m := New()
	m.SendProgress("task_nope", StageAnalyze, 10, "")

	assert.ErrorIs(t, m.SetRunning("task_nope"), ErrTaskNotFound)
	_, err := m.Listen(context.Background(), "task_nope", time.Millisecond)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCleanup(t *testing.T) {
	m := New(WithCleanupDelay(10 * time.Millisecond))
	defer m.Close()
	id := running(t, m)
	m.SendComplete(id, nil)
	m.Cleanup(id)

	_, ok := m.Get(id)
	assert.True(t, ok, "task stays readable until the delay passes")

	assert.Eventually(t, func() bool {
		_, ok := m.Get(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
	_, ok = m.Queue(id)
	assert.False(t, ok)
}

func TestCloseStopsCleanup(t *testing.T) {
	m := New(WithCleanupDelay(20 * time.Millisecond))
	id := running(t, m)
	m.Cleanup(id)
	m.Close()

	time.Sleep(50 * time.Millisecond)
	_, ok := m.Get(id)
	assert.True(t, ok)
}

func TestListen(t *testing.T) {
	m := New()
	id := running(t, m)

	ch, err := m.Listen(context.Background(), id, 5*time.Millisecond)
	require.NoError(t, err)

	go func() {
		m.SendProgress(id, StageAnalyze, 100, "done")
		m.SendError(id, StageImage, "one image failed", true)
		m.SendComplete(id, nil)
		m.SendProgress(id, StageImage, 1, "dropped")
	}()

	var names []EventName
	for e := range ch {
		names = append(names, e.Name)
	}
	assert.Equal(t, []EventName{EventProgress, EventError, EventComplete}, names)
}

func TestListen_StopsWhenTerminalAndDrained(t *testing.T) {
	m := New()
	id := running(t, m)
	m.SendProgress(id, StageAnalyze, 50, "")
	m.Cancel(id)

	q, _ := m.Queue(id)
	_, _ = q.Poll(context.Background(), time.Millisecond)
	_, _ = q.Poll(context.Background(), time.Millisecond)

	ch, err := m.Listen(context.Background(), id, 5*time.Millisecond)
	require.NoError(t, err)

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListen_ContextCancel(t *testing.T) {
	m := New()
	id := running(t, m)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Listen(ctx, id, time.Hour)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestQueue_FIFOAcrossGoroutines(t *testing.T) {
	q := NewQueue()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(Event{Name: EventStream, Data: map[string]any{"i": i}})
		}
	}()

	for i := 0; i < n; i++ {
		e, ok := q.Poll(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, i, e.Data["i"])
	}
	wg.Wait()

	_, ok := q.Poll(context.Background(), time.Millisecond)
	assert.False(t, ok)
}

func TestEventJSON(t *testing.T) {
	e := Event{Name: EventStream, Data: map[string]any{"stage": "outline", "delta": "a", "accumulated": "ab"}}

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stream","data":{"stage":"outline","delta":"a","accumulated":"ab"}}`, string(raw))

	data, err := e.JSONData()
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"outline","delta":"a","accumulated":"ab"}`, string(data))
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, label ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if len(label) == 2 {
				match := false
				for _, lp := range metric.GetLabel() {
					if lp.GetName() == label[0] && lp.GetValue() == label[1] {
						match = true
					}
				}
				if !match {
					continue
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithMetrics(NewMetrics(reg)))

	a := running(t, m)
	b := running(t, m)
	_ = running(t, m)

	m.SendProgress(a, StageAnalyze, 10, "")
	m.SendComplete(a, nil)
	m.Cancel(b)

	assert.Equal(t, 3.0, metricValue(t, reg, "longform_tasks_created_total"))
	assert.Equal(t, 1.0, metricValue(t, reg, "longform_tasks_finished_total", "status", "completed"))
	assert.Equal(t, 1.0, metricValue(t, reg, "longform_tasks_finished_total", "status", "cancelled"))
	assert.Equal(t, 1.0, metricValue(t, reg, "longform_task_events_total", "event", "progress"))
	assert.Equal(t, 1.0, metricValue(t, reg, "longform_tasks_active"))
}
