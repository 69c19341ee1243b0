package taskpage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/r4u-dev/r4u-console/internal/api"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedBackend returns a fixed status sequence, repeating the last
// entry once exhausted. A nil status entry yields an error instead.
type scriptedBackend struct {
	mu     sync.Mutex
	script []any // api.OptimizationStatus or error
	calls  int
}

func (b *scriptedBackend) GetOptimization(ctx context.Context, id int64) (*api.Optimization, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	step := b.script[len(b.script)-1]
	if b.calls < len(b.script) {
		step = b.script[b.calls]
	}
	b.calls++
	if err, ok := step.(error); ok {
		return nil, err
	}
	return &api.Optimization{ID: id, Status: step.(api.OptimizationStatus)}, nil
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func collectStatuses(updates *[]api.OptimizationStatus, mu *sync.Mutex) func(*api.Optimization) {
	return func(opt *api.Optimization) {
		mu.Lock()
		defer mu.Unlock()
		*updates = append(*updates, opt.Status)
	}
}

// Polling stops on its own when a snapshot reports a terminal status, and
// the terminal snapshot is still delivered.
func TestPollerStopsOnCompletion(t *testing.T) {
	backend := &scriptedBackend{script: []any{
		api.OptimizationPending,
		api.OptimizationRunning,
		api.OptimizationCompleted,
	}}
	p := NewPoller(backend, nil, time.Millisecond)

	var mu sync.Mutex
	var updates []api.OptimizationStatus
	p.Start(context.Background(), 42, collectStatuses(&updates, &mu))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 3
	}, time.Second, time.Millisecond)
	p.Stop()

	assert.Equal(t, []api.OptimizationStatus{
		api.OptimizationPending,
		api.OptimizationRunning,
		api.OptimizationCompleted,
	}, updates)

	// Terminal status ended the loop; no further fetches happen.
	calls := backend.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, backend.callCount())
}

func TestPollerStopsOnFailure(t *testing.T) {
	backend := &scriptedBackend{script: []any{api.OptimizationFailed}}
	p := NewPoller(backend, nil, time.Millisecond)

	var mu sync.Mutex
	var updates []api.OptimizationStatus
	p.Start(context.Background(), 1, collectStatuses(&updates, &mu))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	}, time.Second, time.Millisecond)
	p.Stop()
	assert.Equal(t, api.OptimizationFailed, updates[0])
}

// Transient fetch errors keep the poll alive.
func TestPollerSurvivesFetchErrors(t *testing.T) {
	backend := &scriptedBackend{script: []any{
		api.OptimizationRunning,
		errors.New("gateway timeout"),
		api.OptimizationCompleted,
	}}
	p := NewPoller(backend, nil, time.Millisecond)

	var mu sync.Mutex
	var updates []api.OptimizationStatus
	p.Start(context.Background(), 7, collectStatuses(&updates, &mu))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 2
	}, time.Second, time.Millisecond)
	p.Stop()

	assert.Equal(t, []api.OptimizationStatus{
		api.OptimizationRunning,
		api.OptimizationCompleted,
	}, updates)
}

// Context cancellation ends the poll without further callbacks; Stop
// waits for the goroutine, so goleak in TestMain proves cleanup.
func TestPollerStopsOnContextCancel(t *testing.T) {
	backend := &scriptedBackend{script: []any{api.OptimizationRunning}}
	p := NewPoller(backend, nil, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var updates []api.OptimizationStatus
	p.Start(ctx, 3, collectStatuses(&updates, &mu))

	require.Eventually(t, func() bool { return backend.callCount() >= 2 },
		time.Second, time.Millisecond)
	cancel()
	p.Stop()

	calls := backend.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, backend.callCount())
}

// Starting a new poll stops the previous one.
func TestPollerRestartReplacesJob(t *testing.T) {
	backend := &scriptedBackend{script: []any{api.OptimizationRunning}}
	p := NewPoller(backend, nil, time.Millisecond)

	var mu sync.Mutex
	var ids []int64
	record := func(opt *api.Optimization) {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, opt.ID)
	}

	p.Start(context.Background(), 1, record)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) >= 1
	}, time.Second, time.Millisecond)

	p.Start(context.Background(), 2, record)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) >= 1 && ids[len(ids)-1] == 2
	}, time.Second, time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	seenSecond := false
	for _, id := range ids {
		if id == 2 {
			seenSecond = true
		}
		if seenSecond {
			assert.NotEqual(t, int64(1), id, "job 1 updates must all precede job 2")
		}
	}
}

func TestPollerStopWithoutStart(t *testing.T) {
	p := NewPoller(&scriptedBackend{script: []any{api.OptimizationRunning}}, nil, time.Millisecond)
	p.Stop()
	p.Stop()
}
