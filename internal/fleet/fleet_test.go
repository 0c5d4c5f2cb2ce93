package fleet

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igmonitor/pkg/logger"
)

type fakeRunner struct {
	name    string
	run     func(ctx context.Context) error
	started atomic.Int32
}

func (f *fakeRunner) Username() string { return f.name }

func (f *fakeRunner) Run(ctx context.Context) error {
	f.started.Add(1)
	return f.run(ctx)
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestFleetRunsEveryRunnerConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var running atomic.Int32
	release := make(chan struct{})

	runner := func(name string) *fakeRunner {
		return &fakeRunner{name: name, run: func(ctx context.Context) error {
			if running.Add(1) == 3 {
				close(release)
			}
			return blockUntilDone(ctx)
		}}
	}

	f := New(logger.NewNopLogger())
	runners := []*fakeRunner{runner("a"), runner("b"), runner("c")}
	for _, r := range runners {
		f.Add(r)
	}
	require.Equal(t, 3, f.Size())

	done := make(chan []Result, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case <-release:
	case <-time.After(5 * time.Second):
		t.Fatal("runners did not start concurrently")
	}
	cancel()

	results := <-done
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, runners[i].name, r.Username)
		assert.NoError(t, r.Err)
		assert.Equal(t, int32(1), runners[i].started.Load())
	}
	assert.NoError(t, FirstError(results))
}

func TestFleetIsolatesFailures(t *testing.T) {
	boom := errors.New("boom")
	f := New(logger.NewNopLogger())
	f.Add(&fakeRunner{name: "ok", run: func(ctx context.Context) error { return nil }})
	f.Add(&fakeRunner{name: "bad", run: func(ctx context.Context) error { return boom }})
	f.Add(&fakeRunner{name: "panics", run: func(ctx context.Context) error { panic("nil map") }})

	results := f.Run(context.Background())
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	require.Error(t, results[2].Err)
	assert.Contains(t, results[2].Err.Error(), "panicked")
	assert.ErrorIs(t, FirstError(results), boom)
}

func TestFleetEmpty(t *testing.T) {
	assert.Empty(t, New(nil).Run(context.Background()))
}
