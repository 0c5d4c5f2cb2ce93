package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"igmonitor/pkg/logger"
)

// Runner is one long-lived monitor bound to a username
type Runner interface {
	Username() string
	Run(ctx context.Context) error
}

// Result reports how a runner ended
type Result struct {
	Username string
	Err      error
	Duration time.Duration
}

// Fleet runs one worker per runner. Workers share nothing but what the
// runners themselves were built with.
type Fleet struct {
	runners []Runner
	wg      sync.WaitGroup
	logger  logger.Logger
}

// New creates an empty fleet
func New(log logger.Logger) *Fleet {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fleet{logger: log}
}

// Add queues r to be started by Run
func (f *Fleet) Add(r Runner) {
	f.runners = append(f.runners, r)
}

// Size returns the number of queued runners
func (f *Fleet) Size() int { return len(f.runners) }

// Run starts every runner and blocks until all of them return. Results
// come back in the order runners were added.
func (f *Fleet) Run(ctx context.Context) []Result {
	f.logger.InfoWithFields("Starting monitor fleet", map[string]interface{}{
		"num_workers": len(f.runners),
	})

	results := make([]Result, len(f.runners))
	for i, r := range f.runners {
		f.wg.Add(1)
		go f.worker(ctx, i, r, &results[i])
	}
	f.wg.Wait()

	f.logger.Info("Monitor fleet stopped")
	return results
}

func (f *Fleet) worker(ctx context.Context, id int, r Runner, out *Result) {
	defer f.wg.Done()

	start := time.Now()
	res := Result{Username: r.Username()}
	fields := map[string]interface{}{"worker_id": id, "username": res.Username}
	f.logger.DebugWithFields("Worker started", fields)

	func() {
		defer func() {
			if p := recover(); p != nil {
				res.Err = fmt.Errorf("monitor for %s panicked: %v", res.Username, p)
			}
		}()
		res.Err = r.Run(ctx)
	}()
	res.Duration = time.Since(start)

	if res.Err != nil {
		f.logger.WithError(res.Err).ErrorWithFields("Worker stopped with error", fields)
	} else {
		f.logger.DebugWithFields("Worker stopped", fields)
	}
	*out = res
}

// FirstError returns the first failed result's error, if any
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
