package analyzer

import (
	"context"
	"sync"

	"ai-sentinel/internal/domain/detection"
)

// Run is the handle of one submitted analysis. It resolves exactly once.
type Run struct {
	generation uint64
	done       chan struct{}
	once       sync.Once
	result     *detection.DetectionResult
	err        error
}

func newRun(generation uint64) *Run {
	return &Run{generation: generation, done: make(chan struct{})}
}

func (r *Run) complete(result *detection.DetectionResult, err error) {
	r.once.Do(func() {
		r.result = result
		r.err = err
		close(r.done)
	})
}

// Generation identifies the session this run belongs to.
func (r *Run) Generation() uint64 { return r.generation }

// Done is closed once the run has resolved.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run resolves or ctx ends.
func (r *Run) Wait(ctx context.Context) (*detection.DetectionResult, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the result of a successful run, nil otherwise.
func (r *Run) Result() *detection.DetectionResult {
	select {
	case <-r.done:
		return r.result
	default:
		return nil
	}
}

// Err returns the failure of a resolved run, nil while pending or on success.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}
