package change

import (
	"context"
	"fmt"
	"sync"

	"github.com/anchorhq/anchor/pkg/log"
)

// Sequential runs its children strictly in order, waiting for each to finish
// before starting the next. The first failure stops the sequence; later
// children are not started.
type Sequential struct {
	Changes []Change
}

// Sequentially builds a Sequential from the given changes.
func Sequentially(changes ...Change) Sequential {
	return Sequential{Changes: changes}
}

func (c Sequential) Run(ctx context.Context, target *Target) error {
	for _, child := range c.Changes {
		if err := child.Run(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

// Parallel starts all of its children concurrently and waits for every one
// of them to finish. A failing child never cancels its siblings; once all
// are done, the combinator fails with the first failure encountered while
// logging every failure that occurred.
type Parallel struct {
	Changes []Change
}

// InParallel builds a Parallel from the given changes.
func InParallel(changes ...Change) Parallel {
	return Parallel{Changes: changes}
}

func (c Parallel) Run(ctx context.Context, target *Target) error {
	errs := make([]error, len(c.Changes))

	var wg sync.WaitGroup
	for i, child := range c.Changes {
		wg.Add(1)
		go func(i int, child Change) {
			defer wg.Done()
			errs[i] = child.Run(ctx, target)
		}(i, child)
	}
	wg.Wait()

	var first error
	failures := 0
	logger := log.WithComponent("change")
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures++
		logger.Error().Err(err).Msg("parallel change failed")
		if first == nil {
			first = err
		}
	}
	if first == nil {
		return nil
	}
	return &ParallelError{First: first, Failures: failures}
}

// ParallelError aggregates the failures of a Parallel run. It carries the
// first failure encountered and the total failure count; every individual
// failure has already been logged.
type ParallelError struct {
	First    error
	Failures int
}

func (e *ParallelError) Error() string {
	return fmt.Sprintf("%d parallel change(s) failed, first: %v", e.Failures, e.First)
}

func (e *ParallelError) Unwrap() error {
	return e.First
}
