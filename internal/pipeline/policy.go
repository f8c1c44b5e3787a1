package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of concurrent ingestion work.
type Task func(ctx context.Context) error

// Policy decides how concurrent task failures combine.
type Policy interface {
	Run(ctx context.Context, tasks []Task) error
	Name() string
}

// ParsePolicy accepts "fail-fast" and "collect".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-fast", "failfast":
		return FailFast{}, nil
	case "collect":
		return CollectErrors{}, nil
	default:
		return nil, fmt.Errorf("unknown ingest policy: %q", s)
	}
}

// FailFast runs tasks concurrently; the first failure cancels the rest and
// is returned.
type FailFast struct{}

func (FailFast) Name() string { return "fail-fast" }

func (FailFast) Run(ctx context.Context, tasks []Task) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(ctx) })
	}
	return g.Wait()
}

// CollectErrors runs every task to completion and returns a *PartialError
// holding all failures.
type CollectErrors struct{}

func (CollectErrors) Name() string { return "collect" }

func (CollectErrors) Run(ctx context.Context, tasks []Task) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(ctx); err != nil {
				mu.Lock()
				errs = append(errs, flatten(err)...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(errs) == 0 {
		return nil
	}
	return &PartialError{Errs: errs}
}

// PartialError reports the tasks that failed under CollectErrors. Results
// from the tasks that succeeded are still returned alongside it.
type PartialError struct {
	Errs []error
}

func (e *PartialError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	return fmt.Sprintf("%d failures, first: %v", len(e.Errs), e.Errs[0])
}

func (e *PartialError) Unwrap() []error { return e.Errs }

func flatten(err error) []error {
	var pe *PartialError
	if errors.As(err, &pe) {
		return pe.Errs
	}
	return []error{err}
}
