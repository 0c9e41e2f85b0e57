package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/WithSecureOpenSource/mittn/value"
)

// MethodDriver builds the Driver to use for one HTTP method. RunMethods
// calls it once per entry in methods, letting each sub-pipeline carry
// its own Prober and Archive handle rather than sharing one across
// concurrently running scenarios.
type MethodDriver func(method string) *Driver

// RunMethods dispatches one synchronous sub-pipeline per method in
// methods, each a thin, already-synchronous Driver.RunStatic call
// independent of the others. Up to concurrency sub-pipelines run at
// once; this fans work out across methods at the caller level and
// does not relax the single-threaded-per-scenario contract any
// individual Driver still honors.
func RunMethods(ctx context.Context, methods []string, concurrency int64, newDriver MethodDriver, tmpl value.Value) ([]Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(concurrency)
	results := make([]Result, len(methods))
	errs := make([]error, len(methods))

	g, gctx := errgroup.WithContext(ctx)
	for i, method := range methods {
		i, method := i, method
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, fmt.Errorf("pipeline: acquiring semaphore: %w", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			d := newDriver(method)
			d.Config.Methods = []string{method}
			r, err := d.RunStatic(gctx, tmpl)
			results[i] = r
			errs[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
