package pool

import (
	"context"
	"sync"
)

// MapFunc defines the function signature for a worker that turns an item into a result.
type MapFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Result is the outcome for the item at Index. Skipped items were never
// started because the context was cancelled; their Err is the context error.
type Result[R any] struct {
	Index   int
	Value   R
	Err     error
	Skipped bool
}

// Map executes a worker pool over items and returns one Result per item, in
// input order regardless of completion order.
func Map[T, R any](ctx context.Context, items []T, numWorkers int, fn MapFunc[T, R]) []Result[R] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	results := make([]Result[R], len(items))
	for i := range results {
		results[i] = Result[R]{Index: i, Skipped: true}
	}

	var wg sync.WaitGroup
	taskChan := make(chan int, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				if ctx.Err() != nil {
					continue
				}
				value, err := fn(ctx, items[idx])
				results[idx] = Result[R]{Index: idx, Value: value, Err: err}
			}
		}()
	}

OUT:
	for idx := range items {
		select {
		case taskChan <- idx:
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(taskChan)
	wg.Wait()

	for i := range results {
		if results[i].Skipped {
			results[i].Err = ctx.Err()
		}
	}
	return results
}

// Errors returns the errors of the items that ran and failed.
func Errors[R any](results []Result[R]) []error {
	var allErrors []error
	for _, r := range results {
		if !r.Skipped && r.Err != nil {
			allErrors = append(allErrors, r.Err)
		}
	}
	return allErrors
}
