package concurrent

import (
	"context"
	"sync"
)

// Result represents the result of a parallel operation
type Result[T any] struct {
	Value T
	Error error
	Index int // Original index in the input slice
}

// Task represents a function to be executed in parallel
type Task[T any] func(ctx context.Context) (T, error)

// ParallelExecuteWithLimit executes tasks in parallel with a concurrency limit
// maxConcurrent specifies the maximum number of tasks running simultaneously
func ParallelExecuteWithLimit[T any](ctx context.Context, tasks []Task[T], maxConcurrent int) []Result[T] {
	if maxConcurrent <= 0 {
		maxConcurrent = len(tasks) // No limit
	}

	results := make([]Result[T], len(tasks))
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, maxConcurrent)

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task[T]) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			value, err := t(ctx)
			results[index] = Result[T]{
				Value: value,
				Error: err,
				Index: index,
			}
		}(i, task)
	}

	wg.Wait()
	return results
}

// ParallelMapWithLimit executes a function on each item in parallel with a concurrency limit
func ParallelMapWithLimit[T any, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), maxConcurrent int) []Result[R] {
	return ParallelExecuteWithLimit(ctx, tasksFor(items, fn), maxConcurrent)
}

// ParallelMapUntil is ParallelMapWithLimit bounded by ctx: it returns as soon as
// every item finished or ctx is done, whichever comes first. Items that did not
// finish in time are reported with ctx.Err(). Stragglers keep running in the
// background but their results are discarded.
func ParallelMapUntil[T any, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), maxConcurrent int) []Result[R] {
	if maxConcurrent <= 0 {
		maxConcurrent = len(items)
	}

	results := make([]Result[R], len(items))
	done := make([]bool, len(items))
	if len(items) == 0 {
		return results
	}

	// buffered so stragglers never block after we stop listening
	out := make(chan Result[R], len(items))
	semaphore := make(chan struct{}, maxConcurrent)

	for i, item := range items {
		go func(index int, item T) {
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				out <- Result[R]{Error: ctx.Err(), Index: index}
				return
			}
			defer func() { <-semaphore }()

			value, err := fn(ctx, item)
			out <- Result[R]{Value: value, Error: err, Index: index}
		}(i, item)
	}

	for received := 0; received < len(items); received++ {
		select {
		case r := <-out:
			results[r.Index] = r
			done[r.Index] = true
		case <-ctx.Done():
			for i := range results {
				if !done[i] {
					results[i] = Result[R]{Error: ctx.Err(), Index: i}
				}
			}
			return results
		}
	}

	return results
}

// CollectResults separates successful results from errors
func CollectResults[T any](results []Result[T]) (values []T, errors []error) {
	values = make([]T, 0, len(results))
	errors = make([]error, 0)

	for _, result := range results {
		if result.Error != nil {
			errors = append(errors, result.Error)
		} else {
			values = append(values, result.Value)
		}
	}

	return values, errors
}

// HasErrors returns true if any result contains an error
func HasErrors[T any](results []Result[T]) bool {
	for _, result := range results {
		if result.Error != nil {
			return true
		}
	}
	return false
}

func tasksFor[T any, R any](items []T, fn func(ctx context.Context, item T) (R, error)) []Task[R] {
	tasks := make([]Task[R], len(items))
	for i, item := range items {
		tasks[i] = func(ctx context.Context) (R, error) {
			return fn(ctx, item)
		}
	}
	return tasks
}
