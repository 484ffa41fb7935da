// Package runall runs a set of named sub-operations concurrently and reports
// every failure, keyed by name. Unlike errgroup it never cancels siblings and
// never drops errors: an event handler must settle all of its fan-out before
// deciding whether the whole event failed, because each sub-operation is
// individually idempotent and the event source retries whole events.
package runall

import (
	"context"
	"sync"
)

type Task func(ctx context.Context) error

// Run executes every task and waits for all of them. It returns true when all
// tasks succeeded, and a map of task name to error for the ones that did not.
func Run(ctx context.Context, tasks map[string]Task) (bool, map[string]error) {
	var (
		waitGroup sync.WaitGroup
		mu        sync.Mutex
	)

	failures := make(map[string]error)

	for name, task := range tasks {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			err := task(ctx)
			if err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
		}()
	}

	waitGroup.Wait()

	return len(failures) == 0, failures
}
