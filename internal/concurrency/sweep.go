package concurrency

import "sync"

// DefaultSweepWorkers is the default worker count for parallel_agent_sweep,
// per spec §4.7 ("Worker count defaults to 4").
const DefaultSweepWorkers = 4

// Task is one unit of fleet work submitted to a sweep. BeforeRun is called
// on the worker goroutine just before Run; a task that observes rate
// limiting should trigger backoff there or inside Run before returning.
type Task func() error

// Sweep executes tasks concurrently with at most workers in flight. It
// returns the error from each task in the same order tasks were given.
// waitIfNeeded is invoked before every task dispatch (normally
// concurrency.WaitIfNeeded bound to the sweep's backoff.state path).
func Sweep(workers int, tasks []Task, waitIfNeeded func() error) []error {
	if workers <= 0 {
		workers = DefaultSweepWorkers
	}
	results := make([]error, len(tasks))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()
			if waitIfNeeded != nil {
				if err := waitIfNeeded(); err != nil {
					results[i] = err
					return
				}
			}
			results[i] = task()
		}(i, task)
	}
	wg.Wait()
	return results
}
