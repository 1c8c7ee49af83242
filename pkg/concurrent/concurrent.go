package concurrent

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/kinetic/pkg/sequence"
)

// Concurrent runs the action function for each element of the iterator in a
// separate goroutine. It waits for all goroutines to finish. If action
// returns an error, it returns the first error encountered.
func Concurrent[T any](i *sequence.Iterator[T], action func(T) error) error {
	errGroup := errgroup.Group{}
	next, stop := i.Pull()
	defer stop()

	for {
		value, valid := next()
		if !valid {
			break
		}

		errGroup.Go(func() error {
			return action(value)
		})
	}

	return errGroup.Wait()
}

// ConcurrentLimit behaves like Concurrent but caps the number of goroutines
// running at once. A limit below one runs everything in the calling
// goroutine's group without a cap.
func ConcurrentLimit[T any](i *sequence.Iterator[T], limit int, action func(T) error) error {
	errGroup := errgroup.Group{}
	if limit > 0 {
		errGroup.SetLimit(limit)
	}
	next, stop := i.Pull()
	defer stop()

	for {
		value, valid := next()
		if !valid {
			break
		}

		errGroup.Go(func() error {
			return action(value)
		})
	}

	return errGroup.Wait()
}

// ParallelMust runs the action function for each element of the iterator in a
// separate goroutine. It waits for all goroutines to finish.
func ParallelMust[T any](i *sequence.Iterator[T], action func(T)) {
	wg := sync.WaitGroup{}
	next, stop := i.Pull()
	defer stop()

	for {
		value, valid := next()
		if !valid {
			break
		}

		wg.Add(1)
		go func(value T) {
			defer wg.Done()
			action(value)
		}(value)
	}

	wg.Wait()
}
