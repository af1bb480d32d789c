package workers

import (
	"context"
	"fmt"
	"sync"
)

// DefaultLimit is used when a pool is created with a non-positive limit.
const DefaultLimit = 4

// Pool runs indexed units of work with at most Limit in flight.
type Pool struct {
	limit int
}

// NewPool creates a pool that runs up to limit units at once.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Pool{limit: limit}
}

// Limit returns the concurrency cap.
func (p *Pool) Limit() int {
	return p.limit
}

// Run calls fn(ctx, i) for i in [0, n). Units already started always run to
// completion; once one fails, or ctx is done, no further units start. Run
// returns only after every started unit has returned, with the first error
// observed. A panicking unit is reported as an error.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		failed   = make(chan struct{})
		sem      = make(chan struct{}, p.limit)
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			close(failed)
		})
	}

dispatch:
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		select {
		case <-failed:
			break dispatch
		case <-ctx.Done():
			fail(ctx.Err())
			break dispatch
		case sem <- struct{}{}:
		}
		// a slot may free up in the same instant a unit fails
		select {
		case <-failed:
			<-sem
			break dispatch
		default:
		}

		wg.Add(1)
		go func(i int) {
			defer func() {
				if e := recover(); e != nil {
					if err, ok := e.(error); ok {
						fail(fmt.Errorf("unit %d panicked: %w", i, err))
					} else {
						fail(fmt.Errorf("unit %d panicked: %v", i, e))
					}
				}
				<-sem
				wg.Done()
			}()
			if err := fn(ctx, i); err != nil {
				fail(err)
			}
		}(i)
	}

	wg.Wait()
	return firstErr
}
