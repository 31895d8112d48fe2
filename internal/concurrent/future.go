package concurrent

import "context"

type (
	GoroutineRunner interface {
		// Go starts fn in a goroutine. It returns an error if the goroutine could not be started, e.g., the context
		// was cancelled while waiting for a free slot.
		Go(ctx context.Context, fn func()) error
	}

	// Future is the result of a function running in another goroutine. It can be read any number of times and
	// from any number of goroutines.
	Future[T any] struct {
		done <-chan struct{}
		res  *T
		err  *error
	}
)

// SubmitFuture runs fn through the runner and returns a Future of its result. It blocks as long as the runner blocks,
// e.g., until a GoroutineLimiter has a free slot.
func SubmitFuture[T any](ctx context.Context, runner GoroutineRunner, fn func() (T, error)) (Future[T], error) {
	done := make(chan struct{})
	future := Future[T]{
		done: done,
		res:  new(T),
		err:  new(error),
	}
	if err := runner.Go(ctx, func() {
		defer close(done)
		*future.res, *future.err = fn()
	}); err != nil {
		return Future[T]{}, err
	}
	return future, nil
}

// Get waits for the result or for ctx to be done
func (f Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zeroVal T
		return zeroVal, ctx.Err()
	case <-f.done:
		return *f.res, *f.err
	}
}

// GetAll returns the results in the order of the futures. It stops at the first error.
func GetAll[T any](ctx context.Context, futures ...Future[T]) ([]T, error) {
	vals := make([]T, len(futures))
	for i, future := range futures {
		val, err := future.Get(ctx)
		if err != nil {
			return nil, err
		}
		vals[i] = val
	}
	return vals, nil
}
