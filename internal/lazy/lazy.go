// Package lazy holds process-wide handles that are built on first use.
//
// A Value runs its constructor at most once per successful initialisation,
// under a mutex, so concurrent first requests never build two handles. A
// failed construction is not cached and is retried on the next Get. Reset
// releases the handle (calling Close when it implements io.Closer) so that
// tests and shutdown can tear it down and start over.
package lazy

import (
	"context"
	"io"
	"sync"
)

type Value[T any] struct {
	mu    sync.Mutex
	init  func(ctx context.Context) (T, error)
	value T
	ready bool
}

func New[T any](init func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ready {
		return v.value, nil
	}

	value, err := v.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	v.value = value
	v.ready = true
	return value, nil
}

func (v *Value[T]) Ready() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ready
}

func (v *Value[T]) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.ready {
		return nil
	}

	var err error
	if closer, ok := any(v.value).(io.Closer); ok {
		err = closer.Close()
	}

	var zero T
	v.value = zero
	v.ready = false
	return err
}
