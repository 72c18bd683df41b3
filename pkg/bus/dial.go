package bus

import "context"

// dialContext runs a blocking dial without tying up the caller past ctx.
// When ctx finishes first the eventual result is handed to discard, so a
// connection that completes after teardown is released instead of leaked.
func dialContext[T any](ctx context.Context, dial func() (T, error), discard func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ch := make(chan result, 1)
	go func() {
		v, err := dial()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				discard(r.v)
			}
		}()
		return zero, ctx.Err()
	}
}
