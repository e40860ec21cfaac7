package intake

// Result holds either a value or the error that prevented it.
type Result[T any] struct {
	value T
	err   error
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Attempt runs fn and captures its outcome.
func Attempt[T any](fn func() (T, error)) Result[T] {
	v, err := fn()
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

func (r Result[T]) IsOk() bool { return r.err == nil }

func (r Result[T]) Err() error { return r.err }

func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// Ensure turns an Ok result whose value fails check into a failure with err.
func (r Result[T]) Ensure(check func(T) bool, err error) Result[T] {
	if r.err == nil && !check(r.value) {
		return Fail[T](err)
	}
	return r
}

// UnwrapOr returns the value, or fallback on failure.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.value
}

// UnwrapOrElse returns the value, or computes one from the error on failure.
func (r Result[T]) UnwrapOrElse(fallback func(error) T) T {
	if r.err != nil {
		return fallback(r.err)
	}
	return r.value
}
