package eventsource

// Result is a success/failure tagged union. Most of this package speaks
// Go's native (value, error) pair; Result exists for the places where a
// computed value and its failure travel together as one value, such as
// ExecuteOperations.
type Result[T any] struct {
	value T
	err   error
}

// Success creates a successful Result holding value.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Failure creates a failed Result holding err.
func Failure[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// IsSuccess reports whether the result holds a value.
func (r Result[T]) IsSuccess() bool {
	return r.err == nil
}

// Value returns the held value. It is the zero value on failure.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the held error, nil on success.
func (r Result[T]) Err() error {
	return r.err
}

// UnwrapOr returns the held value, or fallback on failure.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.value
}

// MapResult applies fn to a successful result and passes failures through.
func MapResult[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Failure[U](r.err)
	}
	return Success(fn(r.value))
}

// FlatMapResult chains a fallible computation onto a successful result.
func FlatMapResult[T, U any](r Result[T], fn func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Failure[U](r.err)
	}
	return fn(r.value)
}
