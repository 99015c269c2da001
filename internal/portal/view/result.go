// Package view carries the outcome of a data-backed page so that "nothing
// to show" and "could not load" stay distinguishable.
package view

// Status is the outcome of loading a view.
type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Result is a loaded view. Reason is set only for StatusError and is safe to
// show to the customer.
type Result[T any] struct {
	Status Status `json:"status"`
	Data   T      `json:"data"`
	Reason string `json:"reason,omitempty"`

	err error
}

// OK wraps loaded data.
func OK[T any](data T) Result[T] {
	return Result[T]{Status: StatusOK, Data: data}
}

// Empty marks a successful load that found nothing.
func Empty[T any](data T) Result[T] {
	return Result[T]{Status: StatusEmpty, Data: data}
}

// Failed records a load failure. err is kept for logging only.
func Failed[T any](reason string, err error) Result[T] {
	return Result[T]{Status: StatusError, Reason: reason, err: err}
}

// List builds a result from a fetched slice: an error fails the view, no rows
// is empty, anything else is ok.
func List[T any](items []T, err error, reason string) Result[[]T] {
	if err != nil {
		return Failed[[]T](reason, err)
	}
	if len(items) == 0 {
		return Empty([]T{})
	}
	return OK(items)
}

// Err returns the underlying failure, if any.
func (r Result[T]) Err() error {
	return r.err
}

// Failed reports whether the view could not be loaded.
func (r Result[T]) Failed() bool {
	return r.Status == StatusError
}
