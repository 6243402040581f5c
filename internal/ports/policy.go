package ports

import "github.com/tuna-f1sh/cantools/internal/domain"

// WriteFailurePolicy decides what happens to a batch the sink rejected. seq is
// the 1-based position of the batch within the session. Returning nil lets the
// publisher continue with the next batch; returning an error stops the worker.
type WriteFailurePolicy interface {
	HandleWriteFailure(seq int, points []domain.Point, err error) error
}
