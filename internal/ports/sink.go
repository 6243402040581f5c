package ports

import "github.com/tuna-f1sh/cantools/internal/domain"

// Sink persists batches of decoded points to the downstream time-series store.
// It is owned exclusively by the publisher worker.
type Sink interface {
	WriteBatch(points []domain.Point) error
	Name() string
}
