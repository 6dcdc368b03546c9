package catalog

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyCatalog = errors.New("medicine catalog is empty")

// Store supplies the full candidate set. Implementations hand out copies so
// concurrent sessions can read without synchronization.
type Store interface {
	Records(ctx context.Context) ([]MedicineRecord, error)
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise the
// embedded catalog.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewEmbeddedStore()
	}
	return NewPostgresStore(ctx, databaseURL)
}
