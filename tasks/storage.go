package tasks

import (
	"context"
	"fmt"

	"github.com/shaharia-lab/cate/observability"
)

// Storage drivers accepted by NewStorage.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// NewStorage returns the storage for driver. An empty driver selects the
// in-memory storage. The returned close function releases the storage.
func NewStorage(ctx context.Context, driver, dsn string, logger observability.Logger) (Storage, func() error, error) {
	switch driver {
	case "", DriverMemory:
		return NewInMemoryStorage(), func() error { return nil }, nil
	case DriverSQLite:
		s, err := OpenSQLiteStorage(ctx, dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case DriverPostgres:
		s, err := OpenPostgresStorage(ctx, dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported task storage driver %q", driver)
	}
}
