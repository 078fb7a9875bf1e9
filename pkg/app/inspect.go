package app

import (
	"context"
	"errors"

	"github.com/newspaper/mailing/internal/config"
	storesqlite "github.com/newspaper/mailing/modules/store/sqlite"
)

// ErrNoPersistentStore is returned when the configured store keeps nothing
// on disk, so there is nothing to inspect from another process.
var ErrNoPersistentStore = errors.New("store driver is memory; nothing is persisted")

// OpenStore opens the persistent job store named by cfg for inspection. The
// caller closes it.
func OpenStore(ctx context.Context, cfg *config.Config) (*storesqlite.Store, error) {
	if cfg.Store.Driver == config.StoreMemory {
		return nil, ErrNoPersistentStore
	}
	return storesqlite.Open(ctx, cfg.Store.Config)
}
