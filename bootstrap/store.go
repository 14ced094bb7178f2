package bootstrap

import (
	"fmt"

	"github.com/kbukum/flowkit/component"
	"github.com/kbukum/flowkit/config"
	"github.com/kbukum/flowkit/database"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/redis"
	"github.com/kbukum/flowkit/run"
)

// storeBackend owns the components a run store needs. The store itself is
// only available once those components have started.
type storeBackend interface {
	components() []component.Component
	store() (run.Store, error)
}

func newStoreBackend(cfg *config.Config, log *logger.Logger, injected run.Store) (storeBackend, error) {
	if injected != nil {
		return staticBackend{s: injected}, nil
	}
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return staticBackend{s: run.NewMemoryStore()}, nil
	case config.StoreRedis:
		return &redisBackend{comp: redis.NewComponent(cfg.Redis, log)}, nil
	case config.StoreSQLite:
		return &sqlBackend{comp: database.NewComponent(cfg.Database, log)}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

type staticBackend struct{ s run.Store }

func (b staticBackend) components() []component.Component { return nil }
func (b staticBackend) store() (run.Store, error)          { return b.s, nil }

type redisBackend struct{ comp *redis.Component }

func (b *redisBackend) components() []component.Component { return []component.Component{b.comp} }

func (b *redisBackend) store() (run.Store, error) { return b.comp.RunStore() }

type sqlBackend struct{ comp *database.Component }

func (b *sqlBackend) components() []component.Component { return []component.Component{b.comp} }

func (b *sqlBackend) store() (run.Store, error) { return b.comp.RunStore() }
