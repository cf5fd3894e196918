package history

import "fmt"

// NewStore creates a Store based on the configuration.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(cfg.Dir)
	case StoreTypeRedis:
		return NewRedisStore(cfg.Redis)
	case StoreTypeSQLite, StoreTypePostgres:
		return OpenSQLStore(cfg.Type, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported history store type: %s", cfg.Type)
	}
}
