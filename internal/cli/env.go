package cli

import (
	"fmt"
	"log"

	"github.com/khanglvm/skill-hub/internal/config"
	"github.com/khanglvm/skill-hub/internal/hub"
	"github.com/khanglvm/skill-hub/internal/search"
	"github.com/khanglvm/skill-hub/internal/storage"
	"github.com/khanglvm/skill-hub/internal/tier"
)

// resolveConfigPath returns the --config value or the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetDefaultConfigPath()
}

// loadConfig reads the config file. A missing file means defaults.
func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	return config.LoadOrDefault(path)
}

// openStorage creates and initializes the configured backend.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}

	var store storage.Storage
	switch cfg.StorageBackend {
	case config.BackendJournal:
		store = storage.NewJournalStorage(path)
	default:
		store = storage.NewStorage(path)
	}

	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// loadCatalog returns the tiersFile catalog or the built-in one.
func loadCatalog(cfg *config.Config) (*tier.Catalog, error) {
	if cfg.TiersFile == "" {
		return tier.DefaultCatalog(), nil
	}
	return tier.LoadCatalogFile(cfg.TiersFile)
}

// session is a hub plus the storage it owns.
type session struct {
	cfg   *config.Config
	hub   *hub.Hub
	store storage.Storage
}

func (s *session) Close() {
	if err := s.hub.Close(); err != nil {
		log.Printf("Warning: failed to close search index: %v", err)
	}
	if err := s.store.Close(); err != nil {
		log.Printf("Warning: failed to close storage: %v", err)
	}
}

// openSession loads config and builds a hub over the configured storage.
// With withSearch the pattern index is rebuilt from the corpus.
func openSession(withSearch bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	opts := []hub.Option{
		hub.WithDefaultTier(cfg.DefaultTier),
		hub.WithLocation(loc),
		hub.WithEvictOnFull(cfg.EvictOnFullEnabled()),
	}
	if withSearch {
		idx, err := search.NewIndexer()
		if err != nil {
			store.Close()
			return nil, err
		}
		opts = append(opts, hub.WithIndexer(idx))
	}

	h, err := hub.New(store, catalog, opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &session{cfg: cfg, hub: h, store: store}, nil
}
