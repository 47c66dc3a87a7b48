package cli

import (
	"fmt"
	"os"
	"time"

	"legalrag/config"
	"legalrag/internal/adapter/cache"
	"legalrag/internal/adapter/embedding"
	"legalrag/internal/adapter/store"
	"legalrag/internal/port"
)

// openStore opens the store under dir. The dimension is taken from the file,
// so a config change can be detected and handled before it is enforced.
func openStore(cfg *config.Config, dir string, create bool) (*store.BoltVectorStore, error) {
	path := cfg.StorePath(dir)
	if !create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("no index found at %s. Run 'legalrag index' first", path)
		}
	} else if err := cfg.EnsureStoreDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	st, err := store.Open(path, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}
	return st, nil
}

// newQueryEmbedder builds the configured embedder behind a vector cache.
func newQueryEmbedder(cfg *config.Config) (port.Embedder, error) {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	vc := cache.NewVectorCache(cfg.Embedding.CacheSize, time.Duration(cfg.Embedding.CacheTTLSecs)*time.Second)
	return cache.NewCachedEmbedder(embedder, vc), nil
}
