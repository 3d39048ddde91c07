// Package backend opens the snapshot store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeafMist/keyword-radar/internal/config"
	"github.com/DeafMist/keyword-radar/internal/elasticsearch"
	"github.com/DeafMist/keyword-radar/internal/store"
)

// Open returns the configured store. Elasticsearch indices are created when missing.
func Open(ctx context.Context, cfg config.Common, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFile:
		return store.NewFileStore(cfg.DataDir, log)
	case config.BackendPebble:
		return store.OpenPebble(cfg.DataDir, nil, log)
	case config.BackendElasticsearch:
		client, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureIndices(ctx); err != nil {
			return nil, fmt.Errorf("prepare elasticsearch indices: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
