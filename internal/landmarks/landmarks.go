// Package landmarks provides the "discover nearby" landmark sources.
package landmarks

import (
	"context"
	"fmt"

	"github.com/geomark/mapview/internal/config"
	"github.com/geomark/mapview/internal/landmarks/memory"
	"github.com/geomark/mapview/internal/landmarks/sqlstore"
	"github.com/geomark/mapview/internal/seed"
	"github.com/geomark/mapview/pkg/core"
	"github.com/rs/zerolog"
)

// Source finds landmarks around a position, nearest first.
type Source interface {
	Nearby(ctx context.Context, center core.Position, radiusMeters float64) ([]core.Landmark, error)
}

// Catalog is a Source that owns resources.
type Catalog interface {
	Source
	Close() error
}

type memoryCatalog struct {
	*memory.Index
}

func (memoryCatalog) Close() error { return nil }

// Open creates the catalog selected by cfg.Type and loads cfg.SeedFile into it.
func Open(ctx context.Context, cfg config.LandmarkConfig, log zerolog.Logger) (Catalog, error) {
	var landmarks []core.Landmark
	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		landmarks = f.Landmarks
	}

	switch cfg.Type {
	case "", "memory":
		idx, skipped := memory.New(landmarks)
		log.Info().Int("landmarks", idx.Len()).Int("skipped", skipped).Msg("Landmark index built")
		return memoryCatalog{idx}, nil
	case "sqlite", "postgres":
		var (
			store *sqlstore.Store
			err   error
		)
		if cfg.Type == "sqlite" {
			store, err = sqlstore.OpenSQLite(cfg.SQLitePath, log)
		} else {
			store, err = sqlstore.OpenPostgres(cfg.DSN, log)
		}
		if err != nil {
			return nil, err
		}
		if len(landmarks) > 0 {
			n, err := store.Upsert(ctx, landmarks)
			if err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("seeding landmark catalog: %w", err)
			}
			log.Info().Int("landmarks", n).Msg("Landmark catalog seeded")
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown landmark source type: %s", cfg.Type)
	}
}
