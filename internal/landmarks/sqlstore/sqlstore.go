// Package sqlstore keeps the landmark catalog in a SQL database through GORM.
// SQLite and Postgres are supported; proximity search is a bounding-box query
// refined by great-circle distance.
package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/pkg/core"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// LandmarkRow is the persisted form of a landmark.
type LandmarkRow struct {
	Key         string `gorm:"primaryKey;column:landmark_key;size:255"`
	ExternalID  string `gorm:"size:255"`
	Title       string `gorm:"size:512;index"`
	Description string
	URL         string
	Lat         float64 `gorm:"index:idx_landmark_lat_lng,priority:1"`
	Lng         float64 `gorm:"index:idx_landmark_lat_lng,priority:2"`
	Tags        datatypes.JSON
	UpdatedAt   time.Time
}

func (LandmarkRow) TableName() string { return "landmarks" }

func rowFrom(l core.Landmark) (LandmarkRow, error) {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return LandmarkRow{}, err
	}
	return LandmarkRow{
		Key:         l.Key(),
		ExternalID:  l.ID,
		Title:       l.Title,
		Description: l.Description,
		URL:         l.URL,
		Lat:         l.Position.Lat,
		Lng:         l.Position.Lng,
		Tags:        datatypes.JSON(raw),
	}, nil
}

func (r LandmarkRow) landmark() core.Landmark {
	l := core.Landmark{
		ID:          r.ExternalID,
		Title:       r.Title,
		Description: r.Description,
		URL:         r.URL,
		Position:    &core.Position{Lat: r.Lat, Lng: r.Lng},
	}
	if len(r.Tags) > 0 {
		_ = json.Unmarshal(r.Tags, &l.Tags)
	}
	if len(l.Tags) == 0 {
		l.Tags = nil
	}
	return l
}

// Store is a GORM backed landmark catalog.
type Store struct {
	db     *gorm.DB
	Logger zerolog.Logger
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// OpenSQLite opens (or creates) a SQLite catalog at path. An empty path uses
// a private in-memory database.
func OpenSQLite(path string, log zerolog.Logger) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening sqlite catalog: %w", err)
	}
	if path == "" {
		// each pooled connection would otherwise get its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
		log.Info().Msg("Using in-memory SQLite landmark catalog")
	} else {
		log.Info().Str("path", path).Msg("Using SQLite landmark catalog")
	}
	return New(db, log)
}

// OpenPostgres connects to a Postgres catalog.
func OpenPostgres(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening postgres catalog: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging postgres catalog: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	log.Info().Msg("Connected to Postgres landmark catalog")
	return New(db, log)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB, log zerolog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&LandmarkRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate landmark schema: %w", err)
	}
	return &Store{db: db, Logger: log}, nil
}

// Upsert writes landmarks, replacing rows with the same key. Landmarks without
// a valid position are skipped; the number written is returned.
func (s *Store) Upsert(ctx context.Context, landmarks []core.Landmark) (int, error) {
	rows := make([]LandmarkRow, 0, len(landmarks))
	for _, l := range landmarks {
		if err := geo.Validate(l.Position); err != nil || l.Key() == "" {
			s.Logger.Debug().Str("landmark", l.Key()).Msg("Skipping landmark without usable position or key")
			continue
		}
		row, err := rowFrom(l)
		if err != nil {
			return 0, fmt.Errorf("encoding landmark %q: %w", l.Key(), err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("upserting landmarks: %w", err)
	}
	s.Logger.Debug().Int("count", len(rows)).Msg("Landmarks stored")
	return len(rows), nil
}

// Delete removes a landmark by key.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&LandmarkRow{}, "landmark_key = ?", key)
	if res.Error != nil {
		return false, fmt.Errorf("deleting landmark %q: %w", key, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Count returns the number of stored landmarks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&LandmarkRow{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Nearby returns the landmarks within radiusMeters of center, nearest first.
func (s *Store) Nearby(ctx context.Context, center core.Position, radiusMeters float64) ([]core.Landmark, error) {
	if err := geo.Validate(&center); err != nil {
		return nil, err
	}
	if radiusMeters < 0 {
		return nil, fmt.Errorf("negative radius %v", radiusMeters)
	}

	box, err := geo.BoxAround(center, radiusMeters)
	if err != nil {
		return nil, err
	}
	lo, hi := box.Min(), box.Max()
	var rows []LandmarkRow
	err = s.db.WithContext(ctx).
		Where("lat BETWEEN ? AND ?", lo.Lat, hi.Lat).
		Where("lng BETWEEN ? AND ?", lo.Lng, hi.Lng).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying landmarks: %w", err)
	}

	out := make([]core.Landmark, 0, len(rows))
	for _, r := range rows {
		l := r.landmark()
		if geo.DistanceMeters(center, *l.Position) > radiusMeters {
			continue
		}
		out = append(out, l)
	}
	geo.SortByDistance(center, out)
	s.Logger.Debug().
		Str("center", center.String()).
		Float64("radius", radiusMeters).
		Int("found", len(out)).
		Msg("Nearby landmark query")
	return out, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
