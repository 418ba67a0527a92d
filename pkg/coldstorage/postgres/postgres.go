// Package postgres is a GORM/PostgreSQL-backed coldstorage.Store.
package postgres

import (
	"context"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	coldstore "github.com/foundrysync/mimic/pkg/coldstorage"
	"github.com/foundrysync/mimic/pkg/model"
)

// row is the GORM model backing the snapshots table. One row per
// document id; Save overwrites the existing row (last-write-wins).
type row struct {
	DocumentID    string `gorm:"primaryKey;column:document_id"`
	State         []byte `gorm:"column:state"`
	Version       uint64 `gorm:"column:version"`
	SchemaVersion int    `gorm:"column:schema_version"`
	SavedAt       int64  `gorm:"column:saved_at"`
}

func (row) TableName() string { return "document_snapshots" }

// Store is a GORM-backed coldstorage.Store.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and ensures the snapshots table exists.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, coldstore.NewError("", "open", coldstore.ErrUnavailable, err)
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, coldstore.NewError("", "migrate", coldstore.ErrUnavailable, err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *gorm.DB, useful when the caller manages the
// connection pool itself (tests, shared pools).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Load(ctx context.Context, id string) (*model.Snapshot, error) {
	var r row
	err := s.db.WithContext(ctx).First(&r, "document_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, coldstore.NewError(id, "load", coldstore.ErrUnavailable, err)
	}
	return &model.Snapshot{
		State:         r.State,
		Version:       r.Version,
		SchemaVersion: r.SchemaVersion,
		SavedAt:       r.SavedAt,
	}, nil
}

func (s *Store) Save(ctx context.Context, id string, snap model.Snapshot) error {
	r := row{
		DocumentID:    id,
		State:         snap.State,
		Version:       snap.Version,
		SchemaVersion: snap.SchemaVersion,
		SavedAt:       snap.SavedAt,
	}
	// GORM's Save issues a pure UPDATE whenever the primary key is already
	// populated, which matches zero rows (and reports no error) for a
	// document id with no existing snapshot. Upsert explicitly instead.
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		UpdateAll: true,
	}).Create(&r).Error
	if err != nil {
		return coldstore.NewError(id, "save", coldstore.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&row{}, "document_id = ?", id).Error
	if err != nil {
		return coldstore.NewError(id, "delete", coldstore.ErrUnavailable, err)
	}
	return nil
}

var _ coldstore.Store = (*Store)(nil)
