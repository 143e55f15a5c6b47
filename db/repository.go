package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is a single key-value row in the session table.
type Entry struct {
	Key   string `gorm:"primaryKey;column:entry_key" json:"key"`
	Value string `json:"value"`
}

// TableName keeps the table name stable across model renames.
func (Entry) TableName() string { return "kv_entries" }

// gormStorage is a GORM-backed implementation of Storage.
// Use constructor NewGormStorage to obtain an instance.
type gormStorage struct{ db *gorm.DB }

// NewGormStorage creates a Storage over db. Accepts *gorm.DB to avoid global access.
func NewGormStorage(db *gorm.DB) Storage { return &gormStorage{db: db} }

func (r *gormStorage) Read(ctx context.Context, key string) (string, bool, error) {
	if r.db == nil {
		return "", false, fmt.Errorf("repository not initialized")
	}
	var entry Entry
	err := r.db.WithContext(ctx).First(&entry, "entry_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

func (r *gormStorage) Write(ctx context.Context, key, value string) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return upsertEntry(r.db.WithContext(ctx), key, value)
}

func (r *gormStorage) Remove(ctx context.Context, key string) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return deleteEntry(r.db.WithContext(ctx), key)
}

// Apply runs the batch in a single transaction.
func (r *gormStorage) Apply(ctx context.Context, batch Batch) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range batch.Writes {
			if err := upsertEntry(tx, key, value); err != nil {
				return fmt.Errorf("failed to write %s: %w", key, err)
			}
		}
		for _, key := range batch.Removes {
			if err := deleteEntry(tx, key); err != nil {
				return fmt.Errorf("failed to remove %s: %w", key, err)
			}
		}
		return nil
	})
}

func upsertEntry(tx *gorm.DB, key, value string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&Entry{Key: key, Value: value}).Error
}

func deleteEntry(tx *gorm.DB, key string) error {
	return tx.Where("entry_key = ?", key).Delete(&Entry{}).Error
}

func (r *gormStorage) Close() error { return nil }
