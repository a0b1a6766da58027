package cache

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/orderfeed/internal/clock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheEntry is the row backing the SQL key-value store.
type CacheEntry struct {
	CacheKey  string    `gorm:"column:cache_key;primaryKey;size:255" json:"cache_key"`
	Value     []byte    `gorm:"not null" json:"value"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CacheEntry) TableName() string { return "cache_entries" }

type sqlKV struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewSQLKV(db *gorm.DB, clk clock.Clock) KV {
	if clk == nil {
		clk = clock.System()
	}
	return &sqlKV{db: db, clock: clk}
}

func (s *sqlKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row CacheEntry
	err := s.db.WithContext(ctx).
		Where("cache_key = ?", key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if s.clock.Now().After(row.ExpiresAt) {
		return nil, false, s.Delete(ctx, key)
	}
	return row.Value, true, nil
}

func (s *sqlKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.clock.Now()
	row := CacheEntry{
		CacheKey:  key,
		Value:     value,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *sqlKV) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("cache_key = ?", key).
		Delete(&CacheEntry{}).Error
}
