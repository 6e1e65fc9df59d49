package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CacheRecord is one persisted row of a TimeoutCache entry. Every row written by the same
// put shares Namespace, Key and ExpiresAt; Position keeps the caller's record order.
type CacheRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Namespace string `gorm:"size:64;not null;index:idx_cache_records_lookup,priority:1"`
	Key       string `gorm:"size:256;not null;index:idx_cache_records_lookup,priority:2"`
	Position  int    `gorm:"not null;default:0"`
	Payload   []byte `gorm:"not null"`       // JSON document, stored as raw bytes
	ExpiresAt int64  `gorm:"not null;index"` // Unix milliseconds
	CreatedAt time.Time
}

// TableName pins the table name so renaming the struct never migrates data away.
func (CacheRecord) TableName() string {
	return "cache_records"
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (r *CacheRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
