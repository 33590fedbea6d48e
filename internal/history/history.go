package history

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record is one finished conversion attempt, success or failure.
type Record struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SourceName   string    `json:"source_name"`
	OutputName   string    `json:"output_name,omitempty"`
	Category     string    `json:"category"`
	TargetFormat string    `json:"target_format"`
	Quality      string    `json:"quality"`
	Status       string    `gorm:"index" json:"status"` // success or failed
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	InputSize    int64     `json:"input_size"`
	OutputSize   int64     `json:"output_size"`
	OutputMD5    string    `json:"output_md5,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// Stats aggregates the record table for the stats endpoint.
type Stats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

// History persists conversion records in sqlite. Recording is best-effort:
// a write failure is logged by the caller and never fails the conversion.
type History struct {
	db  *gorm.DB
	log *zap.Logger
}

func Open(path string, log *zap.Logger) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create %s: %w", dir, err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &History{db: db, log: log}, nil
}

func (h *History) Insert(rec *Record) error {
	return h.db.Create(rec).Error
}

func (h *History) List(limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var recs []Record
	err := h.db.Order("created_at desc").Limit(limit).Offset(offset).Find(&recs).Error
	return recs, err
}

func (h *History) Stats() (Stats, error) {
	var s Stats
	if err := h.db.Model(&Record{}).Count(&s.Total).Error; err != nil {
		return s, err
	}
	if err := h.db.Model(&Record{}).Where("status = ?", "success").Count(&s.Success).Error; err != nil {
		return s, err
	}
	err := h.db.Model(&Record{}).Where("status = ?", "failed").Count(&s.Failed).Error
	return s, err
}

func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FileMD5 computes the checksum stored with successful records.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
