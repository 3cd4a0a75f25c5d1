// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history persists generation runs to a local SQLite database.
package history

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Run is one recorded generation.
type Run struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time `gorm:"not null"`

	// Seed is the sampling seed used for the run.
	Seed uint64 `gorm:"not null"`
	// Prompt and Output are space-separated token id lists.
	Prompt string `gorm:"not null"`
	Output string `gorm:"not null"`
	// Score is the sum of negative log probabilities of the output.
	Score float64 `gorm:"not null"`
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `gorm:"not null"`
}

// Store wraps the runs database.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the runs database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: NewLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts a run.
func (s *Store) Record(run *Run) error {
	return s.db.Create(run).Error
}

// Recent returns the latest n runs, newest first.
func (s *Store) Recent(n int) ([]Run, error) {
	var runs []Run
	err := s.db.Order("created_at desc").Limit(n).Find(&runs).Error
	return runs, err
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
