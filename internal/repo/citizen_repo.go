// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Citizen
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a citizen is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetCitizen fetches a citizen by phone-number ID. If the record does not
// exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetCitizen(ctx context.Context, db *gorm.DB, id string) (*domain.Citizen, error) {
	var c domain.Citizen
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCitizen inserts a new citizen row keyed by phone number. DisplayName
// and Language are the transport-observed profile values at first contact.
func CreateCitizen(ctx context.Context, db *gorm.DB, id, displayName, lang string) (*domain.Citizen, error) {
	c := &domain.Citizen{
		ID:          id,
		DisplayName: displayName,
		Language:    lang,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCitizenFields applies a partial update to a citizen row. If no rows
// are affected (citizen missing), it returns ErrNotFound.
func UpdateCitizenFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Citizen{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountRegisteredCitizens returns the number of citizens that completed
// registration. Used by the ops stats endpoint.
func CountRegisteredCitizens(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Citizen{}).
		Where("is_registered = ?", true).
		Count(&total).Error
	return total, err
}
