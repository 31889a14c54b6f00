// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// ProcessedMessage model used to deduplicate webhook redeliveries.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
)

// ErrDuplicate indicates that the transport message ID has already been
// processed within its TTL.
var ErrDuplicate = errors.New("duplicate")

// MarkProcessed records a transport message ID as handled. It returns
// ErrDuplicate when a non-expired record for the same ID already exists,
// which is how redelivered webhooks are detected.
//
// Expired rows for the same ID are removed first so the unique index does not
// block legitimate reprocessing after the TTL.
func MarkProcessed(ctx context.Context, db *gorm.DB, messageID, citizenID string, ttl time.Duration) error {
	now := time.Now().UTC()

	var existing domain.ProcessedMessage
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.ExpiresAt.After(now) {
			return ErrDuplicate
		}
		// Lazy eviction of the expired row.
		if derr := db.WithContext(ctx).Delete(&existing).Error; derr != nil {
			return derr
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return err
	}

	rec := &domain.ProcessedMessage{
		ID:        uuid.NewString(),
		MessageID: messageID,
		CitizenID: citizenID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
