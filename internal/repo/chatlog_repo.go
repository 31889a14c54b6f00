// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// ChatMessage turn log.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
)

// AppendChatMessage inserts one turn into the citizen's chat log. Rows are
// never updated after creation.
func AppendChatMessage(db *gorm.DB, m domain.ChatMessage) (*domain.ChatMessage, error) {
	m.ID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	return &m, db.Create(&m).Error
}

// CountChatMessages uses a raw COUNT so a missing table surfaces as an error.
func CountChatMessages(db *gorm.DB, citizenID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM chat_messages WHERE citizen_id = ?", citizenID).Scan(&total).Error
	return total, err
}

// ListChatMessagesPage returns a paginated slice of a citizen's turns ordered
// deterministically (CreatedAt ASC, ID ASC).
func ListChatMessagesPage(db *gorm.DB, citizenID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.
		Where("citizen_id = ?", citizenID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
