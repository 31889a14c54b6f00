// Package domain defines the persistence models for citizens, registration
// states, and chat turns. These types are mapped with GORM and form the core
// data layer of the citizen-assist application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Citizen represents one end user of the WhatsApp channel, keyed by their
// phone number (the stable contact identifier reported by the transport).
//
// Fields:
//   - ID: phone number in E.164 digits-only form, primary key.
//   - DisplayName: profile name observed from the messaging transport.
//   - UserProvidedName: name the citizen confirmed during registration;
//     authoritative once set.
//   - Village / Taluka / Latitude / Longitude: resolved place data from the
//     geocoding step.
//   - IsRegistered: true only when both name and village are confirmed.
//   - Language: BCP-47 tag of the citizen's preferred language.
//   - RegisteredAt: set when the registration flow reaches its terminal state.
//   - DeletedAt: soft deletion marker (records are retained, never dropped).
type Citizen struct {
	ID               string         `json:"id"                 gorm:"type:varchar(32);primaryKey"`
	DisplayName      string         `json:"display_name"       gorm:"type:varchar(255)"`
	UserProvidedName string         `json:"user_provided_name" gorm:"type:varchar(255)"`
	Village          string         `json:"village"            gorm:"type:varchar(255)"`
	Taluka           string         `json:"taluka"             gorm:"type:varchar(255)"`
	Latitude         *float64       `json:"latitude,omitempty"`
	Longitude        *float64       `json:"longitude,omitempty"`
	IsRegistered     bool           `json:"is_registered"      gorm:"not null;default:false"`
	Language         string         `json:"language"           gorm:"type:varchar(16);not null;default:'en'"`
	RegisteredAt     *time.Time     `json:"registered_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-"                  gorm:"index"`
}

// TableName returns the database table name for Citizen.
func (Citizen) TableName() string { return "citizens" }

// RegistrationState is one record in a citizen's registration audit trail.
// Exactly one record per citizen carries Active=true at any time; a transition
// flips the prior record inactive and inserts the successor in one
// transaction, so the full sequence of rows forms an append-only history.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - CitizenID: owning citizen (indexed together with Active for lookups).
//   - State: one of the State* constants (see state.go).
//   - Attempts: clarification attempts consumed while in this state.
//   - LastOutcome: short machine label of the last classification/extraction
//     outcome observed in this state, kept for audit.
//   - ExtractedData: JSON snapshot of the extraction that caused this record
//     to be deactivated; empty while the record is active.
//   - Active: whether this is the citizen's current state.
type RegistrationState struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	CitizenID     string         `json:"citizen_id"     gorm:"type:varchar(32);not null;index:idx_citizen_active,priority:1"`
	State         string         `json:"state"          gorm:"type:varchar(32);not null"`
	Attempts      int            `json:"attempts"       gorm:"not null;default:0"`
	LastOutcome   string         `json:"last_outcome"   gorm:"type:varchar(64)"`
	ExtractedData string         `json:"extracted_data" gorm:"type:text"`
	Active        bool           `json:"active"         gorm:"not null;index:idx_citizen_active,priority:2"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for RegistrationState.
func (RegistrationState) TableName() string { return "registration_states" }

// ChatMessage is one turn of the conversation, appended per inbound or
// outbound message and never mutated afterwards. StateSnapshot and
// ExtractionSnapshot capture what the orchestrator saw when the turn was
// processed, for history replay and audit.
type ChatMessage struct {
	ID                 string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CitizenID          string    `json:"citizen_id" gorm:"type:varchar(32);not null;index:idx_citizen_turns,priority:1"`
	Role               string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content            string    `json:"content"    gorm:"type:text;not null"`
	Language           string    `json:"language"   gorm:"type:varchar(16)"`
	StateSnapshot      string    `json:"state_snapshot"      gorm:"type:varchar(32)"`
	ExtractionSnapshot string    `json:"extraction_snapshot" gorm:"type:text"`
	CreatedAt          time.Time `json:"created_at" gorm:"index:idx_citizen_turns,priority:2"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// ProcessedMessage records a transport-level message ID that has already been
// handled, so webhook redeliveries are acknowledged without reprocessing.
// Rows expire after a TTL and are evicted opportunistically.
type ProcessedMessage struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string    `json:"message_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_processed_message"`
	CitizenID string    `json:"citizen_id" gorm:"type:varchar(32);not null;index"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
}

// TableName returns the database table name for ProcessedMessage.
func (ProcessedMessage) TableName() string { return "processed_messages" }
