// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// RegistrationState model: active-state lookup and the atomic transition
// commit that keeps the per-citizen audit trail append-only.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
)

// ErrActiveStateConflict indicates the at-most-one-active invariant does not
// hold for a citizen: either more than one active row exists, or a concurrent
// commit deactivated the row this transition was based on. Callers must treat
// it as fatal for the current message and leave data untouched.
var ErrActiveStateConflict = errors.New("active registration state conflict")

// ActiveState returns the citizen's single active registration state.
//
// Returns ErrNotFound when the citizen has no active state (first contact)
// and ErrActiveStateConflict when more than one active row exists.
func ActiveState(ctx context.Context, db *gorm.DB, citizenID string) (*domain.RegistrationState, error) {
	var rows []domain.RegistrationState
	err := db.WithContext(ctx).
		Where("citizen_id = ? AND active = ?", citizenID, true).
		Order("created_at desc").
		Limit(2).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &rows[0], nil
	default:
		return nil, ErrActiveStateConflict
	}
}

// CreateInitialState inserts the first (active) state row for a citizen.
func CreateInitialState(ctx context.Context, db *gorm.DB, citizenID string) (*domain.RegistrationState, error) {
	s := &domain.RegistrationState{
		ID:        uuid.NewString(),
		CitizenID: citizenID,
		State:     domain.StateInitial,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// IncrementAttempt bumps the clarification counter on an active state row and
// records the outcome label, without transitioning. Returns ErrNotFound when
// the row is no longer active (e.g., a concurrent commit advanced it).
func IncrementAttempt(ctx context.Context, db *gorm.DB, stateID, outcome string) error {
	res := db.WithContext(ctx).
		Model(&domain.RegistrationState{}).
		Where("id = ? AND active = ?", stateID, true).
		Updates(map[string]any{
			"attempts":     gorm.Expr("attempts + 1"),
			"last_outcome": outcome,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CommitTransition atomically closes the prior active state and opens the
// next one. The prior row is stamped with the extraction snapshot and outcome
// that caused the transition, preserving the append-only audit trail.
//
// The deactivation is guarded by `active = true`: if a concurrent commit got
// there first, zero rows are affected and the whole transaction rolls back
// with ErrActiveStateConflict, so two near-simultaneous messages can never
// create divergent active rows.
func CommitTransition(ctx context.Context, db *gorm.DB, prior *domain.RegistrationState, nextState, snapshot, outcome string) (*domain.RegistrationState, error) {
	next := &domain.RegistrationState{
		ID:        uuid.NewString(),
		CitizenID: prior.CitizenID,
		State:     nextState,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.RegistrationState{}).
			Where("id = ? AND active = ?", prior.ID, true).
			Updates(map[string]any{
				"active":         false,
				"extracted_data": snapshot,
				"last_outcome":   outcome,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrActiveStateConflict
		}
		return tx.Create(next).Error
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ListStates returns a citizen's full state history, newest first.
func ListStates(ctx context.Context, db *gorm.DB, citizenID string) ([]domain.RegistrationState, error) {
	var out []domain.RegistrationState
	err := db.WithContext(ctx).
		Where("citizen_id = ?", citizenID).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}
