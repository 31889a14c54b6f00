// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the ops endpoints. Each function is context-aware and safe to call from
// services or handlers.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/gramsetu/citizen-assist-backend/internal/domain"
)

// RegistrationStats summarizes the registration funnel for operators:
// citizens per active state plus the total of completed registrations.
type RegistrationStats struct {
	TotalCitizens int64            `json:"total_citizens"`
	Registered    int64            `json:"registered"`
	ByActiveState map[string]int64 `json:"by_active_state"`
}

// GetRegistrationStats computes the registration funnel snapshot.
//
// It runs one count over citizens, one over registered citizens, and a
// grouped count over active state rows. Missing states simply have no entry
// in ByActiveState.
func GetRegistrationStats(ctx context.Context, db *gorm.DB) (*RegistrationStats, error) {
	out := &RegistrationStats{ByActiveState: make(map[string]int64)}

	if err := db.WithContext(ctx).Model(&domain.Citizen{}).Count(&out.TotalCitizens).Error; err != nil {
		return nil, err
	}

	var err error
	out.Registered, err = CountRegisteredCitizens(ctx, db)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		State string
		N     int64
	}
	err = db.WithContext(ctx).
		Model(&domain.RegistrationState{}).
		Select("state, COUNT(*) as n").
		Where("active = ?", true).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.ByActiveState[r.State] = r.N
	}
	return out, nil
}
