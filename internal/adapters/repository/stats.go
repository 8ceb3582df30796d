package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/okian/tandem/internal/domain/model"
)

// Counts summarizes table sizes for the stats endpoint.
type Counts struct {
	Profiles      int64 `json:"profiles"`
	Interests     int64 `json:"interests"`
	ActiveMatches int64 `json:"active_matches"`
	Milestones    int64 `json:"milestones"`
}

// Count reads Counts from db.
func Count(ctx context.Context, db *gorm.DB) (Counts, error) {
	var c Counts
	q := db.WithContext(ctx)
	if err := q.Model(&model.Profile{}).Count(&c.Profiles).Error; err != nil {
		return c, translate("count profiles", err)
	}
	if err := q.Model(&model.Interest{}).Count(&c.Interests).Error; err != nil {
		return c, translate("count interests", err)
	}
	if err := q.Model(&model.Match{}).Where("unmatched_at IS NULL").Count(&c.ActiveMatches).Error; err != nil {
		return c, translate("count matches", err)
	}
	if err := q.Model(&model.MilestoneEntry{}).Count(&c.Milestones).Error; err != nil {
		return c, translate("count milestones", err)
	}
	return c, nil
}
