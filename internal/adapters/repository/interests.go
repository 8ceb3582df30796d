package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/model"
)

// InterestRepository stores interest events. Rows are never updated or deleted.
type InterestRepository struct {
	db *gorm.DB
}

// NewInterestRepository builds an InterestRepository.
func NewInterestRepository(db *gorm.DB) *InterestRepository {
	return &InterestRepository{db: db}
}

// Record inserts in. A second event for the same (actor, target) fails with
// errs.ErrConflict; the unique index decides, not a prior read.
func (r *InterestRepository) Record(ctx context.Context, in *model.Interest) error {
	if in.ActorID == in.TargetID {
		return fmt.Errorf("record interest: %w", errs.ErrSelfReference)
	}
	return translate("record interest", r.db.WithContext(ctx).Create(in).Error)
}

// Get returns the stored event for (actor, target).
func (r *InterestRepository) Get(ctx context.Context, actorID, targetID string) (model.Interest, error) {
	var in model.Interest
	err := r.db.WithContext(ctx).
		Where("actor_id = ? AND target_id = ?", actorID, targetID).
		Take(&in).Error
	return in, translate("get interest", err)
}

// CountByActor returns how many events actorID has recorded.
func (r *InterestRepository) CountByActor(ctx context.Context, actorID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Interest{}).Where("actor_id = ?", actorID).Count(&n).Error
	return n, translate("count interests", err)
}
