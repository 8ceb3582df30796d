package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/internal/domain/model"
)

// txRepo runs single statements against a handle that may be a transaction.
// It serves both the detector's and the recorder's transactional views.
type txRepo struct {
	db *gorm.DB
}

func (r *txRepo) Profile(ctx context.Context, id string) (model.Profile, error) {
	var p model.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	return p, translate("get profile", err)
}

func (r *txRepo) HasPositiveInterest(ctx context.Context, actorID, targetID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Interest{}).
		Where("actor_id = ? AND target_id = ? AND disposition = ?", actorID, targetID, model.DispositionLike).
		Count(&n).Error
	return n > 0, translate("has positive interest", err)
}

func (r *txRepo) CreateMatch(ctx context.Context, m *model.Match) error {
	return translate("create match", r.db.WithContext(ctx).Create(m).Error)
}

func (r *txRepo) LockMatch(ctx context.Context, matchID string) (model.Match, error) {
	var m model.Match
	// SQLite has no row locks; its single writer serializes instead.
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", matchID).
		Take(&m).Error
	return m, translate("lock match", err)
}

func (r *txRepo) GetMatch(ctx context.Context, matchID string) (model.Match, error) {
	var m model.Match
	err := r.db.WithContext(ctx).Where("id = ?", matchID).Take(&m).Error
	return m, translate("get match", err)
}

func (r *txRepo) HasMilestone(ctx context.Context, matchID, key string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.MilestoneEntry{}).
		Where("match_id = ? AND milestone_key = ?", matchID, key).
		Count(&n).Error
	return n > 0, translate("has milestone", err)
}

func (r *txRepo) AddMilestone(ctx context.Context, entry *model.MilestoneEntry) error {
	return translate("add milestone", r.db.WithContext(ctx).Create(entry).Error)
}

func (r *txRepo) SetScore(ctx context.Context, matchID string, score int) error {
	res := r.db.WithContext(ctx).Model(&model.Match{}).
		Where("id = ?", matchID).
		Updates(map[string]any{"current_score": score, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate("set score", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotFound
	}
	return nil
}
