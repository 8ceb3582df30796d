package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/tandem/internal/domain/model"
	"github.com/okian/tandem/internal/domain/ranking"
)

// ProfileRepository reads profiles for ranking and seeding.
type ProfileRepository struct {
	txRepo
}

// NewProfileRepository builds a ProfileRepository.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{txRepo{db: db}}
}

// Put inserts p or replaces the stored fields of the profile with the same id.
func (r *ProfileRepository) Put(ctx context.Context, p *model.Profile) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(p).Error
	return translate("put profile", err)
}

// Exists reports whether a profile with id is stored.
func (r *ProfileRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Profile{}).Where("id = ?", id).Count(&n).Error
	return n > 0, translate("profile exists", err)
}

// CandidatePool returns up to limit profiles in insertion order that actor
// has not acted on, that have a photo, and that fit actor's preference.
func (r *ProfileRepository) CandidatePool(ctx context.Context, actor model.Profile, limit int) ([]model.Profile, error) {
	acted := r.db.Model(&model.Interest{}).Select("target_id").Where("actor_id = ?", actor.ID)

	q := r.db.WithContext(ctx).
		Where("id <> ?", actor.ID).
		Where("photo_count >= ?", 1).
		Where("id NOT IN (?)", acted)
	if genders := actor.SeekingGenders(); len(genders) > 0 {
		q = q.Where("gender IN ?", genders)
	}

	var out []model.Profile
	err := q.Order("seq ASC").Limit(limit).Find(&out).Error
	return out, translate("candidate pool", err)
}

var _ ranking.Profiles = (*ProfileRepository)(nil)
