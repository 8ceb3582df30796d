package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/okian/tandem/internal/domain/matching"
	"github.com/okian/tandem/internal/domain/milestone"
	"github.com/okian/tandem/internal/domain/model"
)

// MatchRepository stores matches. It backs the match detector.
type MatchRepository struct {
	txRepo
}

// NewMatchRepository builds a MatchRepository.
func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{txRepo{db: db}}
}

// WithinTx runs fn in one database transaction.
func (r *MatchRepository) WithinTx(ctx context.Context, fn func(tx matching.Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepo{db: tx})
	})
	return translate("match tx", err)
}

// MatchByPair returns the match for an ordered pair, dissolved or not.
func (r *MatchRepository) MatchByPair(ctx context.Context, low, high string) (model.Match, error) {
	var m model.Match
	err := r.db.WithContext(ctx).Where("user_low = ? AND user_high = ?", low, high).Take(&m).Error
	return m, translate("match by pair", err)
}

// ListForUser returns the user's active matches, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string) ([]model.Match, error) {
	var out []model.Match
	err := r.db.WithContext(ctx).
		Where("(user_low = ? OR user_high = ?) AND unmatched_at IS NULL", userID, userID).
		Order("created_at DESC").Order("id").
		Find(&out).Error
	return out, translate("list matches", err)
}

// Unmatch tombstones a match. Unmatching twice is not an error.
func (r *MatchRepository) Unmatch(ctx context.Context, matchID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Match{}).
		Where("id = ? AND unmatched_at IS NULL", matchID).
		Updates(map[string]any{"unmatched_at": at.UTC(), "updated_at": at.UTC()})
	if res.Error != nil {
		return translate("unmatch", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetMatch(ctx, matchID); err != nil {
			return err
		}
	}
	return nil
}

// LedgerRepository stores milestone ledgers. It backs the milestone recorder.
type LedgerRepository struct {
	txRepo
}

// NewLedgerRepository builds a LedgerRepository.
func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{txRepo{db: db}}
}

// WithinTx runs fn in one database transaction.
func (r *LedgerRepository) WithinTx(ctx context.Context, fn func(tx milestone.Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&txRepo{db: tx})
	})
	return translate("ledger tx", err)
}

// Ledger returns a match's milestones in the order they were achieved.
func (r *LedgerRepository) Ledger(ctx context.Context, matchID string) ([]model.MilestoneEntry, error) {
	var out []model.MilestoneEntry
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("achieved_at").Order("id").
		Find(&out).Error
	return out, translate("ledger", err)
}

var (
	_ matching.Store  = (*MatchRepository)(nil)
	_ milestone.Store = (*LedgerRepository)(nil)
)
