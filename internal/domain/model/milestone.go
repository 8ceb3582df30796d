package model

import (
	"time"

	"gorm.io/datatypes"
)

// MilestoneEntry is one row of a match's milestone ledger.
// (MatchID, Key) is unique; entries are never removed.
type MilestoneEntry struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	MatchID    string         `gorm:"type:varchar(36);not null;uniqueIndex:ux_match_milestone,priority:1" json:"match_id"`
	Key        string         `gorm:"column:milestone_key;type:varchar(64);not null;uniqueIndex:ux_match_milestone,priority:2" json:"key"`
	Bonus      int            `gorm:"not null" json:"bonus"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	AchievedAt time.Time      `gorm:"not null" json:"achieved_at"`
}

// TableName pins the table name.
func (MilestoneEntry) TableName() string { return "match_milestones" }
