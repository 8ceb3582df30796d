// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Disposition is the actor's decision about a target.
type Disposition string

// Supported dispositions.
const (
	DispositionLike Disposition = "like"
	DispositionPass Disposition = "pass"
)

// Positive reports whether the disposition can contribute to a match.
func (d Disposition) Positive() bool { return d == DispositionLike }

// ParseDisposition accepts like or pass, case-insensitively.
func ParseDisposition(s string) (Disposition, error) {
	switch d := Disposition(strings.ToLower(strings.TrimSpace(s))); d {
	case DispositionLike, DispositionPass:
		return d, nil
	default:
		return "", fmt.Errorf("unknown disposition %q", s)
	}
}

// Interest is an immutable record of one actor's decision about one target.
// At most one exists per ordered (actor, target) pair.
type Interest struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID     string      `gorm:"type:varchar(64);not null;uniqueIndex:ux_interest_actor_target,priority:1" json:"actor_id"`
	TargetID    string      `gorm:"type:varchar(64);not null;uniqueIndex:ux_interest_actor_target,priority:2;index:ix_interest_target" json:"target_id"`
	Disposition Disposition `gorm:"type:varchar(8);not null" json:"disposition"`
	Priority    bool        `gorm:"not null" json:"priority"`
	CreatedAt   time.Time   `json:"created_at"`
}

// TableName pins the table name.
func (Interest) TableName() string { return "interests" }
