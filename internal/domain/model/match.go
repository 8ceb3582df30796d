package model

import "time"

// Match is the single record for a mutually interested pair.
// UserLow < UserHigh always holds, so the pair is stored in one orientation.
type Match struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserLow      string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_match_pair,priority:1" json:"user_low"`
	UserHigh     string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_match_pair,priority:2;index:ix_match_high" json:"user_high"`
	InitialScore int        `gorm:"not null" json:"initial_score"`
	CurrentScore int        `gorm:"not null" json:"current_score"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	UnmatchedAt  *time.Time `gorm:"index" json:"unmatched_at,omitempty"`
}

// TableName pins the table name.
func (Match) TableName() string { return "matches" }

// OrderPair returns the two ids in canonical (low, high) order.
func OrderPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// IsParticipant reports whether userID is one side of the match.
func (m *Match) IsParticipant(userID string) bool {
	return userID != "" && (m.UserLow == userID || m.UserHigh == userID)
}

// Other returns the participant that is not userID.
func (m *Match) Other(userID string) string {
	if m.UserLow == userID {
		return m.UserHigh
	}
	return m.UserLow
}

// Participants returns both user ids, low first.
func (m *Match) Participants() []string { return []string{m.UserLow, m.UserHigh} }

// Active reports whether the match has not been dissolved.
func (m *Match) Active() bool { return m.UnmatchedAt == nil }
