package model

import (
	"strings"
	"time"
)

// Gender values a profile can declare.
const (
	GenderMan       = "man"
	GenderWoman     = "woman"
	GenderNonbinary = "nonbinary"
)

// Preference values for InterestedIn. Empty means no preference.
const (
	SeekingMen      = "men"
	SeekingWomen    = "women"
	SeekingEveryone = "everyone"
)

// Profile is the read-only view of a user the ranking engine scores.
// Seq records insertion order and drives candidate pool order.
type Profile struct {
	Seq           uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID            string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"id"`
	Name          string    `json:"name"`
	Bio           string    `json:"bio"`
	Gender        string    `gorm:"type:varchar(16);index" json:"gender"`
	InterestedIn  string    `gorm:"type:varchar(16)" json:"interested_in"`
	Latitude      *float64  `json:"latitude,omitempty"`
	Longitude     *float64  `json:"longitude,omitempty"`
	City          string    `json:"city"`
	PhotoCount    int       `gorm:"not null" json:"photo_count"`
	Verified      bool      `gorm:"not null" json:"verified"`
	Interests     string    `json:"interests"`
	HasVoiceIntro bool      `gorm:"not null" json:"has_voice_intro"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName pins the table name.
func (Profile) TableName() string { return "profiles" }

// HasCoordinates reports whether both coordinates are present.
func (p *Profile) HasCoordinates() bool { return p.Latitude != nil && p.Longitude != nil }

// InterestTags splits Interests into trimmed, lower-cased, non-empty tags.
func (p *Profile) InterestTags() []string {
	if strings.TrimSpace(p.Interests) == "" {
		return nil
	}
	parts := strings.Split(p.Interests, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if t := strings.ToLower(strings.TrimSpace(part)); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// SeekingGenders returns the genders this profile wants to see.
// Nil means no filter.
func (p *Profile) SeekingGenders() []string {
	switch strings.ToLower(p.InterestedIn) {
	case SeekingMen:
		return []string{GenderMan}
	case SeekingWomen:
		return []string{GenderWoman}
	default:
		return nil
	}
}
