package ranking

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/tandem/internal/domain/model"
)

const (
	maxSubScore   = 100
	earthRadiusKm = 6371.0
)

// Completeness scores how filled-in a profile is, 0..100.
func Completeness(p model.Profile) int {
	pts := 0
	if strings.TrimSpace(p.Name) != "" {
		pts += 10
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(p.Bio)); n > 0 {
		pts += 5
		if n >= 50 {
			pts += 10
		}
	}
	if p.HasCoordinates() || strings.TrimSpace(p.City) != "" {
		pts += 10
	}
	switch {
	case p.PhotoCount >= 5:
		pts += 28
	case p.PhotoCount >= 3:
		pts += 20
	case p.PhotoCount >= 1:
		pts += 10
	}
	if p.Verified {
		pts += 20
	}
	switch tags := len(p.InterestTags()); {
	case tags >= 3:
		pts += 9
	case tags >= 1:
		pts += 5
	}
	if p.HasVoiceIntro {
		pts += 8
	}
	return min(pts, maxSubScore)
}

// Recency scores how recently the profile was updated, 0..100.
func Recency(updatedAt, now time.Time) int {
	age := now.Sub(updatedAt)
	switch {
	case age < time.Hour:
		return 100
	case age < 6*time.Hour:
		return 90
	case age < 24*time.Hour:
		return 75
	case age < 3*24*time.Hour:
		return 60
	case age < 7*24*time.Hour:
		return 40
	case age < 30*24*time.Hour:
		return 20
	default:
		return 5
	}
}

// Proximity scores a distance in kilometres, 0..100.
func Proximity(km float64) int {
	switch {
	case km <= 5:
		return 90
	case km <= 15:
		return 75
	case km <= 30:
		return 60
	case km <= 50:
		return 45
	case km <= 100:
		return 30
	default:
		return 15
	}
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	// Rounding can push a just past 1 for antipodal points.
	a = min(1, max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
