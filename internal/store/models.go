package store

import (
	"strings"
	"time"
)

// RiskLevel represents the classification outcome recorded for an audio file.
type RiskLevel string

const (
	RiskUnclassified RiskLevel = "unclassified"
	RiskLow          RiskLevel = "low"
	RiskMedium       RiskLevel = "medium"
	RiskHigh         RiskLevel = "high"
	RiskError        RiskLevel = "error"
)

var riskLevelSet = map[RiskLevel]struct{}{
	RiskUnclassified: {},
	RiskLow:          {},
	RiskMedium:       {},
	RiskHigh:         {},
	RiskError:        {},
}

// ParseRiskLevel converts a string into a known RiskLevel.
func ParseRiskLevel(value string) (RiskLevel, bool) {
	normalized := RiskLevel(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := riskLevelSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the level is a final classification outcome.
func (r RiskLevel) IsTerminal() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskError:
		return true
	default:
		return false
	}
}

// User is an operator account persisted in SQLite. PasswordHash is a bcrypt
// digest and never leaves the store layer in API responses.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AudioFile is an uploaded recording plus its classification state.
type AudioFile struct {
	ID           int64
	StoredName   string
	OriginalName string
	MimeType     string
	Size         int64
	OwnerID      *int64
	RiskLevel    RiskLevel
	Confidence   float64
	UploadedAt   time.Time
}
