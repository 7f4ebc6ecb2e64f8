package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRuleID generates a UUIDv7 rule identifier for rules imported without one.
// Time-ordered IDs keep generated rules sorted by creation in listings.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RuleIDTime extracts the timestamp embedded in a generated rule ID.
// Returns zero time for ids that are not UUIDv7; caller should check IsZero().
func RuleIDTime(id string) time.Time {
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
