package booking

import "time"

// Rules holds the tunable booking policy.
type Rules struct {
	MaxActivePerUser int
	GraceWindow      time.Duration
	MaxDuration      time.Duration
	MinPurposeLength int
	MaxFlap          int
	CancelReason     string // default reason for self-service cancellation
}

const (
	ReasonRemoved     = "Removed by admin"
	ReasonMaintenance = "Auto-cancelled due to maintenance"
)

// DefaultRules returns the production policy.
func DefaultRules() Rules {
	return Rules{
		MaxActivePerUser: 2,
		GraceWindow:      15 * time.Minute,
		MaxDuration:      7 * 24 * time.Hour,
		MinPurposeLength: 3,
		MaxFlap:          100,
		CancelReason:     "Cancelled by user",
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.MaxActivePerUser <= 0 {
		r.MaxActivePerUser = d.MaxActivePerUser
	}
	if r.GraceWindow <= 0 {
		r.GraceWindow = d.GraceWindow
	}
	if r.MaxDuration <= 0 {
		r.MaxDuration = d.MaxDuration
	}
	if r.MinPurposeLength <= 0 {
		r.MinPurposeLength = d.MinPurposeLength
	}
	if r.MaxFlap <= 0 {
		r.MaxFlap = d.MaxFlap
	}
	if r.CancelReason == "" {
		r.CancelReason = d.CancelReason
	}
	return r
}

// withinGrace reports whether now is inside the self-service window that
// opens at createdAt.
func (r Rules) withinGrace(createdAt, now time.Time) bool {
	return now.Sub(createdAt) <= r.GraceWindow
}
