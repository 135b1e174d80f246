package booking

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// BookingInput is a structurally parsed create or edit request.
type BookingInput struct {
	OvenID    int64
	Start     time.Time
	End       time.Time
	Purpose   string
	UsageTemp int
	Flap      int
}

// RawBookingInput is the wire form of a booking request. Dates are
// RFC 3339 strings; a bare "2006-01-02T15:04" form is read as UTC.
type RawBookingInput struct {
	OvenID    int64  `json:"oven_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Purpose   string `json:"purpose"`
	UsageTemp int    `json:"usage_temp"`
	Flap      int    `json:"flap"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseInstant parses a wall-clock or RFC 3339 timestamp as UTC.
func ParseInstant(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, reject(CodeValidation, "%s is required", field)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, reject(CodeValidation, "%s has an invalid date format", field)
}

// ParseBookingInput converts the wire form into a BookingInput. Only the
// shape is checked here; range rules live in Rules.Validate.
func ParseBookingInput(raw RawBookingInput) (BookingInput, error) {
	start, err := ParseInstant("start_date", raw.StartDate)
	if err != nil {
		return BookingInput{}, err
	}
	end, err := ParseInstant("end_date", raw.EndDate)
	if err != nil {
		return BookingInput{}, err
	}
	return BookingInput{
		OvenID:    raw.OvenID,
		Start:     start,
		End:       end,
		Purpose:   strings.TrimSpace(raw.Purpose),
		UsageTemp: raw.UsageTemp,
		Flap:      raw.Flap,
	}, nil
}

// Validate applies the structural booking rules in order; the first failure
// wins. checkPast enables the start-not-in-the-past rule.
func (r Rules) Validate(in BookingInput, now time.Time, checkPast bool) error {
	if in.OvenID <= 0 {
		return reject(CodeValidation, "oven is required")
	}
	if !in.End.After(in.Start) {
		return reject(CodeValidation, "end date must be after start date")
	}
	if in.End.Sub(in.Start) > r.MaxDuration {
		return reject(CodeValidation, "booking cannot be longer than %s", humanDuration(r.MaxDuration))
	}
	if checkPast && in.Start.Before(now) {
		return reject(CodeValidation, "start date cannot be in the past")
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Purpose)) < r.MinPurposeLength {
		return reject(CodeValidation, "purpose must be at least %d characters", r.MinPurposeLength)
	}
	if in.Flap < 0 || in.Flap > r.MaxFlap {
		return reject(CodeValidation, "flap must be between 0 and %d", r.MaxFlap)
	}
	if in.UsageTemp < 1 {
		return reject(CodeValidation, "usage temperature must be at least 1°C")
	}
	return nil
}

func humanDuration(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
