package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusActive        BookingStatus = "ACTIVE"
	StatusCompleted     BookingStatus = "COMPLETED"
	StatusCancelled     BookingStatus = "CANCELLED"
	StatusAutoCancelled BookingStatus = "AUTO_CANCELLED"
)

// validTransitions is the booking state machine. EDITED is a self-loop on
// ACTIVE and soft removal is orthogonal, so neither appears here.
var validTransitions = map[BookingStatus][]BookingStatus{
	StatusActive:        {StatusCompleted, StatusCancelled, StatusAutoCancelled},
	StatusCompleted:     {},
	StatusCancelled:     {},
	StatusAutoCancelled: {},
}

// Valid returns true if the status is a recognized booking status.
func (s BookingStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo returns true if a transition from s to target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible.
func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// Booking is a reservation of one oven for a time interval.
type Booking struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	OvenID       int64         `json:"oven_id"`
	StartDate    time.Time     `json:"start_date"`
	EndDate      time.Time     `json:"end_date"`
	Purpose      string        `json:"purpose"`
	UsageTemp    int           `json:"usage_temp"`
	Flap         int           `json:"flap"`
	Status       BookingStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
	CancelledBy  *string       `json:"cancelled_by,omitempty"`
	CancelReason *string       `json:"cancel_reason,omitempty"`
	DeletedAt    *time.Time    `json:"deleted_at,omitempty"`
	DeletedBy    *string       `json:"deleted_by,omitempty"`
}

// IsDeleted reports whether the booking carries the soft-delete marker.
func (b *Booking) IsDeleted() bool {
	return b.DeletedAt != nil
}

// IsActive reports whether the booking takes part in the active views:
// ACTIVE and not soft-deleted.
func (b *Booking) IsActive() bool {
	return b.Status == StatusActive && !b.IsDeleted()
}

// Duration returns the length of the booking.
func (b *Booking) Duration() time.Duration {
	return b.EndDate.Sub(b.StartDate)
}

// Overlaps reports whether [start, end) intersects the booking's interval.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return Overlaps(b.StartDate, b.EndDate, start, end)
}

// OverlapsWith checks if this booking overlaps with another booking.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.Overlaps(other.StartDate, other.EndDate)
}

// ContainsTime reports whether t falls inside [start, end).
func (b *Booking) ContainsTime(t time.Time) bool {
	return !t.Before(b.StartDate) && t.Before(b.EndDate)
}

// Clone returns a deep copy of the booking.
func (b *Booking) Clone() *Booking {
	c := *b
	c.CancelledAt = cloneTime(b.CancelledAt)
	c.CancelledBy = cloneString(b.CancelledBy)
	c.CancelReason = cloneString(b.CancelReason)
	c.DeletedAt = cloneTime(b.DeletedAt)
	c.DeletedBy = cloneString(b.DeletedBy)
	return &c
}

// Overlaps is the half-open interval test: [aStart, aEnd) and [bStart, bEnd)
// intersect iff aStart < bEnd && bStart < aEnd. Touching ends do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// BookingFilter selects bookings for listings.
type BookingFilter struct {
	OwnerID        string
	OvenID         int64
	Statuses       []BookingStatus
	From           *time.Time // bookings ending after From
	To             *time.Time // bookings starting before To
	IncludeDeleted bool
	Limit          int
}

// Matches reports whether b satisfies the filter.
func (f BookingFilter) Matches(b *Booking) bool {
	if !f.IncludeDeleted && b.IsDeleted() {
		return false
	}
	if f.OwnerID != "" && b.OwnerID != f.OwnerID {
		return false
	}
	if f.OvenID != 0 && b.OvenID != f.OvenID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if b.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.From != nil && !b.EndDate.After(*f.From) {
		return false
	}
	if f.To != nil && !b.StartDate.Before(*f.To) {
		return false
	}
	return true
}
