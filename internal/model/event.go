package model

import (
	"encoding/json"
	"time"
)

// ActorType identifies who originated a lifecycle event.
type ActorType string

const (
	ActorUser   ActorType = "USER"
	ActorAdmin  ActorType = "ADMIN"
	ActorSystem ActorType = "SYSTEM"
)

// EventType is the kind of lifecycle event.
type EventType string

const (
	EventCreated       EventType = "CREATED"
	EventEdited        EventType = "EDITED"
	EventCancelled     EventType = "CANCELLED"
	EventAutoCancelled EventType = "AUTO_CANCELLED"
	EventCompleted     EventType = "COMPLETED"
	EventRemoved       EventType = "REMOVED"
)

// BookingEvent is an immutable entry of the per-booking event log.
type BookingEvent struct {
	ID        string          `json:"id"`
	BookingID string          `json:"booking_id"`
	ActorID   *string         `json:"actor_id,omitempty"` // nil for SYSTEM
	ActorType ActorType       `json:"actor_type"`
	EventType EventType       `json:"event_type"`
	Note      string          `json:"note,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// BookingSnapshot holds the mutable fields of a booking, used as the
// before/after payload of EDITED events.
type BookingSnapshot struct {
	OvenID    int64     `json:"oven_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Purpose   string    `json:"purpose"`
	UsageTemp int       `json:"usage_temp"`
	Flap      int       `json:"flap"`
}

// Snapshot captures the editable fields of b.
func (b *Booking) Snapshot() BookingSnapshot {
	return BookingSnapshot{
		OvenID:    b.OvenID,
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
		Purpose:   b.Purpose,
		UsageTemp: b.UsageTemp,
		Flap:      b.Flap,
	}
}

// EditPayload is the structured payload of an EDITED event.
type EditPayload struct {
	Before BookingSnapshot `json:"before"`
	After  BookingSnapshot `json:"after"`
}
