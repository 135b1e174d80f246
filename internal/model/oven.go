package model

import "time"

// OvenType governs display only.
type OvenType string

const (
	OvenTypeNonAqueous OvenType = "NON_AQUEOUS"
	OvenTypeAqueous    OvenType = "AQUEOUS"
)

// Valid reports whether t is a known oven type.
func (t OvenType) Valid() bool {
	return t == OvenTypeNonAqueous || t == OvenTypeAqueous
}

// OvenStatus is the availability of an oven.
type OvenStatus string

const (
	OvenAvailable   OvenStatus = "AVAILABLE"
	OvenMaintenance OvenStatus = "MAINTENANCE"
)

// Oven is a bookable laboratory oven.
type Oven struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      OvenType   `json:"type"`
	Status    OvenStatus `json:"status"`
	MaxTemp   int        `json:"max_temp"` // °C ceiling for any booking
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Bookable reports whether new bookings may be placed on the oven.
func (o *Oven) Bookable() bool {
	return o.Status == OvenAvailable
}
