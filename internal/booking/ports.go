package booking

import (
	"context"
	"time"

	"ovenbook/internal/events"
	"ovenbook/internal/model"
)

// Store is the unit-of-work boundary. Every read used for validation and the
// write that follows run inside one call to WithTransaction. If fn returns an
// error the transaction is rolled back and the error is returned unchanged.
type Store interface {
	WithTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view of the booking store. Getters return
// (nil, nil) when the row does not exist. "Active" always means
// status ACTIVE and not soft-deleted.
type Tx interface {
	GetOven(ctx context.Context, id int64) (*model.Oven, error)
	ListOvens(ctx context.Context) ([]*model.Oven, error)
	InsertOven(ctx context.Context, oven *model.Oven) error
	UpdateOven(ctx context.Context, oven *model.Oven) error
	DeleteOven(ctx context.Context, id int64) error
	CountOvenBookings(ctx context.Context, ovenID int64) (int, error)

	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	CountActiveBookings(ctx context.Context, ownerID string) (int, error)
	FindOverlapping(ctx context.Context, ovenID int64, start, end time.Time, excludeID string) (*model.Booking, error)
	ListActiveOnOven(ctx context.Context, ovenID int64) ([]*model.Booking, error)
	ListActiveEndedBefore(ctx context.Context, t time.Time) ([]*model.Booking, error)
	ListBookings(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBooking(ctx context.Context, b *model.Booking) error

	AppendEvent(ctx context.Context, e *model.BookingEvent) error
	ListEvents(ctx context.Context, bookingID string) ([]*model.BookingEvent, error)
}

// UserDirectory resolves users for the approval check on booking creation.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Publisher receives lifecycle events after commit.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Actor is the identity performing an operation.
type Actor struct {
	ID   string
	Role model.Role
}

// SystemActor originates time-driven transitions.
var SystemActor = Actor{ID: "", Role: ""}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// IsSystem reports whether the actor is the system.
func (a Actor) IsSystem() bool { return a.ID == "" && a.Role == "" }

func (a Actor) actorType() model.ActorType {
	switch {
	case a.IsSystem():
		return model.ActorSystem
	case a.IsAdmin():
		return model.ActorAdmin
	default:
		return model.ActorUser
	}
}

func (a Actor) actorID() *string {
	if a.IsSystem() {
		return nil
	}
	id := a.ID
	return &id
}
