package booking

import (
	"context"
	"fmt"

	"ovenbook/internal/model"
)

// GetBooking returns a booking visible to the actor. Soft-deleted bookings
// are visible to admins only.
func (s *Service) GetBooking(ctx context.Context, actor Actor, id string) (*model.Booking, error) {
	var out *model.Booking
	err := s.store.WithTransaction(ctx, func(tx Tx) error {
		b, err := loadBooking(ctx, tx, id, actor.IsAdmin())
		if err != nil {
			return err
		}
		if err := requireOwnerOrAdmin(actor, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, wrapRead("get booking", err)
	}
	return out, nil
}

// ListBookings lists bookings matching filter. Non-admins only ever see
// their own non-deleted bookings.
func (s *Service) ListBookings(ctx context.Context, actor Actor, filter model.BookingFilter) ([]*model.Booking, error) {
	if !actor.IsAdmin() {
		if err := requireIdentity(actor); err != nil {
			return nil, err
		}
		filter.OwnerID = actor.ID
		filter.IncludeDeleted = false
	}
	var out []*model.Booking
	err := s.store.WithTransaction(ctx, func(tx Tx) error {
		list, err := tx.ListBookings(ctx, filter)
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		out = list
		return nil
	})
	if err != nil {
		return nil, wrapRead("list bookings", err)
	}
	return out, nil
}

// BookingHistory returns the event log of a booking, oldest first.
func (s *Service) BookingHistory(ctx context.Context, actor Actor, id string) ([]*model.BookingEvent, error) {
	var out []*model.BookingEvent
	err := s.store.WithTransaction(ctx, func(tx Tx) error {
		b, err := loadBooking(ctx, tx, id, actor.IsAdmin())
		if err != nil {
			return err
		}
		if err := requireOwnerOrAdmin(actor, b); err != nil {
			return err
		}
		list, err := tx.ListEvents(ctx, id)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		out = list
		return nil
	})
	if err != nil {
		return nil, wrapRead("booking history", err)
	}
	return out, nil
}

// ListOvens returns every oven ordered by id.
func (s *Service) ListOvens(ctx context.Context) ([]*model.Oven, error) {
	var out []*model.Oven
	err := s.store.WithTransaction(ctx, func(tx Tx) error {
		list, err := tx.ListOvens(ctx)
		if err != nil {
			return fmt.Errorf("list ovens: %w", err)
		}
		out = list
		return nil
	})
	if err != nil {
		return nil, wrapRead("list ovens", err)
	}
	return out, nil
}

// GetOven returns a single oven or a NOT_FOUND rejection.
func (s *Service) GetOven(ctx context.Context, id int64) (*model.Oven, error) {
	var out *model.Oven
	err := s.store.WithTransaction(ctx, func(tx Tx) error {
		o, err := tx.GetOven(ctx, id)
		if err != nil {
			return fmt.Errorf("get oven %d: %w", id, err)
		}
		if o == nil {
			return reject(CodeNotFound, "oven %d not found", id)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, wrapRead("get oven", err)
	}
	return out, nil
}

func wrapRead(op string, err error) error {
	if IsRejection(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
