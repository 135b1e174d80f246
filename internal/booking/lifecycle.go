package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ovenbook/internal/metrics"
	"ovenbook/internal/model"
)

func normalize(in BookingInput) BookingInput {
	in.Start = in.Start.UTC()
	in.End = in.End.UTC()
	in.Purpose = strings.TrimSpace(in.Purpose)
	return in
}

// CreateBooking places a new ACTIVE booking owned by the actor.
func (s *Service) CreateBooking(ctx context.Context, actor Actor, in BookingInput) (*model.Booking, error) {
	const op = "create"
	in = normalize(in)

	if err := s.authorizeBooker(ctx, actor); err != nil {
		if IsRejection(err) {
			return nil, s.rejectOutside(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock.Now().UTC()
	if err := s.rules.Validate(in, now, true); err != nil {
		return nil, s.rejectOutside(op, err)
	}

	var created *model.Booking
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		active, err := tx.CountActiveBookings(ctx, actor.ID)
		if err != nil {
			return fmt.Errorf("count active bookings: %w", err)
		}
		if active >= s.rules.MaxActivePerUser {
			return reject(CodeCapacity, "you already have %d active bookings (maximum %d)", active, s.rules.MaxActivePerUser)
		}

		oven, err := checkOven(ctx, tx, in.OvenID, in.UsageTemp)
		if err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, oven, in, ""); err != nil {
			return err
		}

		b := &model.Booking{
			ID:        uuid.NewString(),
			OwnerID:   actor.ID,
			OvenID:    oven.ID,
			StartDate: in.Start,
			EndDate:   in.End,
			Purpose:   in.Purpose,
			UsageTemp: in.UsageTemp,
			Flap:      in.Flap,
			Status:    model.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if err := s.appendEvent(ctx, tx, box, b, actor, model.EventCreated, "", nil); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCreated(string(actor.actorType()))
	s.logger.Info().
		Str("booking_id", created.ID).
		Str("owner_id", created.OwnerID).
		Int64("oven_id", created.OvenID).
		Time("start", created.StartDate).
		Time("end", created.EndDate).
		Msg("booking created")
	return created, nil
}

// EditBooking updates the mutable fields of an ACTIVE booking. in.OvenID may
// be zero to keep the current oven.
func (s *Service) EditBooking(ctx context.Context, actor Actor, bookingID string, in BookingInput) (*model.Booking, error) {
	const op = "edit"
	in = normalize(in)
	if err := requireIdentity(actor); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	var edited *model.Booking
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		b, err := loadBooking(ctx, tx, bookingID, false)
		if err != nil {
			return err
		}
		if err := requireOwnerOrAdmin(actor, b); err != nil {
			return err
		}
		if b.Status != model.StatusActive {
			return reject(CodeInvalidStateTransition, "only active bookings can be edited (booking is %s)", b.Status)
		}
		if !actor.IsAdmin() && !s.rules.withinGrace(b.CreatedAt, now) {
			return reject(CodeWindowExpired, "bookings can only be edited within %s of creation; please contact an admin",
				s.rules.GraceWindow)
		}

		if in.OvenID == 0 {
			in.OvenID = b.OvenID
		}
		if err := s.rules.Validate(in, now, !in.Start.Equal(b.StartDate)); err != nil {
			return err
		}
		oven, err := checkOven(ctx, tx, in.OvenID, in.UsageTemp)
		if err != nil {
			return err
		}
		if err := checkOverlap(ctx, tx, oven, in, b.ID); err != nil {
			return err
		}

		before := b.Snapshot()
		b.OvenID = oven.ID
		b.StartDate = in.Start
		b.EndDate = in.End
		b.Purpose = in.Purpose
		b.UsageTemp = in.UsageTemp
		b.Flap = in.Flap
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		payload := model.EditPayload{Before: before, After: b.Snapshot()}
		if err := s.appendEvent(ctx, tx, box, b, actor, model.EventEdited, "", payload); err != nil {
			return err
		}
		edited = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", edited.ID).Str("actor_id", actor.ID).Msg("booking edited")
	return edited, nil
}

// CancelBooking cancels an ACTIVE booking. An empty reason is replaced by the
// configured default.
func (s *Service) CancelBooking(ctx context.Context, actor Actor, bookingID, reason string) (*model.Booking, error) {
	const op = "cancel"
	if err := requireIdentity(actor); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = s.rules.CancelReason
	}
	now := s.clock.Now().UTC()

	var cancelled *model.Booking
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		b, err := loadBooking(ctx, tx, bookingID, false)
		if err != nil {
			return err
		}
		if err := requireOwnerOrAdmin(actor, b); err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(model.StatusCancelled) {
			return reject(CodeInvalidStateTransition, "only active bookings can be cancelled (booking is %s)", b.Status)
		}
		if !actor.IsAdmin() && !s.rules.withinGrace(b.CreatedAt, now) {
			return reject(CodeWindowExpired, "bookings can only be cancelled within %s of creation; please contact an admin",
				s.rules.GraceWindow)
		}

		stampCancel(b, model.StatusCancelled, actor, reason, now)
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := s.appendEvent(ctx, tx, box, b, actor, model.EventCancelled, reason, nil); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", cancelled.ID).Str("actor_id", actor.ID).Msg("booking cancelled")
	return cancelled, nil
}

// CompleteBooking marks an ACTIVE booking as completed. Admin only. Removed
// bookings are reported as not found.
func (s *Service) CompleteBooking(ctx context.Context, actor Actor, bookingID string) (*model.Booking, error) {
	const op = "complete"
	if err := requireAdmin(actor); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	var completed *model.Booking
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		b, err := loadBooking(ctx, tx, bookingID, false)
		if err != nil {
			return err
		}
		if !b.Status.CanTransitionTo(model.StatusCompleted) {
			if b.Status == model.StatusCompleted {
				return reject(CodeInvalidStateTransition, "booking is already completed")
			}
			return reject(CodeInvalidStateTransition, "a %s booking cannot be completed", strings.ToLower(string(b.Status)))
		}
		b.Status = model.StatusCompleted
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		if err := s.appendEvent(ctx, tx, box, b, actor, model.EventCompleted, "", nil); err != nil {
			return err
		}
		completed = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", completed.ID).Str("actor_id", actor.ID).Msg("booking completed")
	return completed, nil
}

// RemoveBooking soft-deletes a booking. An ACTIVE booking is cancelled in the
// same write. Admin only.
func (s *Service) RemoveBooking(ctx context.Context, actor Actor, bookingID string) (*model.Booking, error) {
	const op = "remove"
	if err := requireAdmin(actor); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	var removed *model.Booking
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		b, err := loadBooking(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		if b.IsDeleted() {
			return reject(CodeInvalidStateTransition, "booking is already removed")
		}

		previous := b.Status
		if b.Status == model.StatusActive {
			stampCancel(b, model.StatusCancelled, actor, ReasonRemoved, now)
		}
		deletedAt := now
		deletedBy := actor.ID
		b.DeletedAt = &deletedAt
		b.DeletedBy = &deletedBy
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		payload := map[string]string{"previous_status": string(previous), "status": string(b.Status)}
		if err := s.appendEvent(ctx, tx, box, b, actor, model.EventRemoved, ReasonRemoved, payload); err != nil {
			return err
		}
		removed = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", removed.ID).Str("actor_id", actor.ID).Msg("booking removed")
	return removed, nil
}

func stampCancel(b *model.Booking, status model.BookingStatus, actor Actor, reason string, now time.Time) {
	at := now
	r := reason
	b.Status = status
	b.CancelledAt = &at
	b.CancelledBy = actor.actorID()
	b.CancelReason = &r
	b.UpdatedAt = now
}
