package booking

import (
	"context"
	"fmt"

	"ovenbook/internal/events"
	"ovenbook/internal/metrics"
	"ovenbook/internal/model"
)

// SetOvenMaintenance flags the oven as under maintenance and auto-cancels
// every active booking on it in the same transaction. It returns the number
// of bookings cancelled. Admin only.
func (s *Service) SetOvenMaintenance(ctx context.Context, actor Actor, ovenID int64) (int, error) {
	const op = "set_maintenance"
	if err := requireAdmin(actor); err != nil {
		return 0, s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	cancelled := 0
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		cancelled = 0
		oven, err := tx.GetOven(ctx, ovenID)
		if err != nil {
			return fmt.Errorf("get oven %d: %w", ovenID, err)
		}
		if oven == nil {
			return reject(CodeNotFound, "oven %d not found", ovenID)
		}

		oven.Status = model.OvenMaintenance
		oven.UpdatedAt = now
		if err := tx.UpdateOven(ctx, oven); err != nil {
			return fmt.Errorf("update oven: %w", err)
		}

		active, err := tx.ListActiveOnOven(ctx, ovenID)
		if err != nil {
			return fmt.Errorf("list active bookings: %w", err)
		}
		for _, b := range active {
			stampCancel(b, model.StatusAutoCancelled, actor, ReasonMaintenance, now)
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return fmt.Errorf("update booking %s: %w", b.ID, err)
			}
			if err := s.appendEvent(ctx, tx, box, b, actor, model.EventAutoCancelled, ReasonMaintenance, nil); err != nil {
				return err
			}
			cancelled++
		}

		snapshot := *oven
		box.add(events.Event{Type: events.TopicOvenMaintenance, Oven: &snapshot, OccurredAt: now})
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("oven_id", ovenID).Int("cancelled", cancelled).Str("actor_id", actor.ID).Msg("oven set to maintenance")
	return cancelled, nil
}

// ClearOvenMaintenance makes the oven bookable again. Auto-cancelled bookings
// stay cancelled. Admin only.
func (s *Service) ClearOvenMaintenance(ctx context.Context, actor Actor, ovenID int64) error {
	const op = "clear_maintenance"
	if err := requireAdmin(actor); err != nil {
		return s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		oven, err := tx.GetOven(ctx, ovenID)
		if err != nil {
			return fmt.Errorf("get oven %d: %w", ovenID, err)
		}
		if oven == nil {
			return reject(CodeNotFound, "oven %d not found", ovenID)
		}
		oven.Status = model.OvenAvailable
		oven.UpdatedAt = now
		if err := tx.UpdateOven(ctx, oven); err != nil {
			return fmt.Errorf("update oven: %w", err)
		}
		snapshot := *oven
		box.add(events.Event{Type: events.TopicOvenAvailable, Oven: &snapshot, OccurredAt: now})
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("oven_id", ovenID).Str("actor_id", actor.ID).Msg("oven maintenance cleared")
	return nil
}

// AutoCompleteBookings completes every active booking whose end date has
// passed. Each transition is logged as a SYSTEM COMPLETED event. Running it
// again without the clock moving has no effect.
func (s *Service) AutoCompleteBookings(ctx context.Context) (int, error) {
	const op = "auto_complete"
	now := s.clock.Now().UTC()

	completed := 0
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		completed = 0
		due, err := tx.ListActiveEndedBefore(ctx, now)
		if err != nil {
			return fmt.Errorf("list ended bookings: %w", err)
		}
		for _, b := range due {
			b.Status = model.StatusCompleted
			b.UpdatedAt = now
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return fmt.Errorf("update booking %s: %w", b.ID, err)
			}
			if err := s.appendEvent(ctx, tx, box, b, SystemActor, model.EventCompleted, "Completed automatically", nil); err != nil {
				return err
			}
			completed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.AddSweepCompleted(completed)
	if completed > 0 {
		s.logger.Info().Int("completed", completed).Msg("auto-completed ended bookings")
	}
	return completed, nil
}
