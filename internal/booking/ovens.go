package booking

import (
	"context"
	"fmt"
	"strings"

	"ovenbook/internal/events"
	"ovenbook/internal/model"
)

// OvenInput holds the admin-editable oven fields. Status is managed only by
// the maintenance operations.
type OvenInput struct {
	Name    string         `json:"name"`
	Type    model.OvenType `json:"type"`
	MaxTemp int            `json:"max_temp"`
}

func (in OvenInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return reject(CodeValidation, "oven name is required")
	}
	if !in.Type.Valid() {
		return reject(CodeValidation, "oven type must be %s or %s", model.OvenTypeNonAqueous, model.OvenTypeAqueous)
	}
	if in.MaxTemp < 1 {
		return reject(CodeValidation, "maximum temperature must be positive")
	}
	return nil
}

func ensureUniqueName(ctx context.Context, tx Tx, name string, selfID int64) error {
	ovens, err := tx.ListOvens(ctx)
	if err != nil {
		return fmt.Errorf("list ovens: %w", err)
	}
	for _, o := range ovens {
		if o.ID != selfID && strings.EqualFold(o.Name, name) {
			return reject(CodeValidation, "an oven named %q already exists", name)
		}
	}
	return nil
}

// CreateOven registers a new AVAILABLE oven. Admin only.
func (s *Service) CreateOven(ctx context.Context, actor Actor, in OvenInput) (*model.Oven, error) {
	const op = "create_oven"
	in.Name = strings.TrimSpace(in.Name)
	if err := requireAdmin(actor); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	if err := in.validate(); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	var oven *model.Oven
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		if err := ensureUniqueName(ctx, tx, in.Name, 0); err != nil {
			return err
		}
		o := &model.Oven{
			Name:      in.Name,
			Type:      in.Type,
			Status:    model.OvenAvailable,
			MaxTemp:   in.MaxTemp,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertOven(ctx, o); err != nil {
			return fmt.Errorf("insert oven: %w", err)
		}
		snapshot := *o
		box.add(events.Event{Type: events.TopicOvenChanged, Oven: &snapshot, OccurredAt: now})
		oven = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("oven_id", oven.ID).Str("name", oven.Name).Msg("oven created")
	return oven, nil
}

// UpdateOven edits name, type and maximum temperature. Existing bookings are
// not re-validated against a lowered ceiling; the next edit of each is.
func (s *Service) UpdateOven(ctx context.Context, actor Actor, ovenID int64, in OvenInput) (*model.Oven, error) {
	const op = "update_oven"
	in.Name = strings.TrimSpace(in.Name)
	if err := requireAdmin(actor); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	if err := in.validate(); err != nil {
		return nil, s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	var oven *model.Oven
	err := s.run(ctx, op, func(tx Tx, box *outbox) error {
		o, err := tx.GetOven(ctx, ovenID)
		if err != nil {
			return fmt.Errorf("get oven %d: %w", ovenID, err)
		}
		if o == nil {
			return reject(CodeNotFound, "oven %d not found", ovenID)
		}
		if err := ensureUniqueName(ctx, tx, in.Name, o.ID); err != nil {
			return err
		}
		o.Name = in.Name
		o.Type = in.Type
		o.MaxTemp = in.MaxTemp
		o.UpdatedAt = now
		if err := tx.UpdateOven(ctx, o); err != nil {
			return fmt.Errorf("update oven: %w", err)
		}
		snapshot := *o
		box.add(events.Event{Type: events.TopicOvenChanged, Oven: &snapshot, OccurredAt: now})
		oven = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return oven, nil
}

// DeleteOven removes an oven that has never been booked. Admin only.
func (s *Service) DeleteOven(ctx context.Context, actor Actor, ovenID int64) error {
	const op = "delete_oven"
	if err := requireAdmin(actor); err != nil {
		return s.rejectOutside(op, err)
	}
	now := s.clock.Now().UTC()

	return s.run(ctx, op, func(tx Tx, box *outbox) error {
		o, err := tx.GetOven(ctx, ovenID)
		if err != nil {
			return fmt.Errorf("get oven %d: %w", ovenID, err)
		}
		if o == nil {
			return reject(CodeNotFound, "oven %d not found", ovenID)
		}
		n, err := tx.CountOvenBookings(ctx, ovenID)
		if err != nil {
			return fmt.Errorf("count oven bookings: %w", err)
		}
		if n > 0 {
			return reject(CodeInvalidStateTransition, "oven %s has %d bookings in its history and cannot be deleted", o.Name, n)
		}
		if err := tx.DeleteOven(ctx, ovenID); err != nil {
			return fmt.Errorf("delete oven: %w", err)
		}
		box.add(events.Event{Type: events.TopicOvenChanged, Oven: o, OccurredAt: now})
		return nil
	})
}
