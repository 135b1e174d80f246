package db

import (
	"context"
	"fmt"
	"time"

	"ovenbook/internal/booking"
	"ovenbook/internal/config"
	"ovenbook/internal/model"
)

// SyncOvensFromConfig applies ovens.yaml to the store. It upserts ovens by id
// and leaves maintenance status alone; status only changes through the
// maintenance operations so that the cascade always runs. Ovens missing from
// the config are kept because they may carry booking history.
func SyncOvensFromConfig(ctx context.Context, store booking.Store, cfg *config.OvensConfig, now time.Time) (int, error) {
	if cfg == nil {
		return 0, fmt.Errorf("oven config is nil")
	}
	now = now.UTC()
	changed := 0

	err := store.WithTransaction(ctx, func(tx booking.Tx) error {
		changed = 0
		for _, oc := range cfg.Ovens {
			existing, err := tx.GetOven(ctx, oc.ID)
			if err != nil {
				return fmt.Errorf("get oven %d: %w", oc.ID, err)
			}

			if existing == nil {
				o := &model.Oven{
					ID:        oc.ID,
					Name:      oc.Name,
					Type:      model.OvenType(oc.Type),
					Status:    model.OvenAvailable,
					MaxTemp:   oc.MaxTemp,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := tx.InsertOven(ctx, o); err != nil {
					return fmt.Errorf("sync oven %d: %w", oc.ID, err)
				}
				changed++
				continue
			}

			if existing.Name == oc.Name && string(existing.Type) == oc.Type && existing.MaxTemp == oc.MaxTemp {
				continue
			}
			existing.Name = oc.Name
			existing.Type = model.OvenType(oc.Type)
			existing.MaxTemp = oc.MaxTemp
			existing.UpdatedAt = now
			if err := tx.UpdateOven(ctx, existing); err != nil {
				return fmt.Errorf("sync oven %d: %w", oc.ID, err)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}
