package booking_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ovenbook/internal/booking"
	"ovenbook/internal/clock"
	"ovenbook/internal/memstore"
	"ovenbook/internal/model"
)

// checkInvariants asserts the store-wide booking invariants.
func checkInvariants(t *rapid.T, store *memstore.Store, ovens map[int64]*model.Oven, limit int) {
	all := store.Bookings()
	perOwner := map[string]int{}
	for i, a := range all {
		if !a.IsActive() {
			continue
		}
		perOwner[a.OwnerID]++
		if oven, ok := ovens[a.OvenID]; ok && a.UsageTemp > oven.MaxTemp {
			t.Fatalf("booking %s exceeds oven max temp", a.ID)
		}
		for _, b := range all[i+1:] {
			if b.IsActive() && a.OvenID == b.OvenID && a.OverlapsWith(b) {
				t.Fatalf("active bookings %s and %s overlap on oven %d", a.ID, b.ID, a.OvenID)
			}
		}
	}
	for owner, n := range perOwner {
		if n > limit {
			t.Fatalf("owner %s holds %d active bookings", owner, n)
		}
	}
}

// countTransitions returns how many status changes separate two snapshots.
func countTransitions(before, after []*model.Booking) int {
	prev := map[string]model.BookingStatus{}
	for _, b := range before {
		prev[b.ID] = b.Status
	}
	n := 0
	for _, b := range after {
		if s, ok := prev[b.ID]; !ok || s != b.Status {
			n++
		}
	}
	return n
}

func TestBookingInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := memstore.New()
		clk := clock.NewFake(jan1)
		svc := booking.NewService(store, nil, clk, booking.DefaultRules())

		ovens := map[int64]*model.Oven{}
		for i := 0; i < 2; i++ {
			o, err := svc.CreateOven(ctx, admin, booking.OvenInput{
				Name: fmt.Sprintf("O%d", i+1), Type: model.OvenTypeAqueous, MaxTemp: 200,
			})
			require.NoError(t, err)
			ovens[o.ID] = o
		}
		actors := []booking.Actor{alice, bob, {ID: "carol", Role: model.RoleUser}, admin}

		var ids []string
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before := store.Bookings()
			eventsBefore := len(store.Events())
			actor := rapid.SampledFrom(actors).Draw(t, "actor")

			var err error
			switch op := rapid.IntRange(0, 6).Draw(t, "op"); op {
			case 0, 1:
				startH := rapid.IntRange(0, 72).Draw(t, "start")
				lenH := rapid.IntRange(1, 12).Draw(t, "len")
				start := jan1.Add(time.Duration(startH) * time.Hour)
				var b *model.Booking
				b, err = svc.CreateBooking(ctx, actor, booking.BookingInput{
					OvenID:    rapid.Int64Range(1, 2).Draw(t, "oven"),
					Start:     start,
					End:       start.Add(time.Duration(lenH) * time.Hour),
					Purpose:   "Drying",
					UsageTemp: rapid.IntRange(1, 250).Draw(t, "temp"),
				})
				if err == nil {
					ids = append(ids, b.ID)
				}
			case 2:
				if len(ids) > 0 {
					id := rapid.SampledFrom(ids).Draw(t, "cancel")
					_, err = svc.CancelBooking(ctx, actor, id, "")
				}
			case 3:
				if len(ids) > 0 {
					id := rapid.SampledFrom(ids).Draw(t, "edit")
					startH := rapid.IntRange(0, 72).Draw(t, "edit_start")
					start := jan1.Add(time.Duration(startH) * time.Hour)
					_, err = svc.EditBooking(ctx, actor, id, booking.BookingInput{
						Start: start, End: start.Add(2 * time.Hour), Purpose: "Edited", UsageTemp: 100,
					})
				}
			case 4:
				_, err = svc.SetOvenMaintenance(ctx, actor, rapid.Int64Range(1, 2).Draw(t, "maint"))
				if err == nil && rapid.Bool().Draw(t, "clear") {
					err = svc.ClearOvenMaintenance(ctx, admin, 1)
					if err == nil {
						err = svc.ClearOvenMaintenance(ctx, admin, 2)
					}
				}
			case 5:
				clk.Advance(time.Duration(rapid.IntRange(1, 24).Draw(t, "advance")) * time.Hour)
				_, err = svc.AutoCompleteBookings(ctx)
			case 6:
				if len(ids) > 0 {
					id := rapid.SampledFrom(ids).Draw(t, "remove")
					_, err = svc.RemoveBooking(ctx, actor, id)
				}
			}

			if err != nil && !booking.IsRejection(err) {
				t.Fatalf("unexpected infrastructure error: %v", err)
			}
			after := store.Bookings()
			if err != nil {
				if countTransitions(before, after) != 0 || len(store.Events()) != eventsBefore {
					t.Fatalf("rejected operation changed state: %v", err)
				}
			}
			checkInvariants(t, store, ovens, booking.DefaultRules().MaxActivePerUser)
		}
	})
}

func TestAutoCompleteIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := memstore.New()
		clk := clock.NewFake(jan1)
		svc := booking.NewService(store, nil, clk, booking.DefaultRules())
		oven, err := svc.CreateOven(ctx, admin, booking.OvenInput{Name: "O1", Type: model.OvenTypeAqueous, MaxTemp: 200})
		require.NoError(t, err)

		n := rapid.IntRange(0, 6).Draw(t, "n")
		for i := 0; i < n; i++ {
			start := jan1.Add(time.Duration(i*3) * time.Hour)
			owner := booking.Actor{ID: fmt.Sprintf("u%d", i), Role: model.RoleUser}
			_, err := svc.CreateBooking(ctx, owner, booking.BookingInput{
				OvenID: oven.ID, Start: start, End: start.Add(2 * time.Hour), Purpose: "Drying", UsageTemp: 100,
			})
			require.NoError(t, err)
		}

		clk.Advance(time.Duration(rapid.IntRange(0, 24).Draw(t, "advance")) * time.Hour)
		first, err := svc.AutoCompleteBookings(ctx)
		require.NoError(t, err)
		snapshot := store.Bookings()
		eventCount := len(store.Events())

		second, err := svc.AutoCompleteBookings(ctx)
		require.NoError(t, err)
		if second != 0 {
			t.Fatalf("second sweep completed %d bookings (first %d)", second, first)
		}
		if countTransitions(snapshot, store.Bookings()) != 0 || len(store.Events()) != eventCount {
			t.Fatal("second sweep changed state")
		}
	})
}

func TestEventParityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := memstore.New()
		svc := booking.NewService(store, nil, clock.NewFake(jan1), booking.DefaultRules())
		oven, err := svc.CreateOven(ctx, admin, booking.OvenInput{Name: "O1", Type: model.OvenTypeAqueous, MaxTemp: 200})
		require.NoError(t, err)

		b, err := svc.CreateBooking(ctx, alice, booking.BookingInput{
			OvenID: oven.ID, Start: jan1.Add(time.Hour), End: jan1.Add(2 * time.Hour), Purpose: "Drying", UsageTemp: 100,
		})
		require.NoError(t, err)

		var expected model.EventType
		switch rapid.IntRange(0, 3).Draw(t, "terminal") {
		case 0:
			_, err = svc.CancelBooking(ctx, alice, b.ID, "")
			expected = model.EventCancelled
		case 1:
			_, err = svc.CompleteBooking(ctx, admin, b.ID)
			expected = model.EventCompleted
		case 2:
			_, err = svc.SetOvenMaintenance(ctx, admin, oven.ID)
			expected = model.EventAutoCancelled
		case 3:
			_, err = svc.RemoveBooking(ctx, admin, b.ID)
			expected = model.EventRemoved
		}
		require.NoError(t, err)

		history, err := svc.BookingHistory(ctx, admin, b.ID)
		require.NoError(t, err)
		if len(history) != 2 || history[0].EventType != model.EventCreated || history[1].EventType != expected {
			t.Fatalf("unexpected history %v, want CREATED then %s", eventTypes(history), expected)
		}
	})
}
