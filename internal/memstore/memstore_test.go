package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ovenbook/internal/booking"
	"ovenbook/internal/model"
)

var base = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store) *model.Oven {
	t.Helper()
	oven := &model.Oven{Name: "O1", Type: model.OvenTypeAqueous, Status: model.OvenAvailable, MaxTemp: 200}
	require.NoError(t, s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		return tx.InsertOven(context.Background(), oven)
	}))
	return oven
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := New()
	oven := seed(t, s)
	boom := errors.New("boom")

	err := s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		b := &model.Booking{ID: "b1", OvenID: oven.ID, StartDate: base, EndDate: base.Add(time.Hour), Status: model.StatusActive}
		if err := tx.InsertBooking(context.Background(), b); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.Bookings())
}

func TestOvenIDsAreSequential(t *testing.T) {
	s := New()
	first := seed(t, s)
	second := &model.Oven{Name: "O2", Type: model.OvenTypeNonAqueous, Status: model.OvenAvailable, MaxTemp: 300}
	require.NoError(t, s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		return tx.InsertOven(context.Background(), second)
	}))
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)

	dup := &model.Oven{Name: "o1", Type: model.OvenTypeAqueous, MaxTemp: 10}
	err := s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		return tx.InsertOven(context.Background(), dup)
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestActiveQueriesIgnoreDeletedAndTerminal(t *testing.T) {
	s := New()
	oven := seed(t, s)
	deletedAt := base

	rows := []*model.Booking{
		{ID: "active", OwnerID: "u1", OvenID: oven.ID, StartDate: base, EndDate: base.Add(2 * time.Hour), Status: model.StatusActive},
		{ID: "deleted", OwnerID: "u1", OvenID: oven.ID, StartDate: base, EndDate: base.Add(2 * time.Hour), Status: model.StatusActive, DeletedAt: &deletedAt},
		{ID: "done", OwnerID: "u1", OvenID: oven.ID, StartDate: base, EndDate: base.Add(2 * time.Hour), Status: model.StatusCompleted},
	}
	require.NoError(t, s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		for _, b := range rows {
			if err := tx.InsertBooking(context.Background(), b); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		ctx := context.Background()
		n, err := tx.CountActiveBookings(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		hit, err := tx.FindOverlapping(ctx, oven.ID, base.Add(time.Hour), base.Add(3*time.Hour), "")
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, "active", hit.ID)

		hit, err = tx.FindOverlapping(ctx, oven.ID, base.Add(time.Hour), base.Add(3*time.Hour), "active")
		require.NoError(t, err)
		assert.Nil(t, hit)

		ended, err := tx.ListActiveEndedBefore(ctx, base.Add(3*time.Hour))
		require.NoError(t, err)
		require.Len(t, ended, 1)
		assert.Equal(t, "active", ended[0].ID)

		total, err := tx.CountOvenBookings(ctx, oven.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		return nil
	}))
}

func TestReturnedRowsAreCopies(t *testing.T) {
	s := New()
	oven := seed(t, s)
	require.NoError(t, s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		o, err := tx.GetOven(context.Background(), oven.ID)
		require.NoError(t, err)
		o.MaxTemp = 1
		return nil
	}))
	require.NoError(t, s.WithTransaction(context.Background(), func(tx booking.Tx) error {
		o, err := tx.GetOven(context.Background(), oven.ID)
		require.NoError(t, err)
		assert.Equal(t, 200, o.MaxTemp)
		return nil
	}))
}

func TestUsers(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := &model.User{ID: "u1", Email: "a@lab.test", Status: model.UserPending, CreatedAt: base}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &model.User{ID: "u2", Email: "A@lab.test"}), ErrDuplicate)

	got, err := s.GetUserByEmail(ctx, "A@LAB.TEST")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)

	got.Status = model.UserApproved
	require.NoError(t, s.UpdateUser(ctx, got))
	pending, err := s.ListUsers(ctx, model.UserPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	missing, err := s.GetUser(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
