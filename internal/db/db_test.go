package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ovenbook/internal/booking"
	"ovenbook/internal/clock"
	"ovenbook/internal/config"
	"ovenbook/internal/model"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	admin = booking.Actor{ID: "admin", Role: model.RoleAdmin}
	alice = booking.Actor{ID: "alice", Role: model.RoleUser}
	bob   = booking.Actor{ID: "bob", Role: model.RoleUser}
)

func newEngine(t *testing.T, db *DB, now time.Time) (*booking.Service, *model.Oven, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(now)
	svc := booking.NewService(db, nil, clk, booking.DefaultRules())
	oven, err := svc.CreateOven(context.Background(), admin, booking.OvenInput{
		Name: "O1", Type: model.OvenTypeNonAqueous, MaxTemp: 200,
	})
	require.NoError(t, err)
	return svc, oven, clk
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ovens.db")
	logger := zerolog.Nop()

	first, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, DialectSQLite, second.Dialect())
	assert.NoError(t, second.HealthCheck(context.Background()))

	_, err = Open(Options{Driver: "oracle"}, &logger)
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", pg.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&pq.Error{Code: "40001"}), ErrTxConflict)
	assert.ErrorIs(t, classify(fmt.Errorf("commit: %w", &pq.Error{Code: "40P01"})), ErrTxConflict)
	assert.NotErrorIs(t, classify(&pq.Error{Code: "23505"}), ErrTxConflict)
	assert.ErrorIs(t, classify(sqlite3.Error{Code: sqlite3.ErrBusy}), ErrTxConflict)
	assert.Nil(t, classify(nil))
}

func TestEngineOnSQLite(t *testing.T) {
	db := openTestDB(t)
	svc, oven, clk := newEngine(t, db, jan1.Add(-time.Hour))
	ctx := context.Background()

	in := func(startH, endH, temp int) booking.BookingInput {
		return booking.BookingInput{
			OvenID: oven.ID, Start: jan1.Add(time.Duration(startH) * time.Hour), End: jan1.Add(time.Duration(endH) * time.Hour),
			Purpose: "Drying samples", UsageTemp: temp, Flap: 10,
		}
	}

	a, err := svc.CreateBooking(ctx, alice, in(8, 12, 150))
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, bob, in(11, 13, 150))
	assert.Equal(t, booking.CodeOverlap, booking.CodeOf(err))

	b, err := svc.CreateBooking(ctx, bob, in(12, 14, 150))
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, alice, in(15, 16, 250))
	assert.Equal(t, booking.CodeTemperatureExceeded, booking.CodeOf(err))

	edited, err := svc.EditBooking(ctx, bob, b.ID, in(12, 15, 160))
	require.NoError(t, err)
	assert.Equal(t, jan1.Add(15*time.Hour), edited.EndDate)

	got, err := svc.GetBooking(ctx, bob, b.ID)
	require.NoError(t, err)
	assert.True(t, got.EndDate.Equal(jan1.Add(15*time.Hour)))
	assert.Equal(t, 160, got.UsageTemp)

	n, err := svc.SetOvenMaintenance(ctx, admin, oven.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err = svc.GetBooking(ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAutoCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, booking.ReasonMaintenance, *got.CancelReason)

	history, err := svc.BookingHistory(ctx, admin, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.EventCreated, history[0].EventType)
	assert.Equal(t, model.EventEdited, history[1].EventType)
	assert.NotEmpty(t, history[1].Payload)
	assert.Equal(t, model.EventAutoCancelled, history[2].EventType)
	require.NotNil(t, history[2].ActorID)
	assert.Equal(t, admin.ID, *history[2].ActorID)

	_, err = svc.CreateBooking(ctx, alice, in(20, 21, 100))
	assert.Equal(t, booking.CodeResourceUnavailable, booking.CodeOf(err))

	require.NoError(t, svc.ClearOvenMaintenance(ctx, admin, oven.ID))
	c, err := svc.CreateBooking(ctx, alice, in(20, 21, 100))
	require.NoError(t, err)

	clk.Set(jan1.Add(22 * time.Hour))
	completed, err := svc.AutoCompleteBookings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	completed, err = svc.AutoCompleteBookings(ctx)
	require.NoError(t, err)
	assert.Zero(t, completed)

	history, err = svc.BookingHistory(ctx, alice, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.ActorSystem, history[1].ActorType)
	assert.Nil(t, history[1].ActorID)

	removed, err := svc.RemoveBooking(ctx, admin, c.ID)
	require.NoError(t, err)
	assert.True(t, removed.IsDeleted())

	visible, err := svc.ListBookings(ctx, admin, model.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, visible, 2)
	all, err := svc.ListBookings(ctx, admin, model.BookingFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	mine, err := svc.ListBookings(ctx, alice, model.BookingFilter{Statuses: []model.BookingStatus{model.StatusAutoCancelled}})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	assert.Equal(t, booking.CodeInvalidStateTransition, booking.CodeOf(svc.DeleteOven(ctx, admin, oven.ID)))
}

func TestRejectionRollsBack(t *testing.T) {
	db := openTestDB(t)
	svc, oven, _ := newEngine(t, db, jan1.Add(-time.Hour))
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(tx booking.Tx) error {
		b := &model.Booking{
			ID: "tmp", OwnerID: "alice", OvenID: oven.ID, StartDate: jan1, EndDate: jan1.Add(time.Hour),
			Purpose: "Drying", UsageTemp: 1, Status: model.StatusActive, CreatedAt: jan1, UpdatedAt: jan1,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		return &booking.Rejection{Code: booking.CodeOverlap, Reason: "late conflict"}
	})
	assert.Equal(t, booking.CodeOverlap, booking.CodeOf(err))

	list, err := svc.ListBookings(ctx, admin, model.BookingFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConcurrentCreatesOnSQLite(t *testing.T) {
	db := openTestDB(t)
	svc, oven, _ := newEngine(t, db, jan1.Add(-time.Hour))
	ctx := context.Background()

	const racers = 6
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := booking.Actor{ID: fmt.Sprintf("racer-%d", i), Role: model.RoleUser}
			_, err := svc.CreateBooking(ctx, actor, booking.BookingInput{
				OvenID: oven.ID, Start: jan1.Add(8 * time.Hour), End: jan1.Add(10 * time.Hour),
				Purpose: "Race", UsageTemp: 100,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, booking.CodeOverlap, booking.CodeOf(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	u := &model.User{ID: "u1", Name: "Ann", Email: "ann@lab.test", Role: model.RoleUser, Status: model.UserPending, CreatedAt: jan1, UpdatedAt: jan1}
	require.NoError(t, db.CreateUser(ctx, u))
	assert.Error(t, db.CreateUser(ctx, &model.User{ID: "u2", Email: "ann@lab.test", CreatedAt: jan1, UpdatedAt: jan1}))

	got, err := db.GetUserByEmail(ctx, "ANN@lab.test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ann", got.Name)
	assert.True(t, got.CreatedAt.Equal(jan1))

	got.Status = model.UserApproved
	got.UpdatedAt = jan1.Add(time.Hour)
	require.NoError(t, db.UpdateUser(ctx, got))

	approved, err := db.ListUsers(ctx, model.UserApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "u1", approved[0].ID)

	missing, err := db.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, db.UpdateUser(ctx, &model.User{ID: "nobody"}))
}

func TestAuditTableData(t *testing.T) {
	db := openTestDB(t)
	_, oven, _ := newEngine(t, db, jan1)
	ctx := context.Background()

	names, err := db.GetTableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, AuditTableNames, names)

	rows, columns, err := db.GetTableData(ctx, "ovens")
	require.NoError(t, err)
	assert.Contains(t, columns, "max_temp")
	require.Len(t, rows, 1)
	assert.Equal(t, "O1", rows[0]["name"])
	assert.EqualValues(t, oven.ID, rows[0]["id"])

	_, _, err = db.GetTableData(ctx, "sqlite_master")
	assert.ErrorContains(t, err, "invalid table name")
}

func TestSyncOvensFromConfig(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	cfg := &config.OvensConfig{Ovens: []config.OvenConfig{
		{ID: 3, Name: "Oven A", Type: "NON_AQUEOUS", MaxTemp: 250},
		{ID: 7, Name: "Oven B", Type: "AQUEOUS", MaxTemp: 120},
	}}

	n, err := SyncOvensFromConfig(ctx, db, cfg, jan1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = SyncOvensFromConfig(ctx, db, cfg, jan1)
	require.NoError(t, err)
	assert.Zero(t, n, "unchanged config is a no-op")

	svc := booking.NewService(db, nil, clock.NewFake(jan1), booking.DefaultRules())
	_, err = svc.SetOvenMaintenance(ctx, admin, 7)
	require.NoError(t, err)

	cfg.Ovens[1].MaxTemp = 130
	n, err = SyncOvensFromConfig(ctx, db, cfg, jan1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	oven, err := svc.GetOven(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 130, oven.MaxTemp)
	assert.Equal(t, model.OvenMaintenance, oven.Status, "sync keeps maintenance status")

	created, err := svc.CreateOven(ctx, admin, booking.OvenInput{Name: "Oven C", Type: model.OvenTypeAqueous, MaxTemp: 90})
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(7))

	_, err = SyncOvensFromConfig(ctx, db, nil, jan1)
	assert.Error(t, err)
}

func TestBackupService(t *testing.T) {
	db := openTestDB(t)
	dir := filepath.Join(t.TempDir(), "backups")
	svc := NewBackupService(db, config.BackupConfig{Enabled: true, Path: dir, RetentionDays: 3}, time.Hour, zerolog.Nop())

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	old := filepath.Join(dir, "backup_old.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups(time.Now()))
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}
