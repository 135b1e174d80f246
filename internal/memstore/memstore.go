// Package memstore is an in-memory booking store. Transactions are
// serialised by a mutex and operate on a private copy of the state that is
// swapped in only when the callback succeeds.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"ovenbook/internal/booking"
	"ovenbook/internal/model"
)

var (
	ErrDuplicate = errors.New("memstore: duplicate key")
	ErrNotFound  = errors.New("memstore: not found")
)

type state struct {
	ovens      map[int64]*model.Oven
	nextOvenID int64
	bookings   map[string]*model.Booking
	events     []*model.BookingEvent
}

func (s *state) clone() *state {
	c := &state{
		ovens:      make(map[int64]*model.Oven, len(s.ovens)),
		nextOvenID: s.nextOvenID,
		bookings:   make(map[string]*model.Booking, len(s.bookings)),
		events:     append([]*model.BookingEvent(nil), s.events...),
	}
	for id, o := range s.ovens {
		cp := *o
		c.ovens[id] = &cp
	}
	for id, b := range s.bookings {
		c.bookings[id] = b.Clone()
	}
	return c
}

// Store implements booking.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state

	usersMu sync.RWMutex
	users   map[string]*model.User
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state: &state{
			ovens:      make(map[int64]*model.Oven),
			nextOvenID: 1,
			bookings:   make(map[string]*model.Booking),
		},
		users: make(map[string]*model.User),
	}
}

// WithTransaction runs fn against a private copy of the state and commits it
// only when fn returns nil.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx booking.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Bookings returns a snapshot of every stored booking, including deleted ones.
func (s *Store) Bookings() []*model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Booking, 0, len(s.state.bookings))
	for _, b := range s.state.bookings {
		out = append(out, b.Clone())
	}
	sortBookings(out)
	return out
}

// Events returns a snapshot of the whole event log in append order.
func (s *Store) Events() []*model.BookingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.BookingEvent(nil), s.state.events...)
}

type tx struct {
	st *state
}

func (t *tx) GetOven(_ context.Context, id int64) (*model.Oven, error) {
	o, ok := t.st.ovens[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (t *tx) ListOvens(_ context.Context) ([]*model.Oven, error) {
	out := make([]*model.Oven, 0, len(t.st.ovens))
	for _, o := range t.st.ovens {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) InsertOven(_ context.Context, oven *model.Oven) error {
	for _, o := range t.st.ovens {
		if strings.EqualFold(o.Name, oven.Name) {
			return ErrDuplicate
		}
	}
	if oven.ID == 0 {
		oven.ID = t.st.nextOvenID
	}
	if _, exists := t.st.ovens[oven.ID]; exists {
		return ErrDuplicate
	}
	if oven.ID >= t.st.nextOvenID {
		t.st.nextOvenID = oven.ID + 1
	}
	cp := *oven
	t.st.ovens[oven.ID] = &cp
	return nil
}

func (t *tx) UpdateOven(_ context.Context, oven *model.Oven) error {
	if _, ok := t.st.ovens[oven.ID]; !ok {
		return ErrNotFound
	}
	cp := *oven
	t.st.ovens[oven.ID] = &cp
	return nil
}

func (t *tx) DeleteOven(_ context.Context, id int64) error {
	if _, ok := t.st.ovens[id]; !ok {
		return ErrNotFound
	}
	delete(t.st.ovens, id)
	return nil
}

func (t *tx) CountOvenBookings(_ context.Context, ovenID int64) (int, error) {
	n := 0
	for _, b := range t.st.bookings {
		if b.OvenID == ovenID {
			n++
		}
	}
	return n, nil
}

func (t *tx) GetBooking(_ context.Context, id string) (*model.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (t *tx) CountActiveBookings(_ context.Context, ownerID string) (int, error) {
	n := 0
	for _, b := range t.st.bookings {
		if b.OwnerID == ownerID && b.IsActive() {
			n++
		}
	}
	return n, nil
}

func (t *tx) FindOverlapping(_ context.Context, ovenID int64, start, end time.Time, excludeID string) (*model.Booking, error) {
	var hits []*model.Booking
	for _, b := range t.st.bookings {
		if b.OvenID == ovenID && b.ID != excludeID && b.IsActive() && b.Overlaps(start, end) {
			hits = append(hits, b)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}
	sortBookings(hits)
	return hits[0].Clone(), nil
}

func (t *tx) ListActiveOnOven(_ context.Context, ovenID int64) ([]*model.Booking, error) {
	return t.collect(func(b *model.Booking) bool {
		return b.OvenID == ovenID && b.IsActive()
	}, 0), nil
}

func (t *tx) ListActiveEndedBefore(_ context.Context, cutoff time.Time) ([]*model.Booking, error) {
	return t.collect(func(b *model.Booking) bool {
		return b.IsActive() && b.EndDate.Before(cutoff)
	}, 0), nil
}

func (t *tx) ListBookings(_ context.Context, filter model.BookingFilter) ([]*model.Booking, error) {
	return t.collect(filter.Matches, filter.Limit), nil
}

func (t *tx) InsertBooking(_ context.Context, b *model.Booking) error {
	if _, exists := t.st.bookings[b.ID]; exists {
		return ErrDuplicate
	}
	if _, ok := t.st.ovens[b.OvenID]; !ok {
		return ErrNotFound
	}
	t.st.bookings[b.ID] = b.Clone()
	return nil
}

func (t *tx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.st.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	t.st.bookings[b.ID] = b.Clone()
	return nil
}

func (t *tx) AppendEvent(_ context.Context, e *model.BookingEvent) error {
	if _, ok := t.st.bookings[e.BookingID]; !ok {
		return ErrNotFound
	}
	cp := *e
	t.st.events = append(t.st.events, &cp)
	return nil
}

func (t *tx) ListEvents(_ context.Context, bookingID string) ([]*model.BookingEvent, error) {
	var out []*model.BookingEvent
	for _, e := range t.st.events {
		if e.BookingID == bookingID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *tx) collect(keep func(*model.Booking) bool, limit int) []*model.Booking {
	var out []*model.Booking
	for _, b := range t.st.bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sortBookings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortBookings(list []*model.Booking) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartDate.Equal(list[j].StartDate) {
			return list[i].StartDate.Before(list[j].StartDate)
		}
		return list[i].ID < list[j].ID
	})
}
