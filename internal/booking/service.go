package booking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ovenbook/internal/clock"
	"ovenbook/internal/events"
	"ovenbook/internal/metrics"
	"ovenbook/internal/model"
)

// Service is the booking lifecycle engine. Every mutating operation runs its
// validation reads and its writes inside a single store transaction; lifecycle
// events are published only after that transaction commits.
type Service struct {
	store     Store
	users     UserDirectory
	clock     clock.Clock
	rules     Rules
	publisher Publisher
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "booking").Logger()
	}
}

// WithPublisher sets the post-commit lifecycle publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService builds the engine. users may be nil, in which case the actor's
// approval is not looked up.
func NewService(store Store, users UserDirectory, clk clock.Clock, rules Rules, opts ...Option) *Service {
	if clk == nil {
		clk = clock.System()
	}
	s := &Service{
		store:  store,
		users:  users,
		clock:  clk,
		rules:  rules.withDefaults(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the effective policy.
func (s *Service) Rules() Rules {
	return s.rules
}

// outbox collects events to publish once the transaction commits.
type outbox struct {
	events []events.Event
}

func (o *outbox) add(e events.Event) {
	o.events = append(o.events, e)
}

// run executes fn inside one transaction and classifies the outcome.
func (s *Service) run(ctx context.Context, op string, fn func(tx Tx, box *outbox) error) error {
	var box outbox
	err := s.store.WithTransaction(ctx, func(tx Tx) error {
		box = outbox{}
		return fn(tx, &box)
	})
	if err != nil {
		if IsRejection(err) {
			metrics.IncRejected(op, string(CodeOf(err)))
			s.logger.Debug().Str("op", op).Str("code", string(CodeOf(err))).Str("reason", ReasonOf(err)).Msg("operation rejected")
			return err
		}
		metrics.IncStoreFailure(op)
		s.logger.Error().Err(err).Str("op", op).Msg("operation failed")
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, e := range box.events {
		if e.Record != nil {
			metrics.IncTransition(string(e.Record.EventType))
		}
		if s.publisher != nil {
			s.publisher.Publish(ctx, e)
		}
	}
	return nil
}

// rejectOutside records a rejection raised before any transaction is opened.
func (s *Service) rejectOutside(op string, err error) error {
	metrics.IncRejected(op, string(CodeOf(err)))
	s.logger.Debug().Str("op", op).Str("code", string(CodeOf(err))).Str("reason", ReasonOf(err)).Msg("operation rejected")
	return err
}

// appendEvent writes one lifecycle event for b and queues it for publication.
func (s *Service) appendEvent(
	ctx context.Context,
	tx Tx,
	box *outbox,
	b *model.Booking,
	actor Actor,
	eventType model.EventType,
	note string,
	payload any,
) error {
	record := &model.BookingEvent{
		ID:        uuid.NewString(),
		BookingID: b.ID,
		ActorID:   actor.actorID(),
		ActorType: actor.actorType(),
		EventType: eventType,
		Note:      note,
		CreatedAt: s.clock.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		record.Payload = raw
	}
	if err := tx.AppendEvent(ctx, record); err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	box.add(events.Event{
		Type:       events.TopicFor(eventType),
		Booking:    b.Clone(),
		Record:     record,
		OccurredAt: record.CreatedAt,
	})
	return nil
}

// loadBooking fetches a booking for mutation. Soft-deleted bookings are
// reported as not found unless allowDeleted is set.
func loadBooking(ctx context.Context, tx Tx, id string, allowDeleted bool) (*model.Booking, error) {
	if id == "" {
		return nil, reject(CodeNotFound, "booking not found")
	}
	b, err := tx.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", id, err)
	}
	if b == nil || (b.IsDeleted() && !allowDeleted) {
		return nil, reject(CodeNotFound, "booking not found")
	}
	return b, nil
}

func requireIdentity(actor Actor) error {
	if actor.ID == "" {
		return reject(CodeAuthorization, "you must be signed in")
	}
	return nil
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin() {
		return reject(CodeAuthorization, "admin role required")
	}
	return nil
}

// requireOwnerOrAdmin allows admins and the booking's owner.
func requireOwnerOrAdmin(actor Actor, b *model.Booking) error {
	if actor.IsAdmin() || (actor.ID != "" && b.OwnerID == actor.ID) {
		return nil
	}
	return reject(CodeAuthorization, "you can only manage your own bookings")
}

// authorizeBooker checks that the actor may place bookings.
func (s *Service) authorizeBooker(ctx context.Context, actor Actor) error {
	if err := requireIdentity(actor); err != nil {
		return err
	}
	if actor.IsAdmin() || s.users == nil {
		return nil
	}
	user, err := s.users.GetUser(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("get user %s: %w", actor.ID, err)
	}
	if user == nil || !user.CanBook() {
		return reject(CodeAuthorization, "your account is not approved for booking")
	}
	return nil
}

// checkOven enforces the oven availability and temperature ceiling.
func checkOven(ctx context.Context, tx Tx, ovenID int64, usageTemp int) (*model.Oven, error) {
	oven, err := tx.GetOven(ctx, ovenID)
	if err != nil {
		return nil, fmt.Errorf("get oven %d: %w", ovenID, err)
	}
	if oven == nil {
		return nil, reject(CodeResourceUnavailable, "oven %d does not exist", ovenID)
	}
	if !oven.Bookable() {
		return nil, reject(CodeResourceUnavailable, "oven %s is under maintenance", oven.Name)
	}
	if usageTemp > oven.MaxTemp {
		return nil, reject(CodeTemperatureExceeded, "usage temperature %d°C exceeds the maximum of %d°C for oven %s",
			usageTemp, oven.MaxTemp, oven.Name)
	}
	return oven, nil
}

// checkOverlap rejects when another active booking on the oven intersects
// [start, end).
func checkOverlap(ctx context.Context, tx Tx, oven *model.Oven, in BookingInput, excludeID string) error {
	clash, err := tx.FindOverlapping(ctx, oven.ID, in.Start, in.End, excludeID)
	if err != nil {
		return fmt.Errorf("find overlapping bookings: %w", err)
	}
	if clash != nil {
		return reject(CodeOverlap, "oven %s is already booked from %s to %s",
			oven.Name, clash.StartDate.Format(timeFormat), clash.EndDate.Format(timeFormat))
	}
	return nil
}

const timeFormat = "2006-01-02 15:04 MST"
