// Package notify tells booking owners about changes they did not make
// themselves: admin cancellations, removals, maintenance auto-cancels and
// automatic completion.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"ovenbook/internal/events"
	"ovenbook/internal/metrics"
	"ovenbook/internal/model"
)

const timeLayout = "2006-01-02 15:04"

// Message is one outgoing notification.
type Message struct {
	From      string
	To        string
	Subject   string
	Body      string
	BookingID string
	Topic     string
}

// Sender delivers a message (e-mail gateway, chat bot, console).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes notifications to the log.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notify.log").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("booking_id", msg.BookingID).
		Msg(msg.Body)
	return nil
}

// UserLookup resolves booking owners.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// OvenLookup resolves oven names for message text.
type OvenLookup interface {
	GetOven(ctx context.Context, id int64) (*model.Oven, error)
}

const defaultQueueSize = 256

type Config struct {
	From string
	// Interval is the minimum spacing between sends. Messages that arrive
	// faster wait in the queue.
	Interval  time.Duration
	QueueSize int
}

// Notifier queues messages from bus handlers and delivers them from Run at
// the configured rate.
type Notifier struct {
	sender  Sender
	users   UserLookup
	ovens   OvenLookup
	from    string
	limiter *rate.Limiter
	queue   chan Message
	logger  zerolog.Logger
}

func NewNotifier(sender Sender, users UserLookup, ovens OvenLookup, cfg Config, logger zerolog.Logger) *Notifier {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	n := &Notifier{
		sender: sender,
		users:  users,
		ovens:  ovens,
		from:   cfg.From,
		queue:  make(chan Message, size),
		logger: logger.With().Str("component", "notify").Logger(),
	}
	if cfg.Interval > 0 {
		n.limiter = rate.NewLimiter(rate.Every(cfg.Interval), 5)
	}
	return n
}

// Subscribe registers the notifier on the topics it reacts to.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	for _, topic := range []string{
		events.TopicCancelled,
		events.TopicAutoCancelled,
		events.TopicRemoved,
		events.TopicCompleted,
	} {
		bus.Subscribe(topic, n.HandleEvent)
	}
}

// HandleEvent queues a notification for e when the owner did not cause it.
// It blocks only while the queue is full.
func (n *Notifier) HandleEvent(ctx context.Context, e events.Event) error {
	if e.Booking == nil || e.Record == nil {
		return nil
	}
	if e.Record.ActorID != nil && *e.Record.ActorID == e.Booking.OwnerID {
		return nil
	}

	owner, err := n.users.GetUser(ctx, e.Booking.OwnerID)
	if err != nil {
		metrics.IncNotification("failed")
		return fmt.Errorf("loading owner: %w", err)
	}
	if owner == nil || owner.Email == "" {
		metrics.IncNotification("skipped")
		return nil
	}

	ovenName := fmt.Sprintf("oven #%d", e.Booking.OvenID)
	if n.ovens != nil {
		if oven, err := n.ovens.GetOven(ctx, e.Booking.OvenID); err == nil && oven != nil {
			ovenName = oven.Name
		}
	}

	msg, ok := BuildMessage(e, owner, ovenName)
	if !ok {
		return nil
	}
	msg.From = n.from

	select {
	case n.queue <- msg:
		metrics.IncNotification("queued")
		return nil
	case <-ctx.Done():
		metrics.IncNotification("failed")
		return fmt.Errorf("queueing notification: %w", ctx.Err())
	}
}

// Run delivers queued messages until ctx is cancelled, waiting on the rate
// limiter before each send.
func (n *Notifier) Run(ctx context.Context) {
	n.logger.Info().Int("queue_size", cap(n.queue)).Msg("Notifier started")
	for {
		select {
		case <-ctx.Done():
			if left := len(n.queue); left > 0 {
				n.logger.Warn().Int("pending", left).Msg("Notifier stopped with undelivered messages")
			}
			return
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg Message) {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			metrics.IncNotification("failed")
			n.logger.Warn().Err(err).Str("booking_id", msg.BookingID).Msg("notification not sent")
			return
		}
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		metrics.IncNotification("failed")
		n.logger.Error().Err(err).Str("booking_id", msg.BookingID).Str("to", msg.To).Msg("sending notification")
		return
	}
	metrics.IncNotification("sent")
}

// BuildMessage renders the notification for a lifecycle event. It returns
// false for topics that do not notify.
func BuildMessage(e events.Event, owner *model.User, ovenName string) (Message, bool) {
	b := e.Booking
	var subject, what string
	switch e.Type {
	case events.TopicCancelled:
		subject, what = "Booking cancelled", "was cancelled by an administrator"
	case events.TopicAutoCancelled:
		subject, what = "Booking cancelled for maintenance", "was cancelled because the oven is under maintenance"
	case events.TopicRemoved:
		subject, what = "Booking removed", "was removed by an administrator"
	case events.TopicCompleted:
		subject, what = "Booking completed", "has been completed"
	default:
		return Message{}, false
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s, your booking of %s from %s to %s %s.",
		owner.Name, ovenName,
		b.StartDate.UTC().Format(timeLayout), b.EndDate.UTC().Format(timeLayout), what)
	if b.CancelReason != nil && *b.CancelReason != "" && e.Type != events.TopicCompleted {
		fmt.Fprintf(&body, " Reason: %s.", *b.CancelReason)
	}

	return Message{
		To:        owner.Email,
		Subject:   subject,
		Body:      body.String(),
		BookingID: b.ID,
		Topic:     e.Type,
	}, true
}
