// internal/notify/notify.go
//
// Outbound notifications for the trial funnel.
//
// Context
//   A trial assignment triggers one message to the parent.  Delivery is
//   fire-and-forget from the funnel's point of view: the caller logs a
//   failure and moves on, the transition itself is already committed.
//
//   The Queue interface is the seam for a real transport (SMTP relay, SMS
//   gateway, NATS).  LogQueue writes the payload to the structured log so
//   development and tests run without one.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yanizio/sportcrm/internal/trial"
)

// Message is one outbound notification.
type Message struct {
	To      string
	From    string
	Subject string
	Text    string
}

// Queue accepts messages for delivery.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// LogQueue logs the payload and returns nil.
type LogQueue struct {
	Log *zap.SugaredLogger
}

// Enqueue implements Queue.
func (q LogQueue) Enqueue(_ context.Context, msg Message) error {
	l := q.Log
	if l == nil {
		l = zap.S()
	}
	l.Infow("notification queued",
		"to", msg.To, "subject", msg.Subject, "len", len(msg.Text))
	return nil
}

// ErrNoRecipient is returned when a request has no contact to notify.
var ErrNoRecipient = errors.New("notify: request has no parent phone")

// Notifier turns funnel events into messages.
type Notifier interface {
	TrialAssigned(ctx context.Context, r trial.Request) error
}

// Service is the default Notifier.
type Service struct {
	q       Queue
	from    string
	enabled bool
}

// New returns a Service.  A disabled Service accepts every event and sends
// nothing.
func New(q Queue, from string, enabled bool) *Service {
	if q == nil {
		q = LogQueue{}
	}
	return &Service{q: q, from: from, enabled: enabled}
}

// TrialAssigned tells the parent when the trial lesson is.
func (s *Service) TrialAssigned(ctx context.Context, r trial.Request) error {
	if !s.enabled {
		return nil
	}
	if strings.TrimSpace(r.ParentPhone) == "" {
		return ErrNoRecipient
	}
	if r.ScheduledDate == nil {
		return fmt.Errorf("notify: request %d has no scheduled date", r.ID)
	}
	msg := Message{
		To:      r.ParentPhone,
		From:    s.from,
		Subject: "Trial lesson scheduled",
		Text: fmt.Sprintf("Hello %s, %s's trial lesson is booked for %s.",
			r.ParentName, r.ChildName, r.ScheduledDate.Format("02.01.2006 15:04")),
	}
	if err := s.q.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("notify request %d: %w", r.ID, err)
	}
	return nil
}
