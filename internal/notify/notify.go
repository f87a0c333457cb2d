package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/kafka"
	"go.uber.org/zap"
)

// Message is one rendered notification.
type Message struct {
	RecipientID int64
	Role        string
	Subject     string
	Body        string
}

type Sender struct {
	logger   *zap.Logger
	location *time.Location
}

func NewSender(logger *zap.Logger, location *time.Location) *Sender {
	if location == nil {
		location = time.UTC
	}
	return &Sender{logger: logger, location: location}
}

// Send delivers the mentor and student messages for event. Delivery is a
// structured log line; a transport can be plugged in behind Deliver later.
func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	for _, msg := range s.Render(event) {
		s.Deliver(ctx, msg)
	}
	return nil
}

func (s *Sender) Deliver(_ context.Context, msg Message) {
	s.logger.Info("notification",
		zap.Int64("recipient_id", msg.RecipientID),
		zap.String("role", msg.Role),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
}

// Render builds one message for the mentor and one for the student.
func (s *Sender) Render(event kafka.BookingEvent) []Message {
	sessions := s.sessions(event.Items)

	var mentorSubject, studentSubject string
	switch event.Type {
	case kafka.EventBookingCreated:
		mentorSubject = fmt.Sprintf("New booking #%d", event.BookingID)
		studentSubject = fmt.Sprintf("Booking #%d is %s", event.BookingID, strings.ToLower(event.Status))
	case kafka.EventBookingConfirmed:
		mentorSubject = fmt.Sprintf("Booking #%d confirmed", event.BookingID)
		studentSubject = mentorSubject
	case kafka.EventBookingItemCancelled:
		mentorSubject = fmt.Sprintf("A session of booking #%d was cancelled", event.BookingID)
		studentSubject = mentorSubject
	case kafka.EventBookingCancelled:
		mentorSubject = fmt.Sprintf("Booking #%d was cancelled", event.BookingID)
		studentSubject = mentorSubject
	case kafka.EventBookingCompleted:
		mentorSubject = fmt.Sprintf("Booking #%d completed", event.BookingID)
		studentSubject = mentorSubject
	default:
		mentorSubject = fmt.Sprintf("Booking #%d updated", event.BookingID)
		studentSubject = mentorSubject
	}

	return []Message{
		{
			RecipientID: event.MentorID,
			Role:        "MENTOR",
			Subject:     mentorSubject,
			Body:        fmt.Sprintf("Student %d. Sessions: %s. Total %d.", event.StudentID, sessions, event.TotalPrice),
		},
		{
			RecipientID: event.StudentID,
			Role:        "USER",
			Subject:     studentSubject,
			Body:        fmt.Sprintf("Mentor %d. Sessions: %s. Total %d.", event.MentorID, sessions, event.TotalPrice),
		},
	}
}

func (s *Sender) sessions(items []kafka.BookingEventItem) string {
	if len(items) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s-%s (%s)",
			it.StartsAt.In(s.location).Format("2006-01-02 15:04"),
			it.EndsAt.In(s.location).Format("15:04"),
			it.Status))
	}
	return strings.Join(parts, ", ")
}
