package domain

import (
	"time"
)

type SlotStatus string

const (
	SlotStatusClosed    SlotStatus = "CLOSED"
	SlotStatusAvailable SlotStatus = "AVAILABLE"
	SlotStatusHeld      SlotStatus = "HELD"
	SlotStatusBooked    SlotStatus = "BOOKED"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Slot struct {
	ID            int64
	MentorID      int64
	StartsAt      time.Time
	EndsAt        time.Time
	Price         int64
	Status        SlotStatus
	HeldBy        *int64
	HoldExpiresAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HeldByAt reports whether the slot is currently held by userID and the
// hold has not expired at now.
func (s *Slot) HeldByAt(userID int64, now time.Time) bool {
	if s.Status != SlotStatusHeld || s.HeldBy == nil || *s.HeldBy != userID {
		return false
	}
	return s.HoldExpiresAt != nil && s.HoldExpiresAt.After(now)
}

// OperatingWindow bounds the part of the day a mentor accepts sessions,
// in minutes from local midnight. End is exclusive.
type OperatingWindow struct {
	StartMinute int
	EndMinute   int
}

type MentorProfile struct {
	ID         int64
	CategoryID *int64
	Price      int64
	Window     OperatingWindow
}

// SlotRules holds the calendar constraints every slot must satisfy.
type SlotRules struct {
	Length   time.Duration
	LeadTime time.Duration
	Location *time.Location
}

func (r SlotRules) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// ParseStart combines a calendar date and a wall clock time into the
// slot's start instant in the rules' timezone.
func (r SlotRules) ParseStart(date, clock string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, r.location())
	if err != nil {
		return time.Time{}, Validation("date must be YYYY-MM-DD and startTime HH:MM")
	}
	return t, nil
}

// ParseDay returns the [start, end) range of a calendar day.
func (r SlotRules) ParseDay(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, r.location())
	if err != nil {
		return time.Time{}, time.Time{}, Validation("date must be YYYY-MM-DD")
	}
	return day, day.AddDate(0, 0, 1), nil
}

// CheckLeadTime accepts a start exactly LeadTime after now.
func (r SlotRules) CheckLeadTime(startsAt, now time.Time) error {
	if startsAt.Before(now.Add(r.LeadTime)) {
		return ErrLeadTimeViolation.WithDetail("earliest", now.Add(r.LeadTime).In(r.location()).Format(time.RFC3339))
	}
	return nil
}

// CheckGrid verifies the start is aligned to the slot length and that the
// whole slot lies inside the operating window.
func (r SlotRules) CheckGrid(startsAt time.Time, w OperatingWindow) error {
	local := startsAt.In(r.location())
	minute := local.Hour()*60 + local.Minute()
	step := int(r.Length / time.Minute)
	if step <= 0 || local.Second() != 0 || local.Nanosecond() != 0 || minute%step != 0 {
		return Validation("startTime must align to a %d-minute grid", step)
	}
	if minute < w.StartMinute || minute+step > w.EndMinute {
		return Validation("startTime outside of mentor operating window %s-%s",
			formatMinute(w.StartMinute), formatMinute(w.EndMinute))
	}
	return nil
}

// Day formats the slot's calendar day in the rules' timezone.
func (r SlotRules) Day(t time.Time) string {
	return t.In(r.location()).Format(DateLayout)
}

func (r SlotRules) Clock(t time.Time) string {
	return t.In(r.location()).Format(ClockLayout)
}

func formatMinute(m int) string {
	if m >= 24*60 {
		return "24:00"
	}
	return time.Date(0, 1, 1, m/60, m%60, 0, 0, time.UTC).Format(ClockLayout)
}
