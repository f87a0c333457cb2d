package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled, BookingStatusCompleted},
}

// CanTransitionTo reports whether moving from s to next is legal. The same
// table governs bookings and their items.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active is true for statuses that still hold a slot.
func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type Booking struct {
	ID         int64
	StudentID  int64
	MentorID   int64
	TotalPrice int64
	Status     BookingStatus
	Items      []BookingItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type BookingItem struct {
	ID        int64
	BookingID int64
	SlotID    int64
	StartsAt  time.Time
	EndsAt    time.Time
	Price     int64
	Status    BookingStatus
}

// ActiveTotal sums the prices of the items that are not cancelled.
func (b *Booking) ActiveTotal() int64 {
	var total int64
	for _, it := range b.Items {
		if it.Status != BookingStatusCancelled {
			total += it.Price
		}
	}
	return total
}

// CanBeSeenBy reports whether actor is a party of the booking or an admin.
func (b *Booking) CanBeSeenBy(actor Actor) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.Role == RoleUser:
		return actor.ID == b.StudentID
	case actor.Role == RoleMentor:
		return actor.ID == b.MentorID
	}
	return false
}

// CheckoutGroup is the outcome of converting one mentor's cart items.
type CheckoutGroup struct {
	MentorID    int64
	CartItemIDs []int64
	Booking     *Booking
	Err         error
}

type CheckoutResult struct {
	Groups []CheckoutGroup
}

func (r CheckoutResult) Bookings() []Booking {
	out := make([]Booking, 0, len(r.Groups))
	for _, g := range r.Groups {
		if g.Booking != nil {
			out = append(out, *g.Booking)
		}
	}
	return out
}

func (r CheckoutResult) Failed() int {
	n := 0
	for _, g := range r.Groups {
		if g.Err != nil {
			n++
		}
	}
	return n
}

func (r CheckoutResult) Partial() bool {
	failed := r.Failed()
	return failed > 0 && failed < len(r.Groups)
}
