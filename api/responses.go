package api

import (
	"errors"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/service/cart"
)

type slotResponse struct {
	ID            int64      `json:"id"`
	MentorID      int64      `json:"mentorId"`
	StartsAt      time.Time  `json:"startsAt"`
	EndsAt        time.Time  `json:"endsAt"`
	Price         int64      `json:"price"`
	Status        string     `json:"status"`
	HoldExpiresAt *time.Time `json:"holdExpiresAt,omitempty"`
}

func newSlotResponse(s domain.Slot) slotResponse {
	return slotResponse{
		ID:            s.ID,
		MentorID:      s.MentorID,
		StartsAt:      s.StartsAt,
		EndsAt:        s.EndsAt,
		Price:         s.Price,
		Status:        string(s.Status),
		HoldExpiresAt: s.HoldExpiresAt,
	}
}

func newSlotsResponse(slots []domain.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, newSlotResponse(s))
	}
	return out
}

type cartItemResponse struct {
	ID        int64      `json:"id"`
	SlotID    int64      `json:"slotId"`
	MentorID  int64      `json:"mentorId"`
	StartsAt  time.Time  `json:"startsAt"`
	EndsAt    time.Time  `json:"endsAt"`
	Price     int64      `json:"price"`
	HeldAt    time.Time  `json:"heldAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func newCartItemResponse(it domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ID:        it.ID,
		SlotID:    it.SlotID,
		MentorID:  it.MentorID,
		StartsAt:  it.StartsAt,
		EndsAt:    it.EndsAt,
		Price:     it.Price,
		HeldAt:    it.HeldAt,
		ExpiresAt: it.ExpiresAt,
	}
}

type cartResponse struct {
	Items      []cartItemResponse `json:"items"`
	TotalItems int                `json:"totalItems"`
	TotalPrice int64              `json:"totalPrice"`
}

func newCartResponse(c *domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, newCartItemResponse(it))
	}
	return cartResponse{Items: items, TotalItems: c.TotalItems, TotalPrice: c.TotalPrice}
}

type clearCartResponse struct {
	DeletedCount   int     `json:"deletedCount"`
	FailedReleases []int64 `json:"failedReleases,omitempty"`
}

func newClearCartResponse(r *cart.ClearResult) clearCartResponse {
	return clearCartResponse{DeletedCount: r.DeletedCount, FailedReleases: r.FailedReleases}
}

type bookingItemResponse struct {
	ID       int64     `json:"id"`
	SlotID   int64     `json:"slotId"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	Price    int64     `json:"price"`
	Status   string    `json:"status"`
}

type bookingResponse struct {
	ID         int64                 `json:"id"`
	StudentID  int64                 `json:"studentId"`
	MentorID   int64                 `json:"mentorId"`
	TotalPrice int64                 `json:"totalPrice"`
	Status     string                `json:"status"`
	Items      []bookingItemResponse `json:"items"`
	CreatedAt  time.Time             `json:"createdAt"`
}

func newBookingResponse(b domain.Booking) bookingResponse {
	items := make([]bookingItemResponse, 0, len(b.Items))
	for _, it := range b.Items {
		items = append(items, bookingItemResponse{
			ID:       it.ID,
			SlotID:   it.SlotID,
			StartsAt: it.StartsAt,
			EndsAt:   it.EndsAt,
			Price:    it.Price,
			Status:   string(it.Status),
		})
	}
	return bookingResponse{
		ID:         b.ID,
		StudentID:  b.StudentID,
		MentorID:   b.MentorID,
		TotalPrice: b.TotalPrice,
		Status:     string(b.Status),
		Items:      items,
		CreatedAt:  b.CreatedAt,
	}
}

func newBookingsResponse(bookings []domain.Booking) []bookingResponse {
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, newBookingResponse(b))
	}
	return out
}

type groupResponse struct {
	MentorID    int64          `json:"mentorId"`
	CartItemIDs []int64        `json:"cartItemIds"`
	BookingID   *int64         `json:"bookingId,omitempty"`
	Error       *errorResponse `json:"error,omitempty"`
}

type checkoutResponse struct {
	Bookings []bookingResponse `json:"bookings"`
	Groups   []groupResponse   `json:"groups"`
}

func newCheckoutResponse(r *domain.CheckoutResult) checkoutResponse {
	groups := make([]groupResponse, 0, len(r.Groups))
	for _, g := range r.Groups {
		out := groupResponse{MentorID: g.MentorID, CartItemIDs: g.CartItemIDs}
		if g.Booking != nil {
			id := g.Booking.ID
			out.BookingID = &id
		}
		if g.Err != nil {
			out.Error = groupError(g.Err)
		}
		groups = append(groups, out)
	}
	return checkoutResponse{Bookings: newBookingsResponse(r.Bookings()), Groups: groups}
}

func groupError(err error) *errorResponse {
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return &errorResponse{Error: domainErr.Message, Code: domainErr.Code, Details: domainErr.Details}
	}
	return &errorResponse{Error: "internal error", Code: codeInternal}
}
