package domain

import "time"

type CartItem struct {
	ID        int64
	UserID    int64
	SlotID    int64
	MentorID  int64
	StartsAt  time.Time
	EndsAt    time.Time
	Price     int64
	HeldAt    time.Time
	ExpiresAt *time.Time
}

func (c *CartItem) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

type Cart struct {
	Items      []CartItem
	TotalItems int
	TotalPrice int64
}

// NewCart builds the cart view, dropping items whose hold expired at now.
func NewCart(items []CartItem, now time.Time) Cart {
	cart := Cart{Items: make([]CartItem, 0, len(items))}
	for _, it := range items {
		if it.ExpiredAt(now) {
			continue
		}
		cart.Items = append(cart.Items, it)
		cart.TotalPrice += it.Price
	}
	cart.TotalItems = len(cart.Items)
	return cart
}
