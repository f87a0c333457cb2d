package repository

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

// BookingFilter narrows List. Zero values match everything.
type BookingFilter struct {
	StudentID int64
	MentorID  int64
}

// NewBooking describes one mentor group of a checkout.
type NewBooking struct {
	StudentID int64
	MentorID  int64
	Status    domain.BookingStatus
	Items     []domain.CartItem
}

// CancelResult carries the updated booking and the slots whose status the
// cancellation changed.
type CancelResult struct {
	Booking *domain.Booking
	Slots   []domain.Slot
}

type BookingRepository interface {
	CreateFromHolds(ctx context.Context, nb NewBooking, now time.Time) (*domain.Booking, error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
	CancelItems(ctx context.Context, bookingID int64, itemIDs []int64, reopenFrom time.Time) (*CancelResult, error)
	Transition(ctx context.Context, bookingID int64, to domain.BookingStatus) (*domain.Booking, error)
}

const (
	bookingColumns = `id, student_id, mentor_id, total_price, status, created_at, updated_at`
	itemColumns    = `id, booking_id, slot_id, starts_at, ends_at, price, status`
)

type PGBookingRepository struct {
	base
}

func NewBookingRepository(db DB, timeout time.Duration) BookingRepository {
	return &PGBookingRepository{base: newBase(db, timeout)}
}

func scanBooking(row scanner) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.StudentID, &b.MentorID, &b.TotalPrice, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanItem(row scanner) (*domain.BookingItem, error) {
	var it domain.BookingItem
	if err := row.Scan(&it.ID, &it.BookingID, &it.SlotID, &it.StartsAt, &it.EndsAt, &it.Price, &it.Status); err != nil {
		return nil, err
	}
	return &it, nil
}

// CreateFromHolds converts the group's holds into a booking in a single
// transaction. Every slot must still be HELD by the student with an
// unexpired hold; otherwise nothing is written and ErrStaleCart names the
// offending cart items.
func (r *PGBookingRepository) CreateFromHolds(ctx context.Context, nb NewBooking, now time.Time) (*domain.Booking, error) {
	booking := &domain.Booking{
		StudentID: nb.StudentID,
		MentorID:  nb.MentorID,
		Status:    nb.Status,
		Items:     make([]domain.BookingItem, 0, len(nb.Items)),
	}

	err := r.inTx(ctx, "create booking", func(ctx context.Context, tx pgx.Tx) error {
		var stale []int64
		cartIDs := make([]int64, 0, len(nb.Items))
		for _, ci := range nb.Items {
			cartIDs = append(cartIDs, ci.ID)
			item := domain.BookingItem{SlotID: ci.SlotID, Status: nb.Status}
			err := tx.QueryRow(ctx, `UPDATE slots
				SET status = 'BOOKED', held_by = NULL, hold_expires_at = NULL, updated_at = now()
				WHERE id = $1 AND status = 'HELD' AND held_by = $2 AND hold_expires_at > $3
				RETURNING starts_at, ends_at, price`, ci.SlotID, nb.StudentID, now).
				Scan(&item.StartsAt, &item.EndsAt, &item.Price)
			if errors.Is(err, pgx.ErrNoRows) {
				stale = append(stale, ci.ID)
				continue
			}
			if err != nil {
				return dbError("book slot", err)
			}
			booking.TotalPrice += item.Price
			booking.Items = append(booking.Items, item)
		}
		if len(stale) > 0 {
			return domain.ErrStaleCart.WithDetail("cartItemIds", stale)
		}
		slices.SortFunc(booking.Items, func(a, b domain.BookingItem) int {
			return a.StartsAt.Compare(b.StartsAt)
		})

		if err := tx.QueryRow(ctx, `INSERT INTO bookings (student_id, mentor_id, total_price, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at, updated_at`,
			booking.StudentID, booking.MentorID, booking.TotalPrice, booking.Status).
			Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
			return dbError("insert booking", err)
		}

		for i := range booking.Items {
			it := &booking.Items[i]
			it.BookingID = booking.ID
			if err := tx.QueryRow(ctx, `INSERT INTO booking_items (booking_id, slot_id, starts_at, ends_at, price, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`, it.BookingID, it.SlotID, it.StartsAt, it.EndsAt, it.Price, it.Status).
				Scan(&it.ID); err != nil {
				return dbError("insert booking item", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id = ANY($1) AND user_id = $2`, cartIDs, nb.StudentID); err != nil {
			return dbError("consume cart items", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("booking")
		}
		return nil, dbError("get booking", err)
	}
	items, err := loadItems(ctx, r.db, []int64{b.ID})
	if err != nil {
		return nil, err
	}
	b.Items = items[b.ID]
	return b, nil
}

// List returns bookings newest first, each with its items.
func (r *PGBookingRepository) List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE ($1::bigint = 0 OR student_id = $1) AND ($2::bigint = 0 OR mentor_id = $2)
		ORDER BY created_at DESC, id DESC`, filter.StudentID, filter.MentorID)
	if err != nil {
		return nil, dbError("list bookings", err)
	}

	bookings := make([]domain.Booking, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, dbError("scan booking", err)
		}
		bookings = append(bookings, *b)
		ids = append(ids, b.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dbError("list bookings", err)
	}
	if len(ids) == 0 {
		return bookings, nil
	}

	items, err := loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Items = items[bookings[i].ID]
	}
	return bookings, nil
}

// CancelItems cancels the given items of a booking, or every active item
// when itemIDs is nil. The booking row is locked for the whole operation.
// Freed slots become AVAILABLE when they start at or after reopenFrom and
// CLOSED otherwise. The total is recomputed from the remaining items and
// the booking itself is cancelled once no active item is left.
func (r *PGBookingRepository) CancelItems(ctx context.Context, bookingID int64, itemIDs []int64, reopenFrom time.Time) (*CancelResult, error) {
	var result CancelResult

	err := r.inTx(ctx, "cancel booking items", func(ctx context.Context, tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFound("booking")
			}
			return dbError("lock booking", err)
		}
		if !b.Status.CanTransitionTo(domain.BookingStatusCancelled) {
			return domain.InvalidState("booking %d is %s", b.ID, b.Status)
		}

		rows, err := tx.Query(ctx, `UPDATE booking_items SET status = 'CANCELLED'
			WHERE booking_id = $1 AND status IN ('PENDING', 'CONFIRMED')
			AND ($2::bigint[] IS NULL OR id = ANY($2))
			RETURNING slot_id`, bookingID, itemIDs)
		if err != nil {
			return dbError("cancel items", err)
		}
		slotIDs := make([]int64, 0)
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return dbError("scan cancelled item", err)
			}
			slotIDs = append(slotIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return dbError("cancel items", err)
		}
		if len(slotIDs) == 0 {
			return domain.InvalidState("no active items to cancel in booking %d", bookingID)
		}

		rows, err = tx.Query(ctx, `UPDATE slots
			SET status = CASE WHEN starts_at >= $2 THEN 'AVAILABLE' ELSE 'CLOSED' END, updated_at = now()
			WHERE id = ANY($1) AND status = 'BOOKED'
			RETURNING `+slotColumns, slotIDs, reopenFrom)
		if err != nil {
			return dbError("free slots", err)
		}
		for rows.Next() {
			s, err := scanSlot(rows)
			if err != nil {
				rows.Close()
				return dbError("scan freed slot", err)
			}
			result.Slots = append(result.Slots, *s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return dbError("free slots", err)
		}

		b, err = scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET
			total_price = (SELECT COALESCE(SUM(price), 0) FROM booking_items WHERE booking_id = $1 AND status <> 'CANCELLED'),
			status = CASE WHEN EXISTS (SELECT 1 FROM booking_items WHERE booking_id = $1 AND status <> 'CANCELLED')
				THEN status ELSE 'CANCELLED' END,
			updated_at = now()
			WHERE id = $1
			RETURNING `+bookingColumns, bookingID))
		if err != nil {
			return dbError("recompute booking", err)
		}

		items, err := loadItems(ctx, tx, []int64{bookingID})
		if err != nil {
			return err
		}
		b.Items = items[bookingID]
		result.Booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Transition moves the booking and its active items to the target status
// when the status table allows it.
func (r *PGBookingRepository) Transition(ctx context.Context, bookingID int64, to domain.BookingStatus) (*domain.Booking, error) {
	var booking *domain.Booking

	err := r.inTx(ctx, "transition booking", func(ctx context.Context, tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFound("booking")
			}
			return dbError("lock booking", err)
		}
		if !b.Status.CanTransitionTo(to) {
			return domain.InvalidState("booking %d cannot move from %s to %s", b.ID, b.Status, to)
		}

		if _, err := tx.Exec(ctx, `UPDATE booking_items SET status = $2
			WHERE booking_id = $1 AND status = $3`, bookingID, to, b.Status); err != nil {
			return dbError("update items", err)
		}
		if err := tx.QueryRow(ctx, `UPDATE bookings SET status = $2, updated_at = now() WHERE id = $1 RETURNING updated_at`,
			bookingID, to).Scan(&b.UpdatedAt); err != nil {
			return dbError("update booking", err)
		}
		b.Status = to

		items, err := loadItems(ctx, tx, []int64{bookingID})
		if err != nil {
			return err
		}
		b.Items = items[bookingID]
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, bookingIDs []int64) (map[int64][]domain.BookingItem, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM booking_items
		WHERE booking_id = ANY($1) ORDER BY starts_at, id`, bookingIDs)
	if err != nil {
		return nil, dbError("load booking items", err)
	}
	defer rows.Close()

	out := make(map[int64][]domain.BookingItem, len(bookingIDs))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, dbError("scan booking item", err)
		}
		out[it.BookingID] = append(out[it.BookingID], *it)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("load booking items", err)
	}
	return out, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
