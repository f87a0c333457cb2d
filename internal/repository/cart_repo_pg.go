package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type CartRepository interface {
	Create(ctx context.Context, item *domain.CartItem) error
	GetByID(ctx context.Context, id int64) (*domain.CartItem, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.CartItem, error)
	Delete(ctx context.Context, id, userID int64) error
	DeleteByUser(ctx context.Context, userID int64) ([]domain.CartItem, error)
}

const cartColumns = `id, user_id, slot_id, mentor_id, starts_at, ends_at, price, held_at, expires_at`

type PGCartRepository struct {
	base
}

func NewCartRepository(db DB, timeout time.Duration) CartRepository {
	return &PGCartRepository{base: newBase(db, timeout)}
}

func scanCartItem(row scanner) (*domain.CartItem, error) {
	var it domain.CartItem
	if err := row.Scan(&it.ID, &it.UserID, &it.SlotID, &it.MentorID, &it.StartsAt, &it.EndsAt, &it.Price, &it.HeldAt, &it.ExpiresAt); err != nil {
		return nil, err
	}
	return &it, nil
}

// Create stores a cart line for a slot the user already holds. slot_id is
// unique, so a second line for the same slot is rejected.
func (r *PGCartRepository) Create(ctx context.Context, item *domain.CartItem) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.db.QueryRow(ctx, `INSERT INTO cart_items (user_id, slot_id, mentor_id, starts_at, ends_at, price, held_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		item.UserID, item.SlotID, item.MentorID, item.StartsAt, item.EndsAt, item.Price, item.HeldAt, item.ExpiresAt).
		Scan(&item.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSlotUnavailable.WithDetail("slotId", item.SlotID)
		}
		return dbError("create cart item", err)
	}
	return nil
}

func (r *PGCartRepository) GetByID(ctx context.Context, id int64) (*domain.CartItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	item, err := scanCartItem(r.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM cart_items WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("cart item")
		}
		return nil, dbError("get cart item", err)
	}
	return item, nil
}

func (r *PGCartRepository) ListByUser(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `SELECT `+cartColumns+` FROM cart_items WHERE user_id = $1 ORDER BY starts_at, id`, userID)
	if err != nil {
		return nil, dbError("list cart", err)
	}
	return collectCartItems(rows, "list cart")
}

func (r *PGCartRepository) Delete(ctx context.Context, id, userID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return dbError("delete cart item", err)
	}
	if res.RowsAffected() == 0 {
		return domain.NotFound("cart item")
	}
	return nil
}

// DeleteByUser empties the cart and returns the removed lines so their
// holds can be released.
func (r *PGCartRepository) DeleteByUser(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `DELETE FROM cart_items WHERE user_id = $1 RETURNING `+cartColumns, userID)
	if err != nil {
		return nil, dbError("clear cart", err)
	}
	return collectCartItems(rows, "clear cart")
}

func collectCartItems(rows pgx.Rows, op string) ([]domain.CartItem, error) {
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return items, nil
}

var _ CartRepository = (*PGCartRepository)(nil)
