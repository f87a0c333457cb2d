package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type SlotRepository interface {
	Create(ctx context.Context, slot *domain.Slot) error
	GetByID(ctx context.Context, id int64) (*domain.Slot, error)
	ListByMentor(ctx context.Context, mentorID int64, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error)
	Close(ctx context.Context, id, mentorID int64) error
	Reserve(ctx context.Context, id, userID int64, notBefore, until time.Time) (*domain.Slot, error)
	Release(ctx context.Context, id, userID int64) (*domain.Slot, error)
	ReleaseExpired(ctx context.Context, now time.Time) ([]domain.Slot, error)
}

const slotColumns = `id, mentor_id, starts_at, ends_at, price, status, held_by, hold_expires_at, created_at, updated_at`

type PGSlotRepository struct {
	base
}

func NewSlotRepository(db DB, timeout time.Duration) SlotRepository {
	return &PGSlotRepository{base: newBase(db, timeout)}
}

func scanSlot(row scanner) (*domain.Slot, error) {
	var s domain.Slot
	if err := row.Scan(&s.ID, &s.MentorID, &s.StartsAt, &s.EndsAt, &s.Price, &s.Status, &s.HeldBy, &s.HoldExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts an AVAILABLE slot. The partial unique index on
// (mentor_id, starts_at) ignores CLOSED rows, so a closed slot can be
// reopened while a live one conflicts.
func (r *PGSlotRepository) Create(ctx context.Context, slot *domain.Slot) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	slot.Status = domain.SlotStatusAvailable
	err := r.db.QueryRow(ctx, `INSERT INTO slots (mentor_id, starts_at, ends_at, price, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mentor_id, starts_at) WHERE status <> 'CLOSED' DO NOTHING
		RETURNING id, created_at, updated_at`,
		slot.MentorID, slot.StartsAt, slot.EndsAt, slot.Price, slot.Status).
		Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSlotConflict
		}
		return dbError("create slot", err)
	}
	return nil
}

func (r *PGSlotRepository) GetByID(ctx context.Context, id int64) (*domain.Slot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	slot, err := scanSlot(r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("slot")
		}
		return nil, dbError("get slot", err)
	}
	return slot, nil
}

func (r *PGSlotRepository) ListByMentor(ctx context.Context, mentorID int64, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.db.Query(ctx, `SELECT `+slotColumns+` FROM slots
		WHERE mentor_id = $1 AND status = ANY($2) AND starts_at >= $3 AND starts_at < $4
		ORDER BY starts_at`, mentorID, names, from, to)
	if err != nil {
		return nil, dbError("list slots", err)
	}
	defer rows.Close()

	slots := make([]domain.Slot, 0)
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, dbError("scan slot", err)
		}
		slots = append(slots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list slots", err)
	}
	return slots, nil
}

// Close moves an AVAILABLE slot owned by mentorID to CLOSED. Any other
// state yields ErrInvalidState; callers check existence and ownership first.
func (r *PGSlotRepository) Close(ctx context.Context, id, mentorID int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.db.Exec(ctx, `UPDATE slots SET status = 'CLOSED', updated_at = now()
		WHERE id = $1 AND mentor_id = $2 AND status = 'AVAILABLE'`, id, mentorID)
	if err != nil {
		return dbError("close slot", err)
	}
	if res.RowsAffected() == 0 {
		return domain.InvalidState("slot %d is held or booked", id)
	}
	return nil
}

// Reserve is the single compare-and-swap AVAILABLE -> HELD. Zero rows means
// another caller won the race or the slot is not bookable any more.
func (r *PGSlotRepository) Reserve(ctx context.Context, id, userID int64, notBefore, until time.Time) (*domain.Slot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	slot, err := scanSlot(r.db.QueryRow(ctx, `UPDATE slots
		SET status = 'HELD', held_by = $2, hold_expires_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'AVAILABLE' AND starts_at >= $4
		RETURNING `+slotColumns, id, userID, until, notBefore))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSlotUnavailable.WithDetail("slotId", id)
		}
		return nil, dbError("reserve slot", err)
	}
	return slot, nil
}

// Release returns a slot held by userID to AVAILABLE. It returns nil when
// there was no such hold, which is not an error.
func (r *PGSlotRepository) Release(ctx context.Context, id, userID int64) (*domain.Slot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	slot, err := scanSlot(r.db.QueryRow(ctx, `UPDATE slots
		SET status = 'AVAILABLE', held_by = NULL, hold_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'HELD' AND held_by = $2
		RETURNING `+slotColumns, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("release slot", err)
	}
	return slot, nil
}

// ReleaseExpired frees every hold whose deadline passed and deletes the
// cart items that referenced them in the same statement. A checkout holding
// the row lock is waited for; the status predicate is re-evaluated after it
// commits, so converted holds are skipped.
func (r *PGSlotRepository) ReleaseExpired(ctx context.Context, now time.Time) ([]domain.Slot, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(ctx, `WITH expired AS (
			UPDATE slots
			SET status = 'AVAILABLE', held_by = NULL, hold_expires_at = NULL, updated_at = now()
			WHERE status = 'HELD' AND hold_expires_at <= $1
			RETURNING `+slotColumns+`
		), purged AS (
			DELETE FROM cart_items WHERE slot_id IN (SELECT id FROM expired)
		)
		SELECT `+slotColumns+` FROM expired`, now)
	if err != nil {
		return nil, dbError("release expired holds", err)
	}
	defer rows.Close()

	var released []domain.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, dbError("scan slot", err)
		}
		released = append(released, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("release expired holds", err)
	}
	return released, nil
}

var _ SlotRepository = (*PGSlotRepository)(nil)
