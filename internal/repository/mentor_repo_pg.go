package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/jackc/pgx/v5"
)

// MentorRecord is the stored mentor configuration. Nil fields fall back to
// service-level defaults.
type MentorRecord struct {
	ID          int64
	CategoryID  *int64
	Price       *int64
	WindowStart *int32
	WindowEnd   *int32
}

// Profile resolves the record against the defaults.
func (m MentorRecord) Profile(defaultPrice int64, defaultWindow domain.OperatingWindow) domain.MentorProfile {
	p := domain.MentorProfile{
		ID:         m.ID,
		CategoryID: m.CategoryID,
		Price:      defaultPrice,
		Window:     defaultWindow,
	}
	if m.Price != nil {
		p.Price = *m.Price
	}
	if m.WindowStart != nil {
		p.Window.StartMinute = int(*m.WindowStart)
	}
	if m.WindowEnd != nil {
		p.Window.EndMinute = int(*m.WindowEnd)
	}
	return p
}

type MentorRepository interface {
	Get(ctx context.Context, id int64) (*MentorRecord, error)
}

type PGMentorRepository struct {
	base
}

func NewMentorRepository(db DB, timeout time.Duration) MentorRepository {
	return &PGMentorRepository{base: newBase(db, timeout)}
}

// Get loads a mentor with its effective price: the mentor's override, else
// the category price, else nil.
func (r *PGMentorRepository) Get(ctx context.Context, id int64) (*MentorRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var m MentorRecord
	err := r.db.QueryRow(ctx, `SELECT m.id, m.category_id, COALESCE(m.price_override, c.slot_price), m.window_start, m.window_end
		FROM mentors m
		LEFT JOIN categories c ON c.id = m.category_id
		WHERE m.id = $1`, id).
		Scan(&m.ID, &m.CategoryID, &m.Price, &m.WindowStart, &m.WindowEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("mentor")
		}
		return nil, dbError("get mentor", err)
	}
	return &m, nil
}

var _ MentorRepository = (*PGMentorRepository)(nil)
