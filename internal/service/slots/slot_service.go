package slots

import (
	"context"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/repository"
	"go.uber.org/zap"
)

type SlotUseCase interface {
	OpenSlot(ctx context.Context, actor domain.Actor, date, startTime string) (*domain.Slot, error)
	CloseSlot(ctx context.Context, actor domain.Actor, slotID int64) (*domain.Slot, error)
	Get(ctx context.Context, slotID int64) (*domain.Slot, error)
	ReserveForCart(ctx context.Context, slotID, userID int64) (*domain.Slot, error)
	ReleaseHold(ctx context.Context, slotID, userID int64) error
	SweepExpiredHolds(ctx context.Context) ([]domain.Slot, error)
	ListAvailable(ctx context.Context, mentorID int64, date string) ([]domain.Slot, error)
	ListMentorSlots(ctx context.Context, actor domain.Actor, date string) ([]domain.Slot, error)
}

// Cache keeps per mentor and day listings of AVAILABLE slots.
type Cache interface {
	GetAvailableSlots(ctx context.Context, mentorID int64, day string) ([]domain.Slot, error)
	SetAvailableSlots(ctx context.Context, mentorID int64, day string, slots []domain.Slot) error
	InvalidateSlots(ctx context.Context, mentorID int64, day string) error
}

type SlotService struct {
	slots         repository.SlotRepository
	mentors       repository.MentorRepository
	cache         Cache
	rules         domain.SlotRules
	holdTTL       time.Duration
	defaultPrice  int64
	defaultWindow domain.OperatingWindow
	logger        *zap.Logger
	now           func() time.Time
}

type SlotServiceOption func(*SlotService)

func WithCache(cache Cache) SlotServiceOption {
	return func(s *SlotService) {
		s.cache = cache
	}
}

func WithClock(now func() time.Time) SlotServiceOption {
	return func(s *SlotService) {
		s.now = now
	}
}

// WithMentorDefaults sets the price and operating window used when a mentor
// has none configured.
func WithMentorDefaults(price int64, window domain.OperatingWindow) SlotServiceOption {
	return func(s *SlotService) {
		s.defaultPrice = price
		s.defaultWindow = window
	}
}

func NewSlotService(
	slots repository.SlotRepository,
	mentors repository.MentorRepository,
	rules domain.SlotRules,
	holdTTL time.Duration,
	logger *zap.Logger,
	opts ...SlotServiceOption,
) *SlotService {
	service := &SlotService{
		slots:         slots,
		mentors:       mentors,
		rules:         rules,
		holdTTL:       holdTTL,
		defaultWindow: domain.OperatingWindow{StartMinute: 0, EndMinute: 24 * 60},
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *SlotService) OpenSlot(ctx context.Context, actor domain.Actor, date, startTime string) (*domain.Slot, error) {
	if !actor.Is(domain.RoleMentor) {
		return nil, domain.Forbidden("only mentors can open slots")
	}

	startsAt, err := s.rules.ParseStart(date, startTime)
	if err != nil {
		return nil, err
	}
	if err := s.rules.CheckLeadTime(startsAt, s.now()); err != nil {
		return nil, err
	}

	mentor, err := s.mentors.Get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	profile := mentor.Profile(s.defaultPrice, s.defaultWindow)
	if err := s.rules.CheckGrid(startsAt, profile.Window); err != nil {
		return nil, err
	}

	slot := &domain.Slot{
		MentorID: actor.ID,
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(s.rules.Length),
		Price:    profile.Price,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, err
	}

	s.invalidate(ctx, slot)
	s.logger.Info("slot opened",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("mentor_id", slot.MentorID),
		zap.Time("starts_at", slot.StartsAt),
		zap.Int64("price", slot.Price))
	return slot, nil
}

// CloseSlot closes an AVAILABLE slot of the calling mentor. Closed slots
// are history and are reported as missing.
func (s *SlotService) CloseSlot(ctx context.Context, actor domain.Actor, slotID int64) (*domain.Slot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if slot.Status == domain.SlotStatusClosed {
		return nil, domain.NotFound("slot")
	}
	if slot.MentorID != actor.ID && !actor.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	if slot.Status != domain.SlotStatusAvailable {
		return nil, domain.InvalidState("slot %d is %s", slot.ID, slot.Status)
	}

	if err := s.slots.Close(ctx, slot.ID, slot.MentorID); err != nil {
		return nil, err
	}
	slot.Status = domain.SlotStatusClosed

	s.invalidate(ctx, slot)
	s.logger.Info("slot closed", zap.Int64("slot_id", slot.ID), zap.Int64("mentor_id", slot.MentorID))
	return slot, nil
}

func (s *SlotService) Get(ctx context.Context, slotID int64) (*domain.Slot, error) {
	return s.slots.GetByID(ctx, slotID)
}

// ReserveForCart places a hold for userID that expires after the hold TTL.
// Only one caller can win the AVAILABLE -> HELD swap.
func (s *SlotService) ReserveForCart(ctx context.Context, slotID, userID int64) (*domain.Slot, error) {
	now := s.now()
	slot, err := s.slots.Reserve(ctx, slotID, userID, now.Add(s.rules.LeadTime), now.Add(s.holdTTL))
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, slot)
	s.logger.Debug("slot held",
		zap.Int64("slot_id", slot.ID),
		zap.Int64("user_id", userID),
		zap.Timep("hold_expires_at", slot.HoldExpiresAt))
	return slot, nil
}

// ReleaseHold is idempotent: releasing a hold that no longer exists
// succeeds without changes.
func (s *SlotService) ReleaseHold(ctx context.Context, slotID, userID int64) error {
	slot, err := s.slots.Release(ctx, slotID, userID)
	if err != nil {
		return err
	}
	if slot != nil {
		s.invalidate(ctx, slot)
		s.logger.Debug("hold released", zap.Int64("slot_id", slotID), zap.Int64("user_id", userID))
	}
	return nil
}

func (s *SlotService) SweepExpiredHolds(ctx context.Context) ([]domain.Slot, error) {
	released, err := s.slots.ReleaseExpired(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for i := range released {
		s.invalidate(ctx, &released[i])
	}
	if len(released) > 0 {
		s.logger.Info("expired holds released", zap.Int("count", len(released)))
	}
	return released, nil
}

// ListAvailable returns the AVAILABLE slots of a mentor ordered by start.
// An empty date lists every upcoming slot. Expired holds are swept first
// so their slots show up again.
func (s *SlotService) ListAvailable(ctx context.Context, mentorID int64, date string) ([]domain.Slot, error) {
	from, to, err := s.window(date)
	if err != nil {
		return nil, err
	}
	if _, err := s.SweepExpiredHolds(ctx); err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, err := s.cache.GetAvailableSlots(ctx, mentorID, date)
		if err != nil {
			s.logger.Warn("slot cache read failed", zap.Int64("mentor_id", mentorID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	available, err := s.slots.ListByMentor(ctx, mentorID, from, to, []domain.SlotStatus{domain.SlotStatusAvailable})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetAvailableSlots(ctx, mentorID, date, available); err != nil {
			s.logger.Warn("slot cache write failed", zap.Int64("mentor_id", mentorID), zap.Error(err))
		}
	}
	return available, nil
}

// ListMentorSlots returns the caller's own slots in every status but CLOSED.
func (s *SlotService) ListMentorSlots(ctx context.Context, actor domain.Actor, date string) ([]domain.Slot, error) {
	if !actor.Is(domain.RoleMentor) {
		return nil, domain.Forbidden("only mentors have own slots")
	}
	from, to, err := s.window(date)
	if err != nil {
		return nil, err
	}
	return s.slots.ListByMentor(ctx, actor.ID, from, to, []domain.SlotStatus{
		domain.SlotStatusAvailable,
		domain.SlotStatusHeld,
		domain.SlotStatusBooked,
	})
}

func (s *SlotService) window(date string) (time.Time, time.Time, error) {
	if date == "" {
		now := s.now()
		return now, now.AddDate(1, 0, 0), nil
	}
	return s.rules.ParseDay(date)
}

// invalidate drops the cached listings touching slot. Failures only delay
// visibility until the cache TTL runs out.
func (s *SlotService) invalidate(ctx context.Context, slot *domain.Slot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSlots(ctx, slot.MentorID, s.rules.Day(slot.StartsAt)); err != nil {
		s.logger.Warn("slot cache invalidation failed", zap.Int64("mentor_id", slot.MentorID), zap.Error(err))
	}
}

var _ SlotUseCase = (*SlotService)(nil)
