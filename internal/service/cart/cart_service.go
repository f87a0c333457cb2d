package cart

import (
	"context"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/repository"
	"go.uber.org/zap"
)

type CartUseCase interface {
	AddItem(ctx context.Context, actor domain.Actor, slotID int64) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, actor domain.Actor, cartItemID int64) error
	Clear(ctx context.Context, actor domain.Actor) (*ClearResult, error)
	List(ctx context.Context, actor domain.Actor) (*domain.Cart, error)
}

// SlotStore is the part of the slot service the cart drives.
type SlotStore interface {
	Get(ctx context.Context, slotID int64) (*domain.Slot, error)
	ReserveForCart(ctx context.Context, slotID, userID int64) (*domain.Slot, error)
	ReleaseHold(ctx context.Context, slotID, userID int64) error
	SweepExpiredHolds(ctx context.Context) ([]domain.Slot, error)
}

// ClearResult reports how many items were removed and which slots could
// not be released. Those stay HELD until the expiry sweep frees them.
type ClearResult struct {
	DeletedCount   int
	FailedReleases []int64
}

type CartService struct {
	items  repository.CartRepository
	slots  SlotStore
	rules  domain.SlotRules
	logger *zap.Logger
	now    func() time.Time
}

type CartServiceOption func(*CartService)

func WithClock(now func() time.Time) CartServiceOption {
	return func(s *CartService) {
		s.now = now
	}
}

func NewCartService(items repository.CartRepository, slots SlotStore, rules domain.SlotRules, logger *zap.Logger, opts ...CartServiceOption) *CartService {
	service := &CartService{
		items:  items,
		slots:  slots,
		rules:  rules,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *CartService) AddItem(ctx context.Context, actor domain.Actor, slotID int64) (*domain.CartItem, error) {
	if !actor.Is(domain.RoleUser) {
		return nil, domain.Forbidden("only students can add slots to a cart")
	}

	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.rules.CheckLeadTime(slot.StartsAt, now); err != nil {
		return nil, err
	}

	held, err := s.slots.ReserveForCart(ctx, slotID, actor.ID)
	if err != nil {
		return nil, err
	}

	item := &domain.CartItem{
		UserID:    actor.ID,
		SlotID:    held.ID,
		MentorID:  held.MentorID,
		StartsAt:  held.StartsAt,
		EndsAt:    held.EndsAt,
		Price:     held.Price,
		HeldAt:    now,
		ExpiresAt: held.HoldExpiresAt,
	}
	if err := s.items.Create(ctx, item); err != nil {
		// undo the hold so the slot does not stay blocked until expiry
		if relErr := s.slots.ReleaseHold(ctx, slotID, actor.ID); relErr != nil {
			s.logger.Error("release hold after failed cart insert",
				zap.Int64("slot_id", slotID),
				zap.Int64("user_id", actor.ID),
				zap.Error(relErr))
		}
		return nil, err
	}

	s.logger.Info("cart item added",
		zap.Int64("cart_item_id", item.ID),
		zap.Int64("slot_id", item.SlotID),
		zap.Int64("user_id", actor.ID))
	return item, nil
}

// RemoveItem deletes the caller's cart item and releases its hold. A failed
// release is logged; the expiry sweep frees the slot later.
func (s *CartService) RemoveItem(ctx context.Context, actor domain.Actor, cartItemID int64) error {
	item, err := s.items.GetByID(ctx, cartItemID)
	if err != nil {
		return err
	}
	if item.UserID != actor.ID {
		return domain.Forbidden("cart item belongs to another user")
	}

	if err := s.items.Delete(ctx, item.ID, actor.ID); err != nil {
		return err
	}
	if err := s.slots.ReleaseHold(ctx, item.SlotID, actor.ID); err != nil {
		s.logger.Warn("release hold failed",
			zap.Int64("slot_id", item.SlotID),
			zap.Int64("user_id", actor.ID),
			zap.Error(err))
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, actor domain.Actor) (*ClearResult, error) {
	deleted, err := s.items.DeleteByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	result := &ClearResult{DeletedCount: len(deleted)}
	for _, item := range deleted {
		if err := s.slots.ReleaseHold(ctx, item.SlotID, actor.ID); err != nil {
			result.FailedReleases = append(result.FailedReleases, item.SlotID)
			s.logger.Warn("release hold failed",
				zap.Int64("slot_id", item.SlotID),
				zap.Int64("user_id", actor.ID),
				zap.Error(err))
		}
	}
	return result, nil
}

// List sweeps expired holds before reading, so expired items are pruned
// and never returned.
func (s *CartService) List(ctx context.Context, actor domain.Actor) (*domain.Cart, error) {
	if _, err := s.slots.SweepExpiredHolds(ctx); err != nil {
		s.logger.Warn("lazy sweep failed", zap.Error(err))
	}

	items, err := s.items.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	cart := domain.NewCart(items, s.now())
	return &cart, nil
}

var _ CartUseCase = (*CartService)(nil)
