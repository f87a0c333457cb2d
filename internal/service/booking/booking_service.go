package booking

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/kafka"
	"github.com/Domenick1991/mentorbooking/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingUseCase interface {
	Checkout(ctx context.Context, actor domain.Actor, cartItemIDs []int64) (*domain.CheckoutResult, error)
	Get(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error)
	ListForStudent(ctx context.Context, actor domain.Actor) ([]domain.Booking, error)
	ListForMentor(ctx context.Context, actor domain.Actor) ([]domain.Booking, error)
	ListAll(ctx context.Context, actor domain.Actor) ([]domain.Booking, error)
	CancelBookingItem(ctx context.Context, actor domain.Actor, bookingID, itemID int64) (*domain.Booking, error)
	CancelBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error)
}

// SlotCache is invalidated when a cancellation reopens slots.
type SlotCache interface {
	InvalidateSlots(ctx context.Context, mentorID int64, day string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type BookingService struct {
	bookings           repository.BookingRepository
	cartItems          repository.CartRepository
	slots              repository.SlotRepository
	cache              SlotCache
	producer           Producer
	bookingTopic       string
	notificationsTopic string
	rules              domain.SlotRules
	initialStatus      domain.BookingStatus
	logger             *zap.Logger
	now                func() time.Time
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithCache(cache SlotCache) BookingServiceOption {
	return func(s *BookingService) {
		s.cache = cache
	}
}

// WithInitialStatus sets the status of freshly checked out bookings,
// PENDING or CONFIRMED.
func WithInitialStatus(status domain.BookingStatus) BookingServiceOption {
	return func(s *BookingService) {
		s.initialStatus = status
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	cartItems repository.CartRepository,
	slots repository.SlotRepository,
	producer Producer,
	bookingTopic string,
	rules domain.SlotRules,
	logger *zap.Logger,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:      bookings,
		cartItems:     cartItems,
		slots:         slots,
		producer:      producer,
		bookingTopic:  bookingTopic,
		rules:         rules,
		initialStatus: domain.BookingStatusConfirmed,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Checkout converts the caller's cart items into one booking per mentor.
// Each mentor group is validated and committed on its own: a group with a
// stale item is reported with STALE_CART while the other groups are still
// booked. The error is non-nil only when no booking was created.
func (s *BookingService) Checkout(ctx context.Context, actor domain.Actor, cartItemIDs []int64) (*domain.CheckoutResult, error) {
	if !actor.Is(domain.RoleUser) {
		return nil, domain.Forbidden("only students can check out")
	}
	if len(cartItemIDs) == 0 {
		return nil, domain.Validation("cartItemIds must not be empty")
	}
	seen := make(map[int64]struct{}, len(cartItemIDs))
	for _, id := range cartItemIDs {
		if _, dup := seen[id]; dup {
			return nil, domain.Validation("cartItemIds contains duplicate id %d", id)
		}
		seen[id] = struct{}{}
	}

	items := make([]domain.CartItem, 0, len(cartItemIDs))
	for _, id := range cartItemIDs {
		item, err := s.cartItems.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NotFound("cart item").WithDetail("cartItemId", id)
			}
			return nil, err
		}
		if item.UserID != actor.ID {
			return nil, domain.NotFound("cart item").WithDetail("cartItemId", id)
		}
		items = append(items, *item)
	}

	result := &domain.CheckoutResult{}
	for _, group := range groupByMentor(items) {
		result.Groups = append(result.Groups, s.checkoutGroup(ctx, actor, group))
	}

	if result.Failed() == len(result.Groups) {
		return result, allGroupsFailed(result)
	}
	return result, nil
}

// checkoutGroup validates the holds of one mentor's items and writes the
// booking in its own transaction. The clock is read per group so a hold
// that lapsed during an earlier group is not booked.
func (s *BookingService) checkoutGroup(ctx context.Context, actor domain.Actor, group []domain.CartItem) domain.CheckoutGroup {
	outcome := domain.CheckoutGroup{MentorID: group[0].MentorID}
	for _, it := range group {
		outcome.CartItemIDs = append(outcome.CartItemIDs, it.ID)
	}

	now := s.now()
	var stale []int64
	for _, item := range group {
		slot, err := s.slots.GetByID(ctx, item.SlotID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			outcome.Err = err
			s.logger.Error("checkout group lookup failed",
				zap.Int64("user_id", actor.ID),
				zap.Int64("slot_id", item.SlotID),
				zap.Error(err))
			return outcome
		}
		if slot == nil || item.ExpiredAt(now) || !slot.HeldByAt(actor.ID, now) {
			stale = append(stale, item.ID)
		}
	}
	if len(stale) > 0 {
		outcome.Err = domain.ErrStaleCart.WithDetail("cartItemIds", stale)
		s.logger.Info("checkout group skipped: stale cart",
			zap.Int64("user_id", actor.ID),
			zap.Int64("mentor_id", outcome.MentorID),
			zap.Int64s("cart_item_ids", stale))
		return outcome
	}

	booking, err := s.bookings.CreateFromHolds(ctx, repository.NewBooking{
		StudentID: actor.ID,
		MentorID:  outcome.MentorID,
		Status:    s.initialStatus,
		Items:     group,
	}, now)
	if err != nil {
		outcome.Err = err
		s.logger.Warn("checkout group aborted",
			zap.Int64("user_id", actor.ID),
			zap.Int64("mentor_id", outcome.MentorID),
			zap.Error(err))
		return outcome
	}

	outcome.Booking = booking
	s.logger.Info("booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("user_id", actor.ID),
		zap.Int64("mentor_id", booking.MentorID),
		zap.Int("items", len(booking.Items)),
		zap.Int64("total_price", booking.TotalPrice))
	s.publish(ctx, kafka.EventBookingCreated, booking)
	return outcome
}

// allGroupsFailed returns the first group's error. A domain error is
// annotated with the outcome of every group.
func allGroupsFailed(result *domain.CheckoutResult) error {
	first := result.Groups[0].Err
	var domainErr *domain.Error
	if !errors.As(first, &domainErr) {
		return first
	}
	groups := make([]map[string]any, 0, len(result.Groups))
	for _, g := range result.Groups {
		entry := map[string]any{"mentorId": g.MentorID, "cartItemIds": g.CartItemIDs}
		var ge *domain.Error
		if errors.As(g.Err, &ge) {
			entry["code"] = ge.Code
		}
		groups = append(groups, entry)
	}
	return domainErr.WithDetail("groups", groups)
}

// groupByMentor keeps cart order inside a group and orders groups by
// mentor id.
func groupByMentor(items []domain.CartItem) [][]domain.CartItem {
	byMentor := make(map[int64][]domain.CartItem)
	var mentors []int64
	for _, it := range items {
		if _, ok := byMentor[it.MentorID]; !ok {
			mentors = append(mentors, it.MentorID)
		}
		byMentor[it.MentorID] = append(byMentor[it.MentorID], it)
	}
	slices.Sort(mentors)

	groups := make([][]domain.CartItem, 0, len(mentors))
	for _, m := range mentors {
		groups = append(groups, byMentor[m])
	}
	return groups
}

func (s *BookingService) Get(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.CanBeSeenBy(actor) {
		return nil, domain.Forbidden("booking belongs to someone else")
	}
	return booking, nil
}

func (s *BookingService) ListForStudent(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	if !actor.Is(domain.RoleUser) {
		return nil, domain.Forbidden("student role required")
	}
	return s.bookings.List(ctx, repository.BookingFilter{StudentID: actor.ID})
}

func (s *BookingService) ListForMentor(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	if !actor.Is(domain.RoleMentor) {
		return nil, domain.Forbidden("mentor role required")
	}
	return s.bookings.List(ctx, repository.BookingFilter{MentorID: actor.ID})
}

func (s *BookingService) ListAll(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin role required")
	}
	return s.bookings.List(ctx, repository.BookingFilter{})
}

// CancelBookingItem cancels one item. Its slot reopens when it is still
// outside the lead time and is closed otherwise.
func (s *BookingService) CancelBookingItem(ctx context.Context, actor domain.Actor, bookingID, itemID int64) (*domain.Booking, error) {
	booking, err := s.Get(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(booking.Items, func(it domain.BookingItem) bool { return it.ID == itemID })
	if idx < 0 {
		return nil, domain.NotFound("booking item")
	}
	if !booking.Status.Active() {
		return nil, domain.InvalidState("booking %d is %s", booking.ID, booking.Status)
	}
	if item := booking.Items[idx]; !item.Status.Active() {
		return nil, domain.InvalidState("booking item %d is %s", item.ID, item.Status)
	}

	updated, err := s.cancel(ctx, actor, bookingID, []int64{itemID})
	if err != nil {
		return nil, err
	}

	event := kafka.EventBookingItemCancelled
	if updated.Status == domain.BookingStatusCancelled {
		event = kafka.EventBookingCancelled
	}
	s.publish(ctx, event, updated)
	return updated, nil
}

// CancelBooking cancels every active item of the booking.
func (s *BookingService) CancelBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	booking, err := s.Get(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.Active() {
		return nil, domain.InvalidState("booking %d is %s", booking.ID, booking.Status)
	}

	updated, err := s.cancel(ctx, actor, bookingID, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, kafka.EventBookingCancelled, updated)
	return updated, nil
}

func (s *BookingService) cancel(ctx context.Context, actor domain.Actor, bookingID int64, itemIDs []int64) (*domain.Booking, error) {
	res, err := s.bookings.CancelItems(ctx, bookingID, itemIDs, s.now().Add(s.rules.LeadTime))
	if err != nil {
		return nil, err
	}
	for _, slot := range res.Slots {
		if slot.Status == domain.SlotStatusAvailable && s.cache != nil {
			if err := s.cache.InvalidateSlots(ctx, slot.MentorID, s.rules.Day(slot.StartsAt)); err != nil {
				s.logger.Warn("slot cache invalidation failed", zap.Int64("mentor_id", slot.MentorID), zap.Error(err))
			}
		}
	}
	s.logger.Info("booking items cancelled",
		zap.Int64("booking_id", bookingID),
		zap.Int64("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)),
		zap.Int("slots_freed", len(res.Slots)),
		zap.String("status", string(res.Booking.Status)),
		zap.Int64("total_price", res.Booking.TotalPrice))
	return res.Booking, nil
}

// ConfirmBooking moves a PENDING booking to CONFIRMED. Only the booking's
// mentor or an admin may confirm.
func (s *BookingService) ConfirmBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	return s.transition(ctx, actor, bookingID, domain.BookingStatusConfirmed, kafka.EventBookingConfirmed)
}

// CompleteBooking moves a CONFIRMED booking to COMPLETED. Only the
// booking's mentor or an admin may complete.
func (s *BookingService) CompleteBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	return s.transition(ctx, actor, bookingID, domain.BookingStatusCompleted, kafka.EventBookingCompleted)
}

func (s *BookingService) transition(ctx context.Context, actor domain.Actor, bookingID int64, to domain.BookingStatus, event string) (*domain.Booking, error) {
	if !actor.Is(domain.RoleMentor) && !actor.IsAdmin() {
		return nil, domain.Forbidden("mentor or admin role required")
	}
	booking, err := s.Get(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(to) {
		return nil, domain.InvalidState("booking %d cannot move from %s to %s", booking.ID, booking.Status, to)
	}

	updated, err := s.bookings.Transition(ctx, bookingID, to)
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking status changed",
		zap.Int64("booking_id", bookingID),
		zap.String("status", string(updated.Status)))
	s.publish(ctx, event, updated)
	return updated, nil
}

// publish is fire-and-forget: failures are logged and never reach the
// caller.
func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := newEvent(eventType, booking, s.now())
	key := strconv.FormatInt(booking.ID, 10)

	if err := s.producer.Publish(ctx, s.bookingTopic, key, event); err != nil {
		s.logger.Warn("publish booking event failed",
			zap.String("type", eventType),
			zap.Int64("booking_id", booking.ID),
			zap.Error(err))
	}
	if s.notificationsTopic == "" {
		return
	}
	if err := s.producer.Publish(ctx, s.notificationsTopic, key, event); err != nil {
		s.logger.Warn("publish notification failed",
			zap.String("type", eventType),
			zap.Int64("booking_id", booking.ID),
			zap.Error(err))
	}
}

func newEvent(eventType string, booking *domain.Booking, now time.Time) kafka.BookingEvent {
	items := make([]kafka.BookingEventItem, 0, len(booking.Items))
	for _, it := range booking.Items {
		items = append(items, kafka.BookingEventItem{
			ItemID:   it.ID,
			SlotID:   it.SlotID,
			StartsAt: it.StartsAt,
			EndsAt:   it.EndsAt,
			Price:    it.Price,
			Status:   string(it.Status),
		})
	}
	return kafka.BookingEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		BookingID:  booking.ID,
		StudentID:  booking.StudentID,
		MentorID:   booking.MentorID,
		Status:     string(booking.Status),
		TotalPrice: booking.TotalPrice,
		Items:      items,
		OccurredAt: now,
	}
}

var _ BookingUseCase = (*BookingService)(nil)
