package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSlotRepository struct {
	mock.Mock
}

func (m *MockSlotRepository) Create(ctx context.Context, slot *domain.Slot) error {
	args := m.Called(ctx, slot)
	return args.Error(0)
}

func (m *MockSlotRepository) GetByID(ctx context.Context, id int64) (*domain.Slot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Slot), args.Error(1)
}

func (m *MockSlotRepository) ListByMentor(ctx context.Context, mentorID int64, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	args := m.Called(ctx, mentorID, from, to, statuses)
	return args.Get(0).([]domain.Slot), args.Error(1)
}

func (m *MockSlotRepository) Close(ctx context.Context, id, mentorID int64) error {
	args := m.Called(ctx, id, mentorID)
	return args.Error(0)
}

func (m *MockSlotRepository) Reserve(ctx context.Context, id, userID int64, notBefore, until time.Time) (*domain.Slot, error) {
	args := m.Called(ctx, id, userID, notBefore, until)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Slot), args.Error(1)
}

func (m *MockSlotRepository) Release(ctx context.Context, id, userID int64) (*domain.Slot, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Slot), args.Error(1)
}

func (m *MockSlotRepository) ReleaseExpired(ctx context.Context, now time.Time) ([]domain.Slot, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Slot), args.Error(1)
}

type MockMentorRepository struct {
	mock.Mock
}

func (m *MockMentorRepository) Get(ctx context.Context, id int64) (*repository.MentorRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.MentorRecord), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetAvailableSlots(ctx context.Context, mentorID int64, day string) ([]domain.Slot, error) {
	args := m.Called(ctx, mentorID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Slot), args.Error(1)
}

func (m *MockCache) SetAvailableSlots(ctx context.Context, mentorID int64, day string, slots []domain.Slot) error {
	args := m.Called(ctx, mentorID, day, slots)
	return args.Error(0)
}

func (m *MockCache) InvalidateSlots(ctx context.Context, mentorID int64, day string) error {
	args := m.Called(ctx, mentorID, day)
	return args.Error(0)
}

var (
	testNow = time.Date(2030, 4, 1, 9, 0, 0, 0, time.UTC)
	mentor  = domain.Actor{ID: 7, Role: domain.RoleMentor}
	student = domain.Actor{ID: 11, Role: domain.RoleUser}
)

func newTestService(slots *MockSlotRepository, mentors *MockMentorRepository, cache *MockCache) *SlotService {
	service := &SlotService{
		slots:         slots,
		mentors:       mentors,
		rules:         domain.SlotRules{Length: 30 * time.Minute, LeadTime: 48 * time.Hour, Location: time.UTC},
		holdTTL:       15 * time.Minute,
		defaultPrice:  1000,
		defaultWindow: domain.OperatingWindow{StartMinute: 8 * 60, EndMinute: 22 * 60},
		logger:        zap.NewNop(),
		now:           func() time.Time { return testNow },
	}
	if cache != nil {
		service.cache = cache
	}
	return service
}

func TestSlotService_OpenSlot_Success(t *testing.T) {
	slotRepo := &MockSlotRepository{}
	mentorRepo := &MockMentorRepository{}
	cache := &MockCache{}
	service := newTestService(slotRepo, mentorRepo, cache)

	ctx := context.Background()
	price := int64(500)
	mentorRepo.On("Get", ctx, int64(7)).Return(&repository.MentorRecord{ID: 7, Price: &price}, nil).Once()
	slotRepo.On("Create", ctx, mock.AnythingOfType("*domain.Slot")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Slot).ID = 1
	}).Once()
	cache.On("InvalidateSlots", ctx, int64(7), "2030-04-04").Return(nil).Once()

	// day + 3 at 10:00
	slot, err := service.OpenSlot(ctx, mentor, "2030-04-04", "10:00")

	require.NoError(t, err)
	assert.Equal(t, int64(1), slot.ID)
	assert.Equal(t, int64(500), slot.Price)
	assert.Equal(t, time.Date(2030, 4, 4, 10, 30, 0, 0, time.UTC), slot.EndsAt)

	slotRepo.AssertExpectations(t)
	mentorRepo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestSlotService_OpenSlot_LeadTimeBoundary(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name        string
		date        string
		startTime   string
		expectedErr error
	}{
		{name: "exactly 48h ahead", date: "2030-04-03", startTime: "09:00"},
		{name: "30 minutes short of 48h", date: "2030-04-03", startTime: "08:30", expectedErr: domain.ErrLeadTimeViolation},
		{name: "tomorrow", date: "2030-04-02", startTime: "12:00", expectedErr: domain.ErrLeadTimeViolation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slotRepo := &MockSlotRepository{}
			mentorRepo := &MockMentorRepository{}
			service := newTestService(slotRepo, mentorRepo, nil)

			if tc.expectedErr == nil {
				mentorRepo.On("Get", ctx, int64(7)).Return(&repository.MentorRecord{ID: 7}, nil).Once()
				slotRepo.On("Create", ctx, mock.AnythingOfType("*domain.Slot")).Return(nil).Once()
			}

			slot, err := service.OpenSlot(ctx, mentor, tc.date, tc.startTime)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Nil(t, slot)
				slotRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1000), slot.Price)
		})
	}
}

func TestSlotService_OpenSlot_ValidationErrors(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name        string
		date        string
		startTime   string
		expectedErr string
	}{
		{name: "bad date", date: "04/05/2030", startTime: "10:00", expectedErr: "YYYY-MM-DD"},
		{name: "off grid", date: "2030-04-05", startTime: "10:15", expectedErr: "30-minute grid"},
		{name: "before window", date: "2030-04-05", startTime: "07:30", expectedErr: "operating window"},
		{name: "runs past window", date: "2030-04-05", startTime: "22:00", expectedErr: "operating window"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slotRepo := &MockSlotRepository{}
			mentorRepo := &MockMentorRepository{}
			service := newTestService(slotRepo, mentorRepo, nil)
			mentorRepo.On("Get", ctx, int64(7)).Return(&repository.MentorRecord{ID: 7}, nil).Maybe()

			_, err := service.OpenSlot(ctx, mentor, tc.date, tc.startTime)

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, err.Error(), tc.expectedErr)
			slotRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSlotService_OpenSlot_Conflict(t *testing.T) {
	slotRepo := &MockSlotRepository{}
	mentorRepo := &MockMentorRepository{}
	service := newTestService(slotRepo, mentorRepo, nil)

	ctx := context.Background()
	mentorRepo.On("Get", ctx, int64(7)).Return(&repository.MentorRecord{ID: 7}, nil).Once()
	slotRepo.On("Create", ctx, mock.AnythingOfType("*domain.Slot")).Return(domain.ErrSlotConflict).Once()

	_, err := service.OpenSlot(ctx, mentor, "2030-04-05", "10:00")
	assert.ErrorIs(t, err, domain.ErrSlotConflict)
}

func TestSlotService_OpenSlot_StudentForbidden(t *testing.T) {
	service := newTestService(&MockSlotRepository{}, &MockMentorRepository{}, nil)

	_, err := service.OpenSlot(context.Background(), student, "2030-04-05", "10:00")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSlotService_CloseSlot(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2030, 4, 5, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name        string
		status      domain.SlotStatus
		actor       domain.Actor
		expectedErr error
	}{
		{name: "available slot", status: domain.SlotStatusAvailable, actor: mentor},
		{name: "booked slot", status: domain.SlotStatusBooked, actor: mentor, expectedErr: domain.ErrInvalidState},
		{name: "held slot", status: domain.SlotStatusHeld, actor: mentor, expectedErr: domain.ErrInvalidState},
		{name: "already closed", status: domain.SlotStatusClosed, actor: mentor, expectedErr: domain.ErrNotFound},
		{name: "other mentor", status: domain.SlotStatusAvailable, actor: domain.Actor{ID: 8, Role: domain.RoleMentor}, expectedErr: domain.ErrUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slotRepo := &MockSlotRepository{}
			cache := &MockCache{}
			service := newTestService(slotRepo, &MockMentorRepository{}, cache)

			slotRepo.On("GetByID", ctx, int64(3)).Return(&domain.Slot{ID: 3, MentorID: 7, StartsAt: start, Status: tc.status}, nil).Once()
			if tc.expectedErr == nil {
				slotRepo.On("Close", ctx, int64(3), int64(7)).Return(nil).Once()
				cache.On("InvalidateSlots", ctx, int64(7), "2030-04-05").Return(nil).Once()
			}

			slot, err := service.CloseSlot(ctx, tc.actor, 3)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				slotRepo.AssertNotCalled(t, "Close", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.SlotStatusClosed, slot.Status)
			slotRepo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestSlotService_ReserveForCart(t *testing.T) {
	slotRepo := &MockSlotRepository{}
	cache := &MockCache{}
	service := newTestService(slotRepo, &MockMentorRepository{}, cache)

	ctx := context.Background()
	until := testNow.Add(15 * time.Minute)
	held := &domain.Slot{ID: 3, MentorID: 7, StartsAt: time.Date(2030, 4, 5, 10, 0, 0, 0, time.UTC), Status: domain.SlotStatusHeld, HoldExpiresAt: &until}

	slotRepo.On("Reserve", ctx, int64(3), int64(11), testNow.Add(48*time.Hour), until).Return(held, nil).Once()
	slotRepo.On("Reserve", ctx, int64(3), int64(12), testNow.Add(48*time.Hour), until).
		Return(nil, domain.ErrSlotUnavailable.WithDetail("slotId", int64(3))).Once()
	cache.On("InvalidateSlots", ctx, int64(7), "2030-04-05").Return(nil).Once()

	slot, err := service.ReserveForCart(ctx, 3, 11)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotStatusHeld, slot.Status)

	_, err = service.ReserveForCart(ctx, 3, 12)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

	slotRepo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestSlotService_ReleaseHold_Idempotent(t *testing.T) {
	slotRepo := &MockSlotRepository{}
	cache := &MockCache{}
	service := newTestService(slotRepo, &MockMentorRepository{}, cache)

	ctx := context.Background()
	slotRepo.On("Release", ctx, int64(3), int64(11)).Return(nil, nil).Once()

	assert.NoError(t, service.ReleaseHold(ctx, 3, 11))
	cache.AssertNotCalled(t, "InvalidateSlots", mock.Anything, mock.Anything, mock.Anything)
}

func TestSlotService_ListAvailable(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2030, 4, 4, 0, 0, 0, 0, time.UTC)
	listed := []domain.Slot{{ID: 1, MentorID: 7, StartsAt: day.Add(10 * time.Hour), Price: 500, Status: domain.SlotStatusAvailable}}

	t.Run("cache miss loads and stores", func(t *testing.T) {
		slotRepo := &MockSlotRepository{}
		cache := &MockCache{}
		service := newTestService(slotRepo, &MockMentorRepository{}, cache)

		slotRepo.On("ReleaseExpired", ctx, testNow).Return([]domain.Slot{}, nil).Once()
		cache.On("GetAvailableSlots", ctx, int64(7), "2030-04-04").Return(nil, nil).Once()
		slotRepo.On("ListByMentor", ctx, int64(7), day, day.AddDate(0, 0, 1), []domain.SlotStatus{domain.SlotStatusAvailable}).Return(listed, nil).Once()
		cache.On("SetAvailableSlots", ctx, int64(7), "2030-04-04", listed).Return(nil).Once()

		got, err := service.ListAvailable(ctx, 7, "2030-04-04")
		require.NoError(t, err)
		assert.Equal(t, listed, got)
		slotRepo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("cache hit", func(t *testing.T) {
		slotRepo := &MockSlotRepository{}
		cache := &MockCache{}
		service := newTestService(slotRepo, &MockMentorRepository{}, cache)

		slotRepo.On("ReleaseExpired", ctx, testNow).Return([]domain.Slot{}, nil).Once()
		cache.On("GetAvailableSlots", ctx, int64(7), "2030-04-04").Return(listed, nil).Once()

		got, err := service.ListAvailable(ctx, 7, "2030-04-04")
		require.NoError(t, err)
		assert.Equal(t, listed, got)
		slotRepo.AssertNotCalled(t, "ListByMentor", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache failure falls back to store", func(t *testing.T) {
		slotRepo := &MockSlotRepository{}
		cache := &MockCache{}
		service := newTestService(slotRepo, &MockMentorRepository{}, cache)

		slotRepo.On("ReleaseExpired", ctx, testNow).Return([]domain.Slot{}, nil).Once()
		cache.On("GetAvailableSlots", ctx, int64(7), "2030-04-04").Return(nil, errors.New("redis down")).Once()
		slotRepo.On("ListByMentor", ctx, int64(7), day, day.AddDate(0, 0, 1), mock.Anything).Return(listed, nil).Once()
		cache.On("SetAvailableSlots", ctx, int64(7), "2030-04-04", listed).Return(errors.New("redis down")).Once()

		got, err := service.ListAvailable(ctx, 7, "2030-04-04")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("bad date", func(t *testing.T) {
		service := newTestService(&MockSlotRepository{}, &MockMentorRepository{}, &MockCache{})

		_, err := service.ListAvailable(ctx, 7, "tomorrow")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

// An expired hold is swept on read, so the slot is listed again.
func TestSlotService_ListAvailable_SweepsExpiredHolds(t *testing.T) {
	slotRepo := &MockSlotRepository{}
	cache := &MockCache{}
	service := newTestService(slotRepo, &MockMentorRepository{}, cache)

	ctx := context.Background()
	day := time.Date(2030, 4, 4, 0, 0, 0, 0, time.UTC)
	freed := domain.Slot{ID: 1, MentorID: 7, StartsAt: day.Add(10 * time.Hour), Status: domain.SlotStatusAvailable}

	slotRepo.On("ReleaseExpired", ctx, testNow).Return([]domain.Slot{freed}, nil).Once()
	cache.On("InvalidateSlots", ctx, int64(7), "2030-04-04").Return(nil).Once()
	cache.On("GetAvailableSlots", ctx, int64(7), "2030-04-04").Return(nil, nil).Once()
	slotRepo.On("ListByMentor", ctx, int64(7), day, day.AddDate(0, 0, 1), mock.Anything).Return([]domain.Slot{freed}, nil).Once()
	cache.On("SetAvailableSlots", ctx, int64(7), "2030-04-04", mock.Anything).Return(nil).Once()

	got, err := service.ListAvailable(ctx, 7, "2030-04-04")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SlotStatusAvailable, got[0].Status)

	slotRepo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestSlotService_ListMentorSlots(t *testing.T) {
	slotRepo := &MockSlotRepository{}
	service := newTestService(slotRepo, &MockMentorRepository{}, nil)

	ctx := context.Background()
	slotRepo.On("ListByMentor", ctx, int64(7), testNow, testNow.AddDate(1, 0, 0), []domain.SlotStatus{
		domain.SlotStatusAvailable, domain.SlotStatusHeld, domain.SlotStatusBooked,
	}).Return([]domain.Slot{{ID: 1}, {ID: 2}}, nil).Once()

	got, err := service.ListMentorSlots(ctx, mentor, "")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = service.ListMentorSlots(ctx, student, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
