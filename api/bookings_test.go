package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) Checkout(ctx context.Context, actor domain.Actor, cartItemIDs []int64) (*domain.CheckoutResult, error) {
	args := m.Called(ctx, actor, cartItemIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutResult), args.Error(1)
}

func (m *MockBookingUseCase) Get(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingUseCase) ListForStudent(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListForMentor(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) ListAll(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) CancelBookingItem(ctx context.Context, actor domain.Actor, bookingID, itemID int64) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID, itemID))
}

func (m *MockBookingUseCase) CancelBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingUseCase) ConfirmBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingUseCase) CompleteBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*domain.Booking, error) {
	return m.booking(m.Called(ctx, actor, bookingID))
}

func (m *MockBookingUseCase) booking(args mock.Arguments) (*domain.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

var (
	testStudent = domain.Actor{ID: 11, Role: domain.RoleUser}
	testMentor  = domain.Actor{ID: 7, Role: domain.RoleMentor}
)

func newTestContext(method, target string, body any, actor domain.Actor) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(actorKey, actor)
	return c, w
}

func TestBookingHandler_checkout(t *testing.T) {
	booked := &domain.Booking{
		ID: 900, StudentID: 11, MentorID: 7, TotalPrice: 500, Status: domain.BookingStatusConfirmed,
		Items: []domain.BookingItem{{ID: 1, SlotID: 3, Price: 500, Status: domain.BookingStatusConfirmed}},
	}

	testCases := []struct {
		name           string
		body           any
		result         *domain.CheckoutResult
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "all groups booked",
			body:           checkoutRequest{CartItemIDs: []int64{100}},
			result:         &domain.CheckoutResult{Groups: []domain.CheckoutGroup{{MentorID: 7, CartItemIDs: []int64{100}, Booking: booked}}},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "partial",
			body: checkoutRequest{CartItemIDs: []int64{100, 101}},
			result: &domain.CheckoutResult{Groups: []domain.CheckoutGroup{
				{MentorID: 7, CartItemIDs: []int64{100}, Booking: booked},
				{MentorID: 8, CartItemIDs: []int64{101}, Err: domain.ErrStaleCart},
			}},
			expectedStatus: http.StatusMultiStatus,
		},
		{
			name:           "stale cart",
			body:           checkoutRequest{CartItemIDs: []int64{100}},
			err:            domain.ErrStaleCart.WithDetail("cartItemIds", []int64{100}),
			expectedStatus: http.StatusConflict,
			expectedCode:   domain.CodeStaleCart,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			handler := NewBookingHandler(mockService, zap.NewNop())
			c, w := newTestContext(http.MethodPost, "/api/bookings/checkout", tc.body, testStudent)

			req := tc.body.(checkoutRequest)
			if tc.err != nil {
				mockService.On("Checkout", c.Request.Context(), testStudent, req.CartItemIDs).Return(nil, tc.err)
			} else {
				mockService.On("Checkout", c.Request.Context(), testStudent, req.CartItemIDs).Return(tc.result, nil)
			}

			handler.checkout(c)

			assert.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedCode != "" {
				var resp errorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tc.expectedCode, resp.Code)
				assert.Contains(t, resp.Details, "cartItemIds")
				return
			}

			var resp checkoutResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp.Bookings, 1)
			assert.Equal(t, int64(900), resp.Bookings[0].ID)
			assert.Len(t, resp.Groups, len(tc.result.Groups))
			mockService.AssertExpectations(t)
		})
	}
}

func TestBookingHandler_checkout_RejectsUnknownFields(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, zap.NewNop())
	c, w := newTestContext(http.MethodPost, "/api/bookings/checkout", `{"cartItemIds":[1],"coupon":"FREE"}`, testStudent)

	handler.checkout(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.CodeValidationFailed, resp.Code)
	mockService.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingHandler_checkout_InvalidIDs(t *testing.T) {
	testCases := []struct {
		name          string
		body          string
		expectedField string
	}{
		{name: "missing list", body: `{}`, expectedField: "cartItemIds"},
		{name: "empty list", body: `{"cartItemIds":[]}`, expectedField: "cartItemIds"},
		{name: "zero id", body: `{"cartItemIds":[100,0]}`, expectedField: "cartItemIds[1]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			handler := NewBookingHandler(mockService, zap.NewNop())
			c, w := newTestContext(http.MethodPost, "/api/bookings/checkout", tc.body, testStudent)

			handler.checkout(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, domain.CodeValidationFailed, resp.Code)
			assert.Contains(t, resp.Details["fields"], tc.expectedField)
			mockService.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBookingHandler_cancelItem(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, zap.NewNop())
	c, w := newTestContext(http.MethodDelete, "/api/bookings/900/items/1", nil, testStudent)
	c.Params = gin.Params{{Key: "id", Value: "900"}, {Key: "itemId", Value: "1"}}

	updated := &domain.Booking{
		ID: 900, StudentID: 11, MentorID: 7, TotalPrice: 700, Status: domain.BookingStatusConfirmed,
		Items: []domain.BookingItem{
			{ID: 1, Price: 500, Status: domain.BookingStatusCancelled},
			{ID: 2, Price: 700, Status: domain.BookingStatusConfirmed},
		},
	}
	mockService.On("CancelBookingItem", c.Request.Context(), testStudent, int64(900), int64(1)).Return(updated, nil)

	handler.cancelItem(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(700), resp.TotalPrice)
	assert.Equal(t, string(domain.BookingStatusCancelled), resp.Items[0].Status)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_cancelItem_Errors(t *testing.T) {
	testCases := []struct {
		name           string
		params         gin.Params
		err            error
		expectedStatus int
	}{
		{name: "bad id", params: gin.Params{{Key: "id", Value: "abc"}, {Key: "itemId", Value: "1"}}, expectedStatus: http.StatusBadRequest},
		{name: "not a party", params: gin.Params{{Key: "id", Value: "900"}, {Key: "itemId", Value: "1"}}, err: domain.Forbidden("booking belongs to someone else"), expectedStatus: http.StatusForbidden},
		{name: "already cancelled", params: gin.Params{{Key: "id", Value: "900"}, {Key: "itemId", Value: "1"}}, err: domain.InvalidState("booking item 1 is CANCELLED"), expectedStatus: http.StatusConflict},
		{name: "storage down", params: gin.Params{{Key: "id", Value: "900"}, {Key: "itemId", Value: "1"}}, err: domain.Unavailable(context.DeadlineExceeded), expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			handler := NewBookingHandler(mockService, zap.NewNop())
			c, w := newTestContext(http.MethodDelete, "/api/bookings/900/items/1", nil, testStudent)
			c.Params = tc.params
			if tc.err != nil {
				mockService.On("CancelBookingItem", mock.Anything, testStudent, int64(900), int64(1)).Return(nil, tc.err)
			}

			handler.cancelItem(c)

			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestBookingHandler_complete(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, zap.NewNop())
	c, w := newTestContext(http.MethodPost, "/api/bookings/900/complete", nil, testMentor)
	c.Params = gin.Params{{Key: "id", Value: "900"}}

	mockService.On("CompleteBooking", c.Request.Context(), testMentor, int64(900)).
		Return(&domain.Booking{ID: 900, Status: domain.BookingStatusCompleted}, nil)

	handler.complete(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.BookingStatusCompleted), resp.Status)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_Routes(t *testing.T) {
	const secret = "test-secret"
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, zap.NewNop())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api/bookings", Authenticate(secret))
	handler.Register(group)

	mockService.On("ListForMentor", mock.Anything, testMentor).Return([]domain.Booking{{ID: 1, MentorID: 7}}, nil)

	token := func(actor domain.Actor) string {
		tok, err := NewAccessToken(actor, secret, time.Hour)
		require.NoError(t, err)
		return "Bearer " + tok
	}

	testCases := []struct {
		name           string
		method         string
		path           string
		authorization  string
		expectedStatus int
	}{
		{name: "no token", method: http.MethodGet, path: "/api/bookings/mentor", expectedStatus: http.StatusUnauthorized},
		{name: "garbage token", method: http.MethodGet, path: "/api/bookings/mentor", authorization: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "mentor lists", method: http.MethodGet, path: "/api/bookings/mentor", authorization: token(testMentor), expectedStatus: http.StatusOK},
		{name: "student on mentor list", method: http.MethodGet, path: "/api/bookings/mentor", authorization: token(testStudent), expectedStatus: http.StatusForbidden},
		{name: "mentor cannot check out", method: http.MethodPost, path: "/api/bookings/checkout", authorization: token(testMentor), expectedStatus: http.StatusForbidden},
		{name: "student cannot list all", method: http.MethodGet, path: "/api/bookings/all", authorization: token(testStudent), expectedStatus: http.StatusForbidden},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.authorization != "" {
				req.Header.Set("Authorization", tc.authorization)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
	mockService.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
}
