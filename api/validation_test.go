package api

import (
	"errors"
	"testing"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	testCases := []struct {
		name           string
		req            any
		expectedFields map[string]string
	}{
		{name: "valid slot", req: &openSlotRequest{Date: "2030-04-04", StartTime: "10:00"}},
		{name: "valid checkout", req: &checkoutRequest{CartItemIDs: []int64{1, 2}}},
		{
			name:           "slot missing both",
			req:            &openSlotRequest{},
			expectedFields: map[string]string{"date": "required", "startTime": "required"},
		},
		{
			name:           "slot bad clock",
			req:            &openSlotRequest{Date: "2030-04-04", StartTime: "25:00"},
			expectedFields: map[string]string{"startTime": "datetime=15:04"},
		},
		{
			name:           "cart zero slot",
			req:            &addCartItemRequest{},
			expectedFields: map[string]string{"slotId": "required"},
		},
		{
			name:           "checkout negative id",
			req:            &checkoutRequest{CartItemIDs: []int64{-1}},
			expectedFields: map[string]string{"cartItemIds[0]": "gt=0"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateRequest(tc.req)
			if tc.expectedFields == nil {
				assert.NoError(t, err)
				return
			}

			var domainErr *domain.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, domain.CodeValidationFailed, domainErr.Code)
			assert.Equal(t, tc.expectedFields, domainErr.Details["fields"])
		})
	}
}
