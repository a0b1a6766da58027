package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/smallbiznis/orderfeed/internal/ratelimit"
	"github.com/smallbiznis/orderfeed/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"validation", newValidationError("status", "invalid_status", "bad"), http.StatusBadRequest, "validation_error"},
		{"domain validation", fmt.Errorf("wrap: %w", domain.ErrInvalidOwner), http.StatusBadRequest, "validation_error"},
		{"page token", pagination.ErrInvalidPageToken, http.StatusBadRequest, "validation_error"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not found", domain.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{"rate limited", ErrTooManyRequests, http.StatusTooManyRequests, "rate_limited"},
		{"profile busy", ratelimit.ErrProfileBusy, http.StatusConflict, "conflict"},
		{"unknown", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	kind, typ := classifyErrorForLog(ErrUnauthorized)
	assert.Equal(t, "client", kind)
	assert.Equal(t, "unauthorized", typ)

	kind, _ = classifyErrorForLog(assert.AnError)
	assert.Equal(t, "server", kind)
}
