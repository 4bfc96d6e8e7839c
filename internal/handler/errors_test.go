package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiaxstock/internal/repository"
	"aiaxstock/internal/service"
)

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&service.ValidationError{Fields: []service.FieldError{{Field: "quantity", Message: "must be at least 1"}}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("failed to load lot: %w", repository.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{service.ErrInvalidRole, http.StatusBadRequest, "BAD_REQUEST"},
		{service.ErrUnknownIdentity, http.StatusUnauthorized, "UNAUTHORIZED"},
		{service.ErrDecrementFailed, http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("%w: timeout", service.ErrCheckoutUnconfirmed), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
					Details []struct {
						Field string `json:"field"`
					} `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotContains(t, body.Error.Message, "connection refused")
			if tt.code == "VALIDATION_ERROR" {
				require.Len(t, body.Error.Details, 1)
				assert.Equal(t, "quantity", body.Error.Details[0].Field)
			}
		})
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&limit=abc", nil)
	n, err := queryInt(r, "page")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = queryInt(r, "limit")
	var verr *service.ValidationError
	assert.ErrorAs(t, err, &verr)

	n, err = queryInt(r, "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}
