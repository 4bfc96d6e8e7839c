package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiaxstock/internal/model"
	"aiaxstock/internal/service"
)

type fakeSessions map[string]*model.Session

func (f fakeSessions) Validate(_ context.Context, token string) (*model.Session, error) {
	if token == "broken" {
		return nil, errors.New("redis down")
	}
	if s, ok := f[token]; ok {
		return s, nil
	}
	return nil, service.ErrInvalidToken
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error.Code
}

func TestSessionMiddleware(t *testing.T) {
	sessions := fakeSessions{
		"axs_owner": {Role: model.RoleOwner, Identifier: "owner-1"},
		"axs_admin": {Role: model.RoleAdmin, Identifier: "admin-1"},
	}
	var seen *model.Session
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := NewSessionMiddleware(sessions)(ok)

	tests := []struct {
		name   string
		header string
		value  string
		status int
		code   string
	}{
		{"missing", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown", "X-Token", "axs_nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"store down", "X-Token", "broken", http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"x-token", "X-Token", "axs_owner", http.StatusNoContent, ""},
		{"bearer", "Authorization", "Bearer axs_admin", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, rec))
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(model.RoleOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, status := range map[model.Role]int{model.RoleOwner: http.StatusNoContent, model.RoleAdmin: http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/lots", nil)
		req = req.WithContext(WithSession(req.Context(), &model.Session{Role: role, Identifier: "x"}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, status, rec.Code, role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/lots", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, got)
	assert.NotEqual(t, "abc-123", got)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))

	abort := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1111"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:3333"))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1111"), "other clients are not affected")

	rl.cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:4444"))
}

func TestRequestLoggerCarriesID(t *testing.T) {
	var id interface{}
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = Logger(r.Context()).Data["request_id"]
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-7")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "req-7", id)

	assert.NotNil(t, Logger(context.Background()))
}
