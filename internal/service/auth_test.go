package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiaxstock/internal/cache"
	"aiaxstock/internal/model"
)

const (
	ownerID = "8CD15B4B-0755-4843-A8D5-2652FA408FE5"
	adminID = "4e63c32b-cc75-48de-b111-e8a977d868a2"
)

func TestAuthenticatorLogin(t *testing.T) {
	auth := NewAuthenticator([]string{ownerID}, []string{" " + adminID, ""})

	tests := []struct {
		name    string
		role    model.Role
		id      string
		wantErr error
		wantID  string
	}{
		{"owner as owner", model.RoleOwner, strings.ToLower(ownerID), nil, ownerID},
		{"owner as admin", model.RoleAdmin, ownerID, nil, ownerID},
		{"admin as admin", model.RoleAdmin, "  " + strings.ToUpper(adminID), nil, adminID},
		{"admin as owner", model.RoleOwner, adminID, ErrUnknownIdentity, ""},
		{"stranger", model.RoleAdmin, "20851a7b-ef92-41a1-80d1-d2a6081396d5", ErrUnknownIdentity, ""},
		{"bad role", model.Role("root"), ownerID, ErrInvalidRole, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := auth.Login(tt.role, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, s.Role)
			assert.Equal(t, tt.wantID, s.Identifier)
		})
	}

	_, err := auth.Login(model.RoleOwner, "  ")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{ownerID}, auth.OwnerIDs())
}

func TestSessionServiceLifecycle(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	svc := NewSessionService(c, time.Hour)
	ctx := context.Background()

	token, err := svc.Create(ctx, &model.Session{Role: model.RoleAdmin, Identifier: adminID})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))

	s, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, adminID, s.Identifier)
	assert.Equal(t, model.RoleAdmin, s.Role)

	require.NoError(t, svc.Revoke(ctx, token))
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionServiceExpiry(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	svc := NewSessionService(c, time.Hour)
	ctx := context.Background()

	token, err := svc.Create(ctx, &model.Session{Role: model.RoleOwner, Identifier: ownerID})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
