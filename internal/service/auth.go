package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"aiaxstock/internal/cache"
	"aiaxstock/internal/model"
	"aiaxstock/pkg/uid"
)

// Authenticator checks a login identifier against the configured
// allow-lists. It is a convenience gate only: the store's own policies
// decide what a caller can actually read or write.
type Authenticator struct {
	owners map[string]string
	admins map[string]string
}

// NewAuthenticator builds an Authenticator. Identifiers compare
// case-insensitively; blanks are ignored.
func NewAuthenticator(ownerIDs, adminIDs []string) *Authenticator {
	index := func(ids []string) map[string]string {
		m := make(map[string]string, len(ids))
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id != "" {
				m[strings.ToLower(id)] = id
			}
		}
		return m
	}
	return &Authenticator{owners: index(ownerIDs), admins: index(adminIDs)}
}

// Login resolves role and identifier to a Session. An Owner identifier is
// also accepted for the Admin role.
func (a *Authenticator) Login(role model.Role, identifier string) (*model.Session, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	key := strings.ToLower(strings.TrimSpace(identifier))
	if key == "" {
		return nil, invalid("identifier", "is required")
	}

	canonical, ok := a.owners[key]
	if !ok && role == model.RoleAdmin {
		canonical, ok = a.admins[key]
	}
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return &model.Session{Role: role, Identifier: canonical}, nil
}

// OwnerIDs returns the configured owner identifiers.
func (a *Authenticator) OwnerIDs() []string {
	out := make([]string, 0, len(a.owners))
	for _, id := range a.owners {
		out = append(out, id)
	}
	return out
}

const (
	// TokenPrefix is the prefix for all session tokens
	TokenPrefix = "axs_"

	sessionKeyPrefix = "session:"
)

// SessionService issues opaque tokens for sessions and keeps them in the cache.
type SessionService struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
	log   *logrus.Entry
}

// NewSessionService creates a session service storing tokens in c for ttl.
func NewSessionService(c cache.Cache, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionService{
		cache: c,
		ttl:   ttl,
		now:   time.Now,
		log:   logrus.WithField("component", "sessions"),
	}
}

// Create stores session under a new random token.
func (s *SessionService) Create(ctx context.Context, session *model.Session) (string, error) {
	token, err := uid.Token(TokenPrefix, 32)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	session.CreatedAt = s.now().UTC()
	session.ExpiresAt = session.CreatedAt.Add(s.ttl)

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.cache.Set(ctx, sessionKeyPrefix+token, data, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"role":    session.Role,
		"expires": session.ExpiresAt,
	}).Info("session created")
	return token, nil
}

// Validate returns the session stored under token.
func (s *SessionService) Validate(ctx context.Context, token string) (*model.Session, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrInvalidToken
	}

	data, err := s.cache.Get(ctx, sessionKeyPrefix+token)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if s.now().After(session.ExpiresAt) {
		_ = s.cache.Delete(ctx, sessionKeyPrefix+token)
		return nil, ErrInvalidToken
	}
	return &session, nil
}

// Revoke deletes a token.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, sessionKeyPrefix+token)
}

// ActiveCount returns the number of live sessions.
func (s *SessionService) ActiveCount(ctx context.Context) (int, error) {
	return s.cache.Count(ctx, sessionKeyPrefix)
}
