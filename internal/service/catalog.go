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
	"aiaxstock/internal/repository"
)

const catalogCacheKey = "catalog"

// DefaultDurations are the selectable durations when the store has none.
var DefaultDurations = []model.Duration{
	{Label: "7 days", Code: "7d", Seq: 1},
	{Label: "14 days", Code: "14d", Seq: 2},
	{Label: "1 month", Code: "1m", Seq: 3},
	{Label: "2 months", Code: "2m", Seq: 4},
	{Label: "3 months", Code: "3m", Seq: 5},
	{Label: "6 months", Code: "6m", Seq: 6},
	{Label: "12 months", Code: "12m", Seq: 7},
	{Label: "Auto renew", Code: "auto", Seq: 8},
}

// DefaultAccountTypes are the account types used when the store has none.
var DefaultAccountTypes = []model.AccountType{
	{Label: "private account"},
	{Label: "shared account"},
}

// StaticCatalog builds the fallback catalog. products are "key:label"
// pairs; a bare key is its own label.
func StaticCatalog(products []string) model.Catalog {
	c := model.Catalog{
		AccountTypes: DefaultAccountTypes,
		Durations:    DefaultDurations,
		Fallback:     true,
	}
	for _, p := range products {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key, label, found := strings.Cut(p, ":")
		if !found {
			label = key
		}
		c.Products = append(c.Products, model.Product{Key: strings.TrimSpace(key), Label: strings.TrimSpace(label)})
	}
	return c
}

// CatalogService loads catalog reference data with a deadline and a
// static fallback.
type CatalogService struct {
	repo     repository.CatalogRepository
	cache    cache.Cache
	fallback model.Catalog
	timeout  time.Duration
	ttl      time.Duration
	log      *logrus.Entry
}

// NewCatalogService creates a catalog service.
func NewCatalogService(repo repository.CatalogRepository, c cache.Cache, fallback model.Catalog, timeout, ttl time.Duration) *CatalogService {
	fallback.Fallback = true
	return &CatalogService{
		repo:     repo,
		cache:    c,
		fallback: fallback,
		timeout:  timeout,
		ttl:      ttl,
		log:      logrus.WithField("component", "catalog"),
	}
}

// Load returns the catalog. It never fails: a store error or timeout
// yields the static fallback, which is not cached.
func (s *CatalogService) Load(ctx context.Context) *model.Catalog {
	var fetched *model.Catalog
	data, err := s.cache.GetOrSet(ctx, catalogCacheKey, s.ttl, func() ([]byte, error) {
		c, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		fetched = c
		return json.Marshal(c)
	})
	if err != nil {
		if fetched != nil {
			s.log.WithError(err).Debug("failed to cache catalog")
			return fetched
		}
		s.log.WithError(err).Warn("catalog unavailable, using static fallback")
		return s.fallbackCopy()
	}

	var c model.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.WithError(err).Warn("dropping unreadable cached catalog")
		_ = s.cache.Delete(ctx, catalogCacheKey)
		return s.fallbackCopy()
	}
	return &c
}

func (s *CatalogService) fallbackCopy() *model.Catalog {
	fb := s.fallback
	return &fb
}

func (s *CatalogService) fetch(ctx context.Context) (*model.Catalog, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	if len(products) == 0 {
		return nil, errors.New("catalog has no products")
	}
	types, err := s.repo.ListAccountTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load account types: %w", err)
	}
	durs, err := s.repo.ListDurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load durations: %w", err)
	}

	if len(types) == 0 {
		types = s.fallback.AccountTypes
	}
	if len(durs) == 0 {
		durs = s.fallback.Durations
	}
	return &model.Catalog{Products: products, AccountTypes: types, Durations: durs}, nil
}

// Invalidate drops the cached catalog.
func (s *CatalogService) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, catalogCacheKey)
}
