package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"aiaxstock/internal/model"
	"aiaxstock/internal/repository"
	"aiaxstock/pkg/uid"
)

// memStore is an in-memory store for service tests.
type memStore struct {
	mu    sync.Mutex
	lots  map[string]*model.InventoryLot
	sales map[string]*model.Sale

	products []model.Product

	summaryErr    error
	soldErr       error
	catalogErr    error
	createSaleErr error
	catalogDelay  time.Duration

	// afterOldest runs after OldestAvailableLot has read a candidate.
	afterOldest func(lot model.InventoryLot)

	casCalls     int
	summaryCalls int
	catalogCalls int
}

func newMemStore() *memStore {
	return &memStore{
		lots:  make(map[string]*model.InventoryLot),
		sales: make(map[string]*model.Sale),
	}
}

func (m *memStore) put(lot model.InventoryLot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := lot
	m.lots[lot.ID] = &l
}

func (m *memStore) quantity(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lots[id].Quantity
}

func (m *memStore) saleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sales)
}

func matchLot(l *model.InventoryLot, f model.LotFilter) bool {
	if f.OwnerID != "" && l.OwnerID != f.OwnerID {
		return false
	}
	if f.ProductKey != "" && l.ProductKey != f.ProductKey {
		return false
	}
	if f.AccountType != "" && l.AccountType != f.AccountType {
		return false
	}
	if f.DurationCode != "" && l.DurationCode != f.DurationCode {
		return false
	}
	if f.AvailableOnly && !l.Available() {
		return false
	}
	return true
}

func (m *memStore) ListLots(_ context.Context, f model.LotFilter) ([]model.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.InventoryLot{}
	for _, l := range m.lots {
		if matchLot(l, f) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) StockSummary(ctx context.Context, f model.LotFilter) ([]model.StockSummary, error) {
	m.mu.Lock()
	m.summaryCalls++
	err := m.summaryErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	lots, _ := m.ListLots(ctx, f)
	return Aggregate(lots, f.AvailableOnly), nil
}

func (m *memStore) SoldCounts(_ context.Context, f model.LotFilter) (map[model.StockKey]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.soldErr != nil {
		return nil, m.soldErr
	}
	out := make(map[model.StockKey]int)
	for _, s := range m.sales {
		switch {
		case s.Voided,
			f.OwnerID != "" && s.OwnerID != f.OwnerID,
			f.ProductKey != "" && s.ProductKey != f.ProductKey,
			f.AccountType != "" && s.AccountType != f.AccountType,
			f.DurationCode != "" && s.DurationCode != f.DurationCode:
			continue
		}
		out[model.StockKey{ProductKey: s.ProductKey, AccountType: s.AccountType, DurationCode: s.DurationCode}]++
	}
	return out, nil
}

func (m *memStore) GetLot(_ context.Context, id string) (*model.InventoryLot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) CreateLot(_ context.Context, lot *model.InventoryLot) error {
	m.put(*lot)
	return nil
}

func (m *memStore) UpdateLot(_ context.Context, id string, p model.LotPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lots[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.PremiumedAt != nil {
		l.PremiumedAt = p.PremiumedAt
	}
	if p.AutoExpireDays != nil {
		l.AutoExpireDays = *p.AutoExpireDays
	}
	if p.Archived != nil {
		l.Archived = *p.Archived
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
	return nil
}

func (m *memStore) DeleteLot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lots[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.lots, id)
	return nil
}

func (m *memStore) OldestAvailableLot(ctx context.Context, key model.StockKey) (*model.InventoryLot, error) {
	lots, _ := m.ListLots(ctx, model.LotFilter{
		ProductKey: key.ProductKey, AccountType: key.AccountType, DurationCode: key.DurationCode,
		AvailableOnly: true, Limit: 1,
	})
	if len(lots) == 0 {
		return nil, repository.ErrNoStock
	}
	if m.afterOldest != nil {
		m.afterOldest(lots[0])
	}
	return &lots[0], nil
}

func (m *memStore) CompareAndSwapQuantity(_ context.Context, id string, current, next int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++
	l, ok := m.lots[id]
	if !ok || next < 0 || l.Quantity != current {
		return false, nil
	}
	l.Quantity = next
	return true, nil
}

func (m *memStore) CreateSale(_ context.Context, s *model.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createSaleErr != nil {
		return m.createSaleErr
	}
	cp := *s
	m.sales[s.ID] = &cp
	return nil
}

func (m *memStore) ListSales(_ context.Context, f model.SaleFilter) ([]model.Sale, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Sale{}
	for _, s := range m.sales {
		if f.OwnerID != "" && s.OwnerID != f.OwnerID {
			continue
		}
		if f.AdminID != "" && s.AdminID != f.AdminID {
			continue
		}
		if f.ProductKey != "" && s.ProductKey != f.ProductKey {
			continue
		}
		if f.BuyerLike != "" && !strings.Contains(strings.ToLower(s.BuyerLink), strings.ToLower(f.BuyerLike)) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if f.Limit > 0 {
		if f.Offset >= len(out) {
			out = out[:0]
		} else {
			out = out[f.Offset:]
			if len(out) > f.Limit {
				out = out[:f.Limit]
			}
		}
	}
	return out, total, nil
}

func (m *memStore) GetSale(_ context.Context, id string) (*model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) UpdateSale(_ context.Context, id string, p model.SalePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.BuyerLink != nil {
		s.BuyerLink = *p.BuyerLink
	}
	if p.Price != nil {
		s.Price = *p.Price
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		s.ExpiresAt = &t
	}
	if p.Warranty != nil {
		s.Warranty = *p.Warranty
	}
	if p.Voided != nil {
		s.Voided = *p.Voided
	}
	return nil
}

func (m *memStore) waitCatalog(ctx context.Context) error {
	m.mu.Lock()
	m.catalogCalls++
	delay, err := m.catalogDelay, m.catalogErr
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *memStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	if err := m.waitCatalog(ctx); err != nil {
		return nil, err
	}
	return m.products, nil
}

func (m *memStore) ListAccountTypes(context.Context) ([]model.AccountType, error) {
	return []model.AccountType{{Label: "shared account"}}, nil
}

func (m *memStore) ListDurations(context.Context) ([]model.Duration, error) {
	return nil, nil
}

// atomicProc is a store-side procedure over memStore.
type atomicProc struct {
	store *memStore
	err   error
	calls int
}

func (p *atomicProc) GetAccount(ctx context.Context, adminID string, key model.StockKey, now time.Time) (*model.Checkout, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	var best *model.InventoryLot
	for _, l := range p.store.lots {
		if l.Key() != key || !l.Available() {
			continue
		}
		if best == nil || l.CreatedAt.Before(best.CreatedAt) {
			best = l
		}
	}
	if best == nil {
		return nil, repository.ErrNoStock
	}
	best.Quantity--
	sale := model.NewSale(uid.New(), best, adminID, now)
	p.store.sales[sale.ID] = sale
	return model.CheckoutFromSale(sale), nil
}

var errStoreDown = errors.New("store unreachable")
