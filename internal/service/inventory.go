package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"aiaxstock/internal/model"
	"aiaxstock/internal/repository"
	"aiaxstock/pkg/uid"
)

// Scope selects which lots a summary covers.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeMine      Scope = "mine"
	ScopeAvailable Scope = "available"
)

// ParseScope parses a scope name. Empty means available.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeAvailable:
		return ScopeAvailable, nil
	case ScopeAll:
		return ScopeAll, nil
	case ScopeMine:
		return ScopeMine, nil
	}
	return "", invalid("scope", "must be one of: all mine available")
}

// PeekLimit caps how many lot ids Peek returns.
const PeekLimit = 20

// Aggregate groups lots by (product, account type, duration) and sums
// their quantities. Negative quantities count as zero. With availableOnly,
// archived and empty lots are skipped and zero totals are dropped.
// The result is sorted by product, account type, duration.
func Aggregate(lots []model.InventoryLot, availableOnly bool) []model.StockSummary {
	totals := make(map[model.StockKey]int)
	for i := range lots {
		lot := &lots[i]
		if availableOnly && !lot.Available() {
			continue
		}
		qty := lot.Quantity
		if qty < 0 {
			qty = 0
		}
		totals[lot.Key()] += qty
	}

	out := make([]model.StockSummary, 0, len(totals))
	for k, total := range totals {
		if availableOnly && total == 0 {
			continue
		}
		out = append(out, model.StockSummary{
			ProductKey:   k.ProductKey,
			AccountType:  k.AccountType,
			DurationCode: k.DurationCode,
			TotalQty:     total,
		})
	}
	sortSummary(out)
	return out
}

func sortSummary(rows []model.StockSummary) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ProductKey != b.ProductKey {
			return a.ProductKey < b.ProductKey
		}
		if a.AccountType != b.AccountType {
			return a.AccountType < b.AccountType
		}
		return a.DurationCode < b.DurationCode
	})
}

// AddStockInput is a new lot as entered by an Owner.
type AddStockInput struct {
	ProductKey     string     `json:"product_key" validate:"required"`
	AccountType    string     `json:"account_type" validate:"required"`
	DurationCode   string     `json:"duration_code" validate:"required,duration"`
	Quantity       int        `json:"quantity" validate:"min=1"`
	Email          string     `json:"email"`
	Password       string     `json:"password"`
	ProfileName    string     `json:"profile_name"`
	PIN            string     `json:"pin"`
	Notes          string     `json:"notes"`
	PremiumedAt    *time.Time `json:"premiumed_at"`
	AutoExpireDays int        `json:"auto_expire_days" validate:"min=0,max=3650"`
}

// PeekEntry is an available lot without its credentials.
type PeekEntry struct {
	ID           string    `json:"id"`
	DurationCode string    `json:"duration_code"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
}

// SummaryQuery selects the lots a summary covers.
type SummaryQuery struct {
	Scope       Scope
	ProductKey  string
	AccountType string
}

// InventoryService handles inventory summaries and Owner lot management.
type InventoryService struct {
	repo repository.StockRepository
	sold repository.SoldCounter
	now  func() time.Time
	log  *logrus.Entry
}

// NewInventoryService creates a new inventory service. Sold counts are
// filled in when repo also implements repository.SoldCounter.
func NewInventoryService(repo repository.StockRepository) *InventoryService {
	sold, _ := repo.(repository.SoldCounter)
	return &InventoryService{
		repo: repo,
		sold: sold,
		now:  time.Now,
		log:  logrus.WithField("component", "inventory"),
	}
}

// Summary returns per-pool totals for q. The store's precomputed
// summary is preferred; any error there falls back to aggregating raw lots.
func (s *InventoryService) Summary(ctx context.Context, session *model.Session, q SummaryQuery) ([]model.StockSummary, error) {
	filter := model.LotFilter{
		ProductKey:  strings.TrimSpace(q.ProductKey),
		AccountType: strings.TrimSpace(q.AccountType),
	}
	switch q.Scope {
	case ScopeMine:
		filter.OwnerID = session.Identifier
	case ScopeAvailable:
		filter.AvailableOnly = true
	}

	rows, err := s.repo.StockSummary(ctx, filter)
	if err != nil {
		if !errors.Is(err, repository.ErrUnsupported) {
			s.log.WithError(err).Warn("summary view failed, aggregating lots")
		}
		lots, err := s.repo.ListLots(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to load lots: %w", err)
		}
		rows = Aggregate(lots, filter.AvailableOnly)
	}
	s.fillSold(ctx, filter, rows)
	return rows, nil
}

// fillSold sets Sold on each row. A failed count leaves the rows at zero.
func (s *InventoryService) fillSold(ctx context.Context, filter model.LotFilter, rows []model.StockSummary) {
	if s.sold == nil || len(rows) == 0 {
		return
	}
	counts, err := s.sold.SoldCounts(ctx, filter)
	if err != nil {
		s.log.WithError(err).Warn("failed to count sales for summary")
		return
	}
	for i := range rows {
		rows[i].Sold = counts[rows[i].Key()]
	}
}

// Peek lists up to PeekLimit available lots for a product and account
// type, oldest first.
func (s *InventoryService) Peek(ctx context.Context, productKey, accountType string) ([]PeekEntry, error) {
	if strings.TrimSpace(productKey) == "" {
		return nil, invalid("product_key", "is required")
	}
	if strings.TrimSpace(accountType) == "" {
		return nil, invalid("account_type", "is required")
	}

	lots, err := s.repo.ListLots(ctx, model.LotFilter{
		ProductKey:    productKey,
		AccountType:   accountType,
		AvailableOnly: true,
		Limit:         PeekLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]PeekEntry, 0, len(lots))
	for _, l := range lots {
		out = append(out, PeekEntry{ID: l.ID, DurationCode: l.DurationCode, Quantity: l.Quantity, CreatedAt: l.CreatedAt})
	}
	return out, nil
}

// AddStock creates a lot owned by the session's Owner.
func (s *InventoryService) AddStock(ctx context.Context, session *model.Session, in AddStockInput) (*model.InventoryLot, error) {
	if !session.IsOwner() {
		return nil, ErrForbidden
	}
	in.ProductKey = strings.TrimSpace(in.ProductKey)
	in.AccountType = strings.TrimSpace(in.AccountType)
	in.DurationCode = strings.TrimSpace(in.DurationCode)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	lot := &model.InventoryLot{
		ID:             uid.New(),
		OwnerID:        session.Identifier,
		ProductKey:     in.ProductKey,
		AccountType:    in.AccountType,
		DurationCode:   in.DurationCode,
		Quantity:       in.Quantity,
		Email:          in.Email,
		Password:       in.Password,
		ProfileName:    in.ProfileName,
		PIN:            in.PIN,
		Notes:          in.Notes,
		CreatedAt:      s.now().UTC(),
		PremiumedAt:    in.PremiumedAt,
		AutoExpireDays: in.AutoExpireDays,
	}
	if err := s.repo.CreateLot(ctx, lot); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"lot_id":   lot.ID,
		"product":  lot.ProductKey,
		"quantity": lot.Quantity,
	}).Info("stock added")
	return lot, nil
}

// ownLot loads a lot and checks the session's Owner owns it.
func (s *InventoryService) ownLot(ctx context.Context, session *model.Session, id string) (*model.InventoryLot, error) {
	if !session.IsOwner() {
		return nil, ErrForbidden
	}
	lot, err := s.repo.GetLot(ctx, id)
	if err != nil {
		return nil, err
	}
	if lot.OwnerID != session.Identifier {
		return nil, ErrForbidden
	}
	return lot, nil
}

// EditLot applies patch to a lot and returns the updated lot.
func (s *InventoryService) EditLot(ctx context.Context, session *model.Session, id string, patch model.LotPatch) (*model.InventoryLot, error) {
	if patch.Empty() {
		return nil, invalid("body", "nothing to update")
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if _, err := s.ownLot(ctx, session, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLot(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.repo.GetLot(ctx, id)
}

// Archive hides a lot from checkout without deleting it.
func (s *InventoryService) Archive(ctx context.Context, session *model.Session, id string) (*model.InventoryLot, error) {
	yes := true
	return s.EditLot(ctx, session, id, model.LotPatch{Archived: &yes})
}

// Unarchive makes an archived lot sellable again.
func (s *InventoryService) Unarchive(ctx context.Context, session *model.Session, id string) (*model.InventoryLot, error) {
	no := false
	return s.EditLot(ctx, session, id, model.LotPatch{Archived: &no})
}

// DeleteLot removes a lot.
func (s *InventoryService) DeleteLot(ctx context.Context, session *model.Session, id string) error {
	if _, err := s.ownLot(ctx, session, id); err != nil {
		return err
	}
	if err := s.repo.DeleteLot(ctx, id); err != nil {
		return err
	}
	s.log.WithField("lot_id", id).Info("lot deleted")
	return nil
}

// ListLots returns the session Owner's lots, oldest first.
func (s *InventoryService) ListLots(ctx context.Context, session *model.Session, filter model.LotFilter) ([]model.InventoryLot, error) {
	if !session.IsOwner() {
		return nil, ErrForbidden
	}
	filter.OwnerID = session.Identifier
	return s.repo.ListLots(ctx, filter)
}

// ExportLots returns the session Owner's lots as CSV rows.
func (s *InventoryService) ExportLots(ctx context.Context, session *model.Session) ([]string, [][]string, error) {
	lots, err := s.ListLots(ctx, session, model.LotFilter{})
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]string, len(lots))
	for i := range lots {
		rows[i] = lots[i].Row()
	}
	return model.LotColumns, rows, nil
}

// Purge archives the session Owner's expired lots.
func (s *InventoryService) Purge(ctx context.Context, session *model.Session) (int, error) {
	if !session.IsOwner() {
		return 0, ErrForbidden
	}
	return s.PurgeOwner(ctx, session.Identifier, s.now())
}

// PurgeOwner archives every non-archived lot of ownerID with stock left
// whose auto-expire window has passed at now. It returns how many lots
// were archived.
func (s *InventoryService) PurgeOwner(ctx context.Context, ownerID string, now time.Time) (int, error) {
	lots, err := s.repo.ListLots(ctx, model.LotFilter{OwnerID: ownerID, AvailableOnly: true})
	if err != nil {
		return 0, fmt.Errorf("failed to list lots: %w", err)
	}

	yes := true
	archived := 0
	for i := range lots {
		if !lots[i].Expired(now) {
			continue
		}
		if err := s.repo.UpdateLot(ctx, lots[i].ID, model.LotPatch{Archived: &yes}); err != nil {
			return archived, fmt.Errorf("failed to archive lot %s: %w", lots[i].ID, err)
		}
		archived++
	}

	if archived > 0 {
		s.log.WithFields(logrus.Fields{"owner": ownerID, "archived": archived}).Info("expired lots archived")
	}
	return archived, nil
}
