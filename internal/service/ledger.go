package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"aiaxstock/internal/duration"
	"aiaxstock/internal/model"
	"aiaxstock/internal/repository"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	// MaxPage keeps (page-1)*limit far from integer overflow.
	MaxPage = 100000
	// MaxExtendDays bounds a single expiry extension.
	MaxExtendDays = duration.MaxDays
)

// LedgerQuery narrows a ledger listing. Page starts at 1. Limit 0 with
// All set returns every visible sale.
type LedgerQuery struct {
	ProductKey string
	Buyer      string
	Page       int
	Limit      int
	All        bool
}

// LedgerService exposes the sales visible to a session: an Owner sees
// sales from their lots, an Admin sees sales they checked out.
type LedgerService struct {
	sales repository.SaleRepository
	now   func() time.Time
	log   *logrus.Entry
}

// NewLedgerService creates a ledger service.
func NewLedgerService(sales repository.SaleRepository) *LedgerService {
	return &LedgerService{
		sales: sales,
		now:   time.Now,
		log:   logrus.WithField("component", "ledger"),
	}
}

// visible reports whether sale belongs to the session's ledger.
func visible(session *model.Session, sale *model.Sale) bool {
	if session.IsOwner() {
		return sale.OwnerID == session.Identifier
	}
	return sale.AdminID == session.Identifier
}

func scopeFilter(session *model.Session) model.SaleFilter {
	if session.IsOwner() {
		return model.SaleFilter{OwnerID: session.Identifier}
	}
	return model.SaleFilter{AdminID: session.Identifier}
}

// List returns the session's sales, newest first, and the total count.
// The normalized query is returned for pagination metadata.
func (s *LedgerService) List(ctx context.Context, session *model.Session, q LedgerQuery) ([]model.Sale, int64, LedgerQuery, error) {
	filter := scopeFilter(session)
	filter.ProductKey = q.ProductKey
	filter.BuyerLike = q.Buyer

	if !q.All {
		if q.Page < 1 {
			q.Page = 1
		}
		if q.Page > MaxPage {
			return nil, 0, q, invalid("page", fmt.Sprintf("must be at most %d", MaxPage))
		}
		if q.Limit <= 0 {
			q.Limit = DefaultPageSize
		}
		if q.Limit > MaxPageSize {
			q.Limit = MaxPageSize
		}
		filter.Limit = q.Limit
		filter.Offset = (q.Page - 1) * q.Limit
	}

	sales, total, err := s.sales.ListSales(ctx, filter)
	if err != nil {
		return nil, 0, q, err
	}

	out := make([]model.Sale, 0, len(sales))
	for i := range sales {
		if visible(session, &sales[i]) {
			out = append(out, sales[i])
		}
	}
	return out, total, q, nil
}

// Export returns every visible sale matching q as CSV rows.
func (s *LedgerService) Export(ctx context.Context, session *model.Session, q LedgerQuery) ([]string, [][]string, error) {
	q.All = true
	sales, _, _, err := s.List(ctx, session, q)
	if err != nil {
		return nil, nil, err
	}
	rows := make([][]string, len(sales))
	for i := range sales {
		rows[i] = sales[i].Row()
	}
	return model.SaleColumns, rows, nil
}

// visibleSale loads a sale and checks the session may see it.
func (s *LedgerService) visibleSale(ctx context.Context, session *model.Session, id string) (*model.Sale, error) {
	sale, err := s.sales.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(session, sale) {
		return nil, ErrForbidden
	}
	return sale, nil
}

// Update edits the post hoc fields of a visible sale.
func (s *LedgerService) Update(ctx context.Context, session *model.Session, id string, patch model.SalePatch) (*model.Sale, error) {
	if patch.Empty() {
		return nil, invalid("body", "nothing to update")
	}
	if patch.Price != nil && patch.Price.Valid && patch.Price.Decimal.IsNegative() {
		return nil, invalid("price", "must not be negative")
	}
	if _, err := s.visibleSale(ctx, session, id); err != nil {
		return nil, err
	}
	if err := s.sales.UpdateSale(ctx, id, patch); err != nil {
		return nil, err
	}
	s.log.WithField("sale_id", id).Info("sale updated")
	return s.sales.GetSale(ctx, id)
}

// ExtendExpiry pushes a sale's expiry out by days, starting from the
// current expiry or from now when the sale has none.
func (s *LedgerService) ExtendExpiry(ctx context.Context, session *model.Session, id string, days int) (*model.Sale, error) {
	if days < 1 || days > MaxExtendDays {
		return nil, invalid("days", "must be between 1 and 3650")
	}
	sale, err := s.visibleSale(ctx, session, id)
	if err != nil {
		return nil, err
	}

	base := s.now().UTC()
	if sale.ExpiresAt != nil {
		base = *sale.ExpiresAt
	}
	expires := base.AddDate(0, 0, days)
	if err := s.sales.UpdateSale(ctx, id, model.SalePatch{ExpiresAt: &expires}); err != nil {
		return nil, err
	}
	return s.sales.GetSale(ctx, id)
}
