package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"aiaxstock/internal/model"
	"aiaxstock/internal/repository"
	"aiaxstock/pkg/uid"
)

// CheckoutInput selects the pool to take one unit from. BuyerLink and
// Price are optional and recorded on the sale.
type CheckoutInput struct {
	ProductKey   string           `json:"product_key" validate:"required"`
	AccountType  string           `json:"account_type" validate:"required"`
	DurationCode string           `json:"duration_code" validate:"required,duration"`
	BuyerLink    string           `json:"buyer_link" validate:"max=2048"`
	Price        *decimal.Decimal `json:"price"`
}

// Key returns the pool key of the input.
func (in CheckoutInput) Key() model.StockKey {
	return model.StockKey{ProductKey: in.ProductKey, AccountType: in.AccountType, DurationCode: in.DurationCode}
}

// CheckoutConfig tunes the checkout workflow.
type CheckoutConfig struct {
	// Atomic enables the store-side procedure when the store provides one.
	Atomic bool
	// MaxAttempts bounds the compare-and-swap loop of the fallback path.
	MaxAttempts int
}

// CheckoutService hands out one unit of stock and records the sale.
type CheckoutService struct {
	stock       repository.StockRepository
	sales       repository.SaleRepository
	proc        repository.CheckoutProcedure
	maxAttempts int
	now         func() time.Time
	tracer      trace.Tracer
	log         *logrus.Entry
}

// NewCheckoutService creates a checkout service. proc may be nil, in which
// case every checkout takes the compare-and-swap path.
func NewCheckoutService(stock repository.StockRepository, sales repository.SaleRepository, proc repository.CheckoutProcedure, cfg CheckoutConfig) *CheckoutService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if !cfg.Atomic {
		proc = nil
	}
	return &CheckoutService{
		stock:       stock,
		sales:       sales,
		proc:        proc,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
		tracer:      otel.Tracer("aiaxstock/checkout"),
		log:         logrus.WithField("component", "checkout"),
	}
}

// Checkout takes one unit from the oldest matching lot for the session's
// identifier. repository.ErrNoStock means nothing matched and no sale was
// recorded.
func (s *CheckoutService) Checkout(ctx context.Context, session *model.Session, in CheckoutInput) (*model.Checkout, error) {
	in.ProductKey = strings.TrimSpace(in.ProductKey)
	in.AccountType = strings.TrimSpace(in.AccountType)
	in.DurationCode = strings.TrimSpace(in.DurationCode)
	in.BuyerLink = strings.TrimSpace(in.BuyerLink)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Price != nil && in.Price.IsNegative() {
		return nil, invalid("price", "must not be negative")
	}

	ctx, span := s.tracer.Start(ctx, "checkout", trace.WithAttributes(
		attribute.String("stock.product", in.ProductKey),
		attribute.String("stock.account_type", in.AccountType),
		attribute.String("stock.duration", in.DurationCode),
		attribute.String("session.role", string(session.Role)),
	))
	defer span.End()

	log := s.log.WithFields(logrus.Fields{
		"admin":    session.Identifier,
		"product":  in.ProductKey,
		"type":     in.AccountType,
		"duration": in.DurationCode,
	})

	co, path, err := s.checkout(ctx, session.Identifier, in, log)
	span.SetAttributes(attribute.String("checkout.path", path))
	if err != nil {
		if errors.Is(err, repository.ErrNoStock) {
			span.SetStatus(codes.Ok, "no stock")
			log.Info("no matching stock")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.WithError(err).Error("checkout failed")
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("sale.id", co.SaleID))
	log.WithFields(logrus.Fields{"sale_id": co.SaleID, "path": path}).Info("unit dispensed")
	return co, nil
}

func (s *CheckoutService) checkout(ctx context.Context, adminID string, in CheckoutInput, log *logrus.Entry) (*model.Checkout, string, error) {
	if s.proc != nil {
		co, err := s.proc.GetAccount(ctx, adminID, in.Key(), s.now())
		switch {
		case err == nil:
			s.recordExtras(ctx, co.SaleID, in, log)
			return co, "atomic", nil
		case errors.Is(err, repository.ErrNoStock):
			return nil, "atomic", err
		case errors.Is(err, repository.ErrContention):
			return nil, "atomic", ErrDecrementFailed
		case outcomeUnknown(ctx, err):
			// a second unit must not be handed out for a sale that may exist
			return nil, "atomic", fmt.Errorf("%w: %v", ErrCheckoutUnconfirmed, err)
		default:
			log.WithError(err).Warn("atomic checkout unavailable, using fallback")
		}
	}

	co, err := s.fallback(ctx, adminID, in)
	return co, "fallback", err
}

// outcomeUnknown reports whether the store may have committed a checkout
// that returned err.
func outcomeUnknown(ctx context.Context, err error) bool {
	return errors.Is(err, repository.ErrOutcomeUnknown) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}

// fallback reserves a unit with a bounded compare-and-swap loop and then
// inserts the sale, giving the unit back if the insert fails.
func (s *CheckoutService) fallback(ctx context.Context, adminID string, in CheckoutInput) (*model.Checkout, error) {
	lot, err := s.reserve(ctx, in.Key())
	if err != nil {
		return nil, err
	}

	sale := model.NewSale(uid.New(), lot, adminID, s.now().UTC())
	sale.BuyerLink = in.BuyerLink
	if in.Price != nil {
		sale.Price = decimal.NewNullDecimal(*in.Price)
	}

	if err := s.sales.CreateSale(ctx, sale); err != nil {
		s.release(ctx, lot.ID)
		return nil, fmt.Errorf("failed to record sale: %w", err)
	}
	return model.CheckoutFromSale(sale), nil
}

// reserve decrements the oldest available lot by one. The returned lot
// carries the quantity observed before the decrement.
func (s *CheckoutService) reserve(ctx context.Context, key model.StockKey) (*model.InventoryLot, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lot, err := s.stock.OldestAvailableLot(ctx, key)
		if err != nil {
			return nil, err
		}

		ok, err := s.stock.CompareAndSwapQuantity(ctx, lot.ID, lot.Quantity, lot.Quantity-1)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement lot: %w", err)
		}
		if ok {
			return lot, nil
		}
		s.log.WithFields(logrus.Fields{"lot_id": lot.ID, "attempt": attempt}).Debug("quantity changed underneath, retrying")
	}
	return nil, ErrDecrementFailed
}

// release gives back a unit taken by reserve.
func (s *CheckoutService) release(ctx context.Context, lotID string) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lot, err := s.stock.GetLot(ctx, lotID)
		if err != nil {
			break
		}
		ok, err := s.stock.CompareAndSwapQuantity(ctx, lot.ID, lot.Quantity, lot.Quantity+1)
		if err != nil {
			break
		}
		if ok {
			return
		}
	}
	s.log.WithField("lot_id", lotID).Error("failed to restore unit after sale insert error")
}

// recordExtras stores the optional buyer link and price on a sale made by
// the store-side procedure. The unit is already handed out, so failures
// are only logged.
func (s *CheckoutService) recordExtras(ctx context.Context, saleID string, in CheckoutInput, log *logrus.Entry) {
	if saleID == "" || (in.BuyerLink == "" && in.Price == nil) {
		return
	}
	patch := model.SalePatch{}
	if in.BuyerLink != "" {
		patch.BuyerLink = &in.BuyerLink
	}
	if in.Price != nil {
		p := decimal.NewNullDecimal(*in.Price)
		patch.Price = &p
	}
	if err := s.sales.UpdateSale(ctx, saleID, patch); err != nil {
		log.WithError(err).WithField("sale_id", saleID).Warn("failed to record buyer details")
	}
}
