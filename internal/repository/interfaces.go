package repository

import (
	"context"
	"errors"
	"time"

	"aiaxstock/internal/model"
)

var (
	// ErrNotFound is returned when a lot or sale does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoStock is returned when no lot matches a checkout request.
	ErrNoStock = errors.New("no matching stock")
	// ErrUnsupported is returned by optional operations a backend lacks.
	ErrUnsupported = errors.New("operation not supported by store")
	// ErrOutcomeUnknown is returned by GetAccount when the store may have
	// committed the checkout before the error reached the caller.
	ErrOutcomeUnknown = errors.New("checkout outcome unknown")
	// ErrContention is returned by GetAccount when every locked read found
	// the pool drained by concurrent checkouts while stock remained.
	ErrContention = errors.New("checkout contention")
)

// StockRepository defines inventory lot data access methods.
type StockRepository interface {
	// ListLots returns lots matching filter, oldest first.
	ListLots(ctx context.Context, filter model.LotFilter) ([]model.InventoryLot, error)

	// StockSummary returns the precomputed per-pool totals for filter.
	// Backends without a summary view return ErrUnsupported.
	StockSummary(ctx context.Context, filter model.LotFilter) ([]model.StockSummary, error)

	// GetLot returns a lot by id or ErrNotFound.
	GetLot(ctx context.Context, id string) (*model.InventoryLot, error)

	// CreateLot inserts a new lot.
	CreateLot(ctx context.Context, lot *model.InventoryLot) error

	// UpdateLot applies patch to a lot. Returns ErrNotFound if it does not exist.
	UpdateLot(ctx context.Context, id string, patch model.LotPatch) error

	// DeleteLot removes a lot. Returns ErrNotFound if it does not exist.
	DeleteLot(ctx context.Context, id string) error

	// OldestAvailableLot returns the oldest non-archived lot with quantity > 0
	// for key, or ErrNoStock.
	OldestAvailableLot(ctx context.Context, key model.StockKey) (*model.InventoryLot, error)

	// CompareAndSwapQuantity sets quantity to next only if it currently equals
	// current. It reports whether a row was changed.
	CompareAndSwapQuantity(ctx context.Context, id string, current, next int) (bool, error)
}

// SoldCounter is implemented by stores that can count non-voided sales per
// pool. OwnerID, ProductKey, AccountType and DurationCode of filter apply.
type SoldCounter interface {
	SoldCounts(ctx context.Context, filter model.LotFilter) (map[model.StockKey]int, error)
}

// SaleRepository defines sale ledger data access methods.
type SaleRepository interface {
	// CreateSale inserts a sale record.
	CreateSale(ctx context.Context, sale *model.Sale) error

	// ListSales returns sales matching filter, newest first, and the total
	// number of matches ignoring Limit/Offset.
	ListSales(ctx context.Context, filter model.SaleFilter) ([]model.Sale, int64, error)

	// GetSale returns a sale by id or ErrNotFound.
	GetSale(ctx context.Context, id string) (*model.Sale, error)

	// UpdateSale applies patch to a sale. Returns ErrNotFound if it does not exist.
	UpdateSale(ctx context.Context, id string, patch model.SalePatch) error
}

// CatalogRepository reads the catalog reference data.
type CatalogRepository interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListAccountTypes(ctx context.Context) ([]model.AccountType, error)
	ListDurations(ctx context.Context) ([]model.Duration, error)
}

// CheckoutProcedure is the store-side atomic checkout: pick the oldest
// matching lot, decrement it, record the sale and return the credentials,
// all in one transaction. Returns ErrNoStock when nothing matches.
type CheckoutProcedure interface {
	GetAccount(ctx context.Context, adminID string, key model.StockKey, now time.Time) (*model.Checkout, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	StockRepository
	SaleRepository
	CatalogRepository

	// GetStats returns backend statistics for the system endpoint.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the underlying connection.
	Close() error
}

// CatalogSeeder is implemented by stores that own their catalog tables and
// can be filled with defaults on first start.
type CatalogSeeder interface {
	SeedCatalog(ctx context.Context, c model.Catalog) error
}
