package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"aiaxstock/internal/model"
)

// RESTStore talks to a hosted PostgREST endpoint. Tables, the summary
// view and the get_account function live on the server side.
type RESTStore struct {
	client  *resty.Client
	baseURL string
	log     *logrus.Entry
}

// RESTError is a non-2xx answer from the hosted store.
type RESTError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *RESTError) Error() string {
	return fmt.Sprintf("store returned %d: %s", e.Status, e.Message)
}

// NewRESTStore creates a client for baseURL authenticated with key.
func NewRESTStore(baseURL, key string, timeout time.Duration) *RESTStore {
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL+"/rest/v1").
		SetHeader("apikey", key).
		SetAuthToken(key).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(0)

	return &RESTStore{
		client:  client,
		baseURL: baseURL,
		log:     logrus.WithField("component", "rest-store"),
	}
}

func (s *RESTStore) request(ctx context.Context) *resty.Request {
	return s.client.R().SetContext(ctx)
}

func checkResponse(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to %s: %w", what, &RESTError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())})
	}
	return nil
}

func lotQuery(f model.LotFilter) url.Values {
	q := url.Values{}
	q.Set("select", "*")
	if f.OwnerID != "" {
		q.Set("owner_id", "eq."+f.OwnerID)
	}
	if f.ProductKey != "" {
		q.Set("product_key", "eq."+f.ProductKey)
	}
	if f.AccountType != "" {
		q.Set("account_type", "eq."+f.AccountType)
	}
	if f.DurationCode != "" {
		q.Set("duration_code", "eq."+f.DurationCode)
	}
	if f.AvailableOnly {
		q.Set("archived", "is.false")
		q.Set("quantity", "gt.0")
	}
	return q
}

// ListLots returns lots matching filter, oldest first.
func (s *RESTStore) ListLots(ctx context.Context, filter model.LotFilter) ([]model.InventoryLot, error) {
	q := lotQuery(filter)
	q.Set("order", "created_at.asc,id.asc")
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	lots := []model.InventoryLot{}
	resp, err := s.request(ctx).SetQueryParamsFromValues(q).SetResult(&lots).Get("/stocks")
	if err := checkResponse(resp, err, "list lots"); err != nil {
		return nil, err
	}
	return lots, nil
}

// StockSummary reads the v_stock_summary view. The view only carries
// available stock, so any other filter is unsupported.
func (s *RESTStore) StockSummary(ctx context.Context, filter model.LotFilter) ([]model.StockSummary, error) {
	if !filter.AvailableOnly {
		return nil, ErrUnsupported
	}
	q := url.Values{}
	q.Set("select", "product_key,account_type,duration_code,total_qty")
	q.Set("order", "product_key.asc,account_type.asc,duration_code.asc")
	if filter.OwnerID != "" {
		q.Set("owner_id", "eq."+filter.OwnerID)
	}
	if filter.ProductKey != "" {
		q.Set("product_key", "eq."+filter.ProductKey)
	}
	if filter.AccountType != "" {
		q.Set("account_type", "eq."+filter.AccountType)
	}

	rows := []model.StockSummary{}
	resp, err := s.request(ctx).SetQueryParamsFromValues(q).SetResult(&rows).Get("/v_stock_summary")
	if err := checkResponse(resp, err, "read stock summary"); err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, r := range rows {
		if r.TotalQty > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

// SoldCounts reads the pool columns of non-voided sales and counts them.
func (s *RESTStore) SoldCounts(ctx context.Context, filter model.LotFilter) (map[model.StockKey]int, error) {
	q := url.Values{}
	q.Set("select", "product_key,account_type,duration_code")
	q.Set("voided", "is.false")
	if filter.OwnerID != "" {
		q.Set("owner_id", "eq."+filter.OwnerID)
	}
	if filter.ProductKey != "" {
		q.Set("product_key", "eq."+filter.ProductKey)
	}
	if filter.AccountType != "" {
		q.Set("account_type", "eq."+filter.AccountType)
	}
	if filter.DurationCode != "" {
		q.Set("duration_code", "eq."+filter.DurationCode)
	}

	keys := []model.StockKey{}
	resp, err := s.request(ctx).SetQueryParamsFromValues(q).SetResult(&keys).Get("/sales")
	if err := checkResponse(resp, err, "count sales"); err != nil {
		return nil, err
	}

	out := make(map[model.StockKey]int)
	for _, k := range keys {
		out[k]++
	}
	return out, nil
}

// GetLot returns a lot by id.
func (s *RESTStore) GetLot(ctx context.Context, id string) (*model.InventoryLot, error) {
	lots := []model.InventoryLot{}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{"select": "*", "id": "eq." + id, "limit": "1"}).
		SetResult(&lots).
		Get("/stocks")
	if err := checkResponse(resp, err, "get lot"); err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, ErrNotFound
	}
	return &lots[0], nil
}

// CreateLot inserts a new lot.
func (s *RESTStore) CreateLot(ctx context.Context, lot *model.InventoryLot) error {
	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody([]*model.InventoryLot{lot}).
		Post("/stocks")
	return checkResponse(resp, err, "create lot")
}

// patchRows sends a PATCH and returns how many rows matched.
func (s *RESTStore) patchRows(ctx context.Context, table string, filter map[string]string, body interface{}, what string) (int, error) {
	var rows []map[string]interface{}
	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParams(filter).
		SetBody(body).
		SetResult(&rows).
		Patch("/" + table)
	if err := checkResponse(resp, err, what); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// UpdateLot applies patch to a lot.
func (s *RESTStore) UpdateLot(ctx context.Context, id string, patch model.LotPatch) error {
	if patch.Empty() {
		_, err := s.GetLot(ctx, id)
		return err
	}
	n, err := s.patchRows(ctx, "stocks", map[string]string{"id": "eq." + id}, patch, "update lot")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLot removes a lot.
func (s *RESTStore) DeleteLot(ctx context.Context, id string) error {
	var rows []map[string]interface{}
	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		SetResult(&rows).
		Delete("/stocks")
	if err := checkResponse(resp, err, "delete lot"); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// OldestAvailableLot returns the FIFO candidate for key.
func (s *RESTStore) OldestAvailableLot(ctx context.Context, key model.StockKey) (*model.InventoryLot, error) {
	lots, err := s.ListLots(ctx, model.LotFilter{
		ProductKey:    key.ProductKey,
		AccountType:   key.AccountType,
		DurationCode:  key.DurationCode,
		AvailableOnly: true,
		Limit:         1,
	})
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, ErrNoStock
	}
	return &lots[0], nil
}

// CompareAndSwapQuantity is a PATCH filtered on the expected quantity.
func (s *RESTStore) CompareAndSwapQuantity(ctx context.Context, id string, current, next int) (bool, error) {
	if next < 0 {
		return false, nil
	}
	n, err := s.patchRows(ctx, "stocks",
		map[string]string{"id": "eq." + id, "quantity": "eq." + strconv.Itoa(current)},
		map[string]int{"quantity": next}, "swap quantity")
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type getAccountParams struct {
	AdminID      string `json:"p_admin_id"`
	ProductKey   string `json:"p_product"`
	AccountType  string `json:"p_type"`
	DurationCode string `json:"p_duration"`
}

// GetAccount calls the server-side get_account function. It ignores now:
// the database clock stamps the sale.
func (s *RESTStore) GetAccount(ctx context.Context, adminID string, key model.StockKey, _ time.Time) (*model.Checkout, error) {
	rows := []model.Checkout{}
	resp, err := s.request(ctx).
		SetBody(getAccountParams{
			AdminID:      adminID,
			ProductKey:   key.ProductKey,
			AccountType:  key.AccountType,
			DurationCode: key.DurationCode,
		}).
		SetResult(&rows).
		Post("/rpc/get_account")
	if err != nil {
		// the request may have reached the database before the failure
		return nil, fmt.Errorf("failed to call get_account: %v: %w", err, ErrOutcomeUnknown)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("get_account: %w", ErrUnsupported)
	}
	if err := checkResponse(resp, nil, "call get_account"); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoStock
	}
	return &rows[0], nil
}

// CreateSale inserts a sale record.
func (s *RESTStore) CreateSale(ctx context.Context, sale *model.Sale) error {
	resp, err := s.request(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody([]*model.Sale{sale}).
		Post("/sales")
	return checkResponse(resp, err, "insert sale")
}

// ListSales returns sales matching filter, newest first. The total comes
// from the Content-Range header.
func (s *RESTStore) ListSales(ctx context.Context, filter model.SaleFilter) ([]model.Sale, int64, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc,id.desc")
	if filter.OwnerID != "" {
		q.Set("owner_id", "eq."+filter.OwnerID)
	}
	if filter.AdminID != "" {
		q.Set("admin_id", "eq."+filter.AdminID)
	}
	if filter.ProductKey != "" {
		q.Set("product_key", "eq."+filter.ProductKey)
	}
	if filter.BuyerLike != "" {
		q.Set("buyer_link", "ilike.*"+filter.BuyerLike+"*")
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	sales := []model.Sale{}
	resp, err := s.request(ctx).
		SetHeader("Prefer", "count=exact").
		SetQueryParamsFromValues(q).
		SetResult(&sales).
		Get("/sales")
	if err := checkResponse(resp, err, "list sales"); err != nil {
		return nil, 0, err
	}

	total, ok := parseContentRange(resp.Header())
	if !ok {
		total = int64(len(sales))
	}
	return sales, total, nil
}

// parseContentRange reads the total from "0-24/3573" or "*/0".
func parseContentRange(h http.Header) (int64, bool) {
	cr := h.Get("Content-Range")
	i := strings.LastIndexByte(cr, '/')
	if i < 0 || cr[i+1:] == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(cr[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetSale returns a sale by id.
func (s *RESTStore) GetSale(ctx context.Context, id string) (*model.Sale, error) {
	sales := []model.Sale{}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{"select": "*", "id": "eq." + id, "limit": "1"}).
		SetResult(&sales).
		Get("/sales")
	if err := checkResponse(resp, err, "get sale"); err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, ErrNotFound
	}
	return &sales[0], nil
}

// UpdateSale applies patch to a sale.
func (s *RESTStore) UpdateSale(ctx context.Context, id string, patch model.SalePatch) error {
	if patch.Empty() {
		_, err := s.GetSale(ctx, id)
		return err
	}
	n, err := s.patchRows(ctx, "sales", map[string]string{"id": "eq." + id}, patch, "update sale")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProducts returns the product catalog ordered by label.
func (s *RESTStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	out := []model.Product{}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{"select": "key:product_key,label,category", "order": "label.asc"}).
		SetResult(&out).
		Get("/products")
	return out, checkResponse(resp, err, "list products")
}

// ListAccountTypes returns account types ordered by label.
func (s *RESTStore) ListAccountTypes(ctx context.Context) ([]model.AccountType, error) {
	out := []model.AccountType{}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{"select": "label", "order": "label.asc"}).
		SetResult(&out).
		Get("/account_types")
	return out, checkResponse(resp, err, "list account types")
}

// ListDurations returns durations ordered by seq.
func (s *RESTStore) ListDurations(ctx context.Context) ([]model.Duration, error) {
	out := []model.Duration{}
	resp, err := s.request(ctx).
		SetQueryParams(map[string]string{"select": "label,code,seq", "order": "seq.asc,code.asc"}).
		SetResult(&out).
		Get("/durations")
	return out, checkResponse(resp, err, "list durations")
}

func (s *RESTStore) count(ctx context.Context, table string) (int64, error) {
	resp, err := s.request(ctx).
		SetHeader("Prefer", "count=exact").
		SetQueryParams(map[string]string{"select": "id", "limit": "1"}).
		Get("/" + table)
	if err := checkResponse(resp, err, "count "+table); err != nil {
		return 0, err
	}
	n, _ := parseContentRange(resp.Header())
	return n, nil
}

// GetStats returns statistics about the store.
func (s *RESTStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["driver"] = "rest"
	stats["base_url"] = s.baseURL

	lots, err := s.count(ctx, "stocks")
	if err != nil {
		return stats, err
	}
	stats["total_lots"] = lots

	sales, err := s.count(ctx, "sales")
	if err != nil {
		return stats, err
	}
	stats["total_sales"] = sales
	return stats, nil
}

// Close releases idle connections.
func (s *RESTStore) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

var (
	_ Store             = (*RESTStore)(nil)
	_ CheckoutProcedure = (*RESTStore)(nil)
)
