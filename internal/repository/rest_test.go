package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiaxstock/internal/model"
)

func newTestREST(t *testing.T, h http.HandlerFunc) *RESTStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRESTStore(srv.URL+"/", "secret-key", 2*time.Second)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestRESTStoreSendsAuthHeaders(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/rest/v1/stocks", r.URL.Path)
		assert.Equal(t, "eq.netflix", r.URL.Query().Get("product_key"))
		assert.Equal(t, "is.false", r.URL.Query().Get("archived"))
		assert.Equal(t, "gt.0", r.URL.Query().Get("quantity"))
		assert.Equal(t, "created_at.asc,id.asc", r.URL.Query().Get("order"))
		writeJSON(w, []model.InventoryLot{{ID: "lot-1", ProductKey: "netflix", Quantity: 2}})
	})

	lots, err := store.ListLots(context.Background(), model.LotFilter{ProductKey: "netflix", AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "lot-1", lots[0].ID)
}

func TestRESTStoreGetAccount(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/get_account", r.URL.Path)

		var params map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		if params["p_product"] == "empty" {
			writeJSON(w, []interface{}{})
			return
		}
		assert.Equal(t, "admin-1", params["p_admin_id"])
		assert.Equal(t, "1m", params["p_duration"])
		writeJSON(w, []model.Checkout{{SaleID: "s1", Email: "e@x", Password: "p"}})
	})
	ctx := context.Background()

	co, err := store.GetAccount(ctx, "admin-1", model.StockKey{ProductKey: "netflix", AccountType: "shared", DurationCode: "1m"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "s1", co.SaleID)
	assert.Equal(t, "e@x", co.Email)

	_, err = store.GetAccount(ctx, "admin-1", model.StockKey{ProductKey: "empty", AccountType: "shared", DurationCode: "1m"}, time.Now())
	assert.ErrorIs(t, err, ErrNoStock)
}

func TestRESTStoreGetAccountFailures(t *testing.T) {
	key := model.StockKey{ProductKey: "netflix", AccountType: "shared", DurationCode: "1m"}
	ctx := context.Background()

	missing := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"PGRST202"}`, http.StatusNotFound)
	})
	_, err := missing.GetAccount(ctx, "admin-1", key, time.Now())
	assert.ErrorIs(t, err, ErrUnsupported)

	failing := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	_, err = failing.GetAccount(ctx, "admin-1", key, time.Now())
	var restErr *RESTError
	require.ErrorAs(t, err, &restErr)
	assert.Equal(t, http.StatusInternalServerError, restErr.Status)
	assert.NotErrorIs(t, err, ErrOutcomeUnknown)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gone := NewRESTStore(srv.URL, "secret-key", time.Second)
	srv.Close()
	_, err = gone.GetAccount(ctx, "admin-1", key, time.Now())
	assert.ErrorIs(t, err, ErrOutcomeUnknown)
}

func TestRESTStoreCompareAndSwap(t *testing.T) {
	quantity := 1
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		var body map[string]int
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if r.URL.Query().Get("quantity") != "eq."+strconv.Itoa(quantity) {
			writeJSON(w, []interface{}{})
			return
		}
		quantity = body["quantity"]
		writeJSON(w, []map[string]interface{}{{"id": "lot", "quantity": quantity}})
	})
	ctx := context.Background()

	ok, err := store.CompareAndSwapQuantity(ctx, "lot", 1, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CompareAndSwapQuantity(ctx, "lot", 1, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, quantity)
}

func TestRESTStoreListSalesReadsContentRange(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, "ilike.*fb*", r.URL.Query().Get("buyer_link"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		w.Header().Set("Content-Range", "20-20/21")
		writeJSON(w, []model.Sale{{ID: "s21"}})
	})

	sales, total, err := store.ListSales(context.Background(), model.SaleFilter{BuyerLike: "fb", Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 21, total)
	require.Len(t, sales, 1)
}

func TestRESTStoreErrors(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"JWT expired"}`))
	})

	_, err := store.ListProducts(context.Background())
	var restErr *RESTError
	require.ErrorAs(t, err, &restErr)
	assert.Equal(t, http.StatusUnauthorized, restErr.Status)
	assert.Contains(t, restErr.Message, "JWT expired")
}

func TestRESTStoreSummaryOnlyAvailable(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/v_stock_summary", r.URL.Path)
		writeJSON(w, []model.StockSummary{
			{ProductKey: "netflix", AccountType: "shared", DurationCode: "1m", TotalQty: 3},
			{ProductKey: "disney", AccountType: "shared", DurationCode: "1m", TotalQty: 0},
		})
	})
	ctx := context.Background()

	_, err := store.StockSummary(ctx, model.LotFilter{})
	assert.ErrorIs(t, err, ErrUnsupported)

	rows, err := store.StockSummary(ctx, model.LotFilter{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].TotalQty)
}

func TestRESTStoreSoldCounts(t *testing.T) {
	store := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/sales", r.URL.Path)
		assert.Equal(t, "is.false", r.URL.Query().Get("voided"))
		assert.Equal(t, "eq.shared", r.URL.Query().Get("account_type"))
		assert.Equal(t, "product_key,account_type,duration_code", r.URL.Query().Get("select"))
		writeJSON(w, []model.StockKey{
			{ProductKey: "netflix", AccountType: "shared", DurationCode: "1m"},
			{ProductKey: "netflix", AccountType: "shared", DurationCode: "1m"},
			{ProductKey: "disney", AccountType: "shared", DurationCode: "7d"},
		})
	})

	counts, err := store.SoldCounts(context.Background(), model.LotFilter{AccountType: "shared"})
	require.NoError(t, err)
	assert.Equal(t, map[model.StockKey]int{
		{ProductKey: "netflix", AccountType: "shared", DurationCode: "1m"}: 2,
		{ProductKey: "disney", AccountType: "shared", DurationCode: "7d"}:  1,
	}, counts)
}

func TestParseContentRange(t *testing.T) {
	h := http.Header{}
	_, ok := parseContentRange(h)
	assert.False(t, ok)

	h.Set("Content-Range", "*/0")
	n, ok := parseContentRange(h)
	assert.True(t, ok)
	assert.Zero(t, n)

	h.Set("Content-Range", "0-9/*")
	_, ok = parseContentRange(h)
	assert.False(t, ok)
}
