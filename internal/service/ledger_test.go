package service

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiaxstock/internal/model"
)

func seedSales(store *memStore) {
	for i := 0; i < 5; i++ {
		admin := "admin-1"
		if i%2 == 1 {
			admin = "admin-2"
		}
		expires := fixedNow.Add(time.Duration(i+30) * 24 * time.Hour)
		store.sales[fmt.Sprintf("s%d", i)] = &model.Sale{
			ID: fmt.Sprintf("s%d", i), ProductKey: "netflix", AccountType: "shared account", DurationCode: "1m",
			CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute), ExpiresAt: &expires,
			AdminID: admin, OwnerID: "owner-1", BuyerLink: fmt.Sprintf("https://fb.com/buyer%d", i),
		}
	}
}

func TestLedgerVisibility(t *testing.T) {
	store := newMemStore()
	seedSales(store)
	svc := NewLedgerService(store)
	ctx := context.Background()

	sales, total, _, err := svc.List(ctx, ownerSession, LedgerQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, sales, 5)
	assert.Equal(t, "s4", sales[0].ID)

	sales, total, _, err = svc.List(ctx, adminSession, LedgerQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, s := range sales {
		assert.Equal(t, "admin-1", s.AdminID)
	}

	stranger := &model.Session{Role: model.RoleOwner, Identifier: "owner-9"}
	sales, _, _, err = svc.List(ctx, stranger, LedgerQuery{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestLedgerPagingAndSearch(t *testing.T) {
	store := newMemStore()
	seedSales(store)
	svc := NewLedgerService(store)
	ctx := context.Background()

	sales, total, q, err := svc.List(ctx, ownerSession, LedgerQuery{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Equal(t, 2, q.Page)
	require.Len(t, sales, 2)
	assert.Equal(t, "s2", sales[0].ID)

	_, _, q, err = svc.List(ctx, ownerSession, LedgerQuery{Page: -1, Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, MaxPageSize, q.Limit)

	var verr *ValidationError
	_, _, _, err = svc.List(ctx, ownerSession, LedgerQuery{Page: math.MaxInt, Limit: MaxPageSize})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "page", verr.Fields[0].Field)

	sales, _, q, err = svc.List(ctx, ownerSession, LedgerQuery{Page: MaxPage, Limit: MaxPageSize})
	require.NoError(t, err)
	assert.Equal(t, MaxPage, q.Page)
	assert.Empty(t, sales)

	sales, total, _, err = svc.List(ctx, ownerSession, LedgerQuery{Buyer: "BUYER3"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, sales, 1)
	assert.Equal(t, "s3", sales[0].ID)
}

func TestLedgerUpdate(t *testing.T) {
	store := newMemStore()
	seedSales(store)
	svc := NewLedgerService(store)
	ctx := context.Background()

	link := "https://ig.com/new"
	price := decimal.NewNullDecimal(decimal.RequireFromString("7.5"))
	yes := true
	sale, err := svc.Update(ctx, adminSession, "s0", model.SalePatch{BuyerLink: &link, Price: &price, Warranty: &yes})
	require.NoError(t, err)
	assert.Equal(t, link, sale.BuyerLink)
	assert.Equal(t, "7.5", sale.Price.Decimal.String())
	assert.True(t, sale.Warranty)

	_, err = svc.Update(ctx, adminSession, "s1", model.SalePatch{BuyerLink: &link})
	assert.ErrorIs(t, err, ErrForbidden, "admin-2's sale")

	_, err = svc.Update(ctx, ownerSession, "s1", model.SalePatch{Voided: &yes})
	assert.NoError(t, err)

	var verr *ValidationError
	_, err = svc.Update(ctx, ownerSession, "s1", model.SalePatch{})
	assert.ErrorAs(t, err, &verr)

	neg := decimal.NewNullDecimal(decimal.NewFromInt(-3))
	_, err = svc.Update(ctx, ownerSession, "s1", model.SalePatch{Price: &neg})
	assert.ErrorAs(t, err, &verr)
}

func TestLedgerExtendExpiry(t *testing.T) {
	store := newMemStore()
	seedSales(store)
	store.sales["auto"] = &model.Sale{ID: "auto", AdminID: "admin-1", OwnerID: "owner-1", DurationCode: "auto", CreatedAt: fixedNow}
	svc := NewLedgerService(store)
	svc.now = func() time.Time { return fixedNow }
	ctx := context.Background()

	sale, err := svc.ExtendExpiry(ctx, ownerSession, "s0", 7)
	require.NoError(t, err)
	require.NotNil(t, sale.ExpiresAt)
	assert.Equal(t, fixedNow.AddDate(0, 0, 37), *sale.ExpiresAt)

	sale, err = svc.ExtendExpiry(ctx, adminSession, "auto", 30)
	require.NoError(t, err)
	require.NotNil(t, sale.ExpiresAt)
	assert.Equal(t, fixedNow.AddDate(0, 0, 30), *sale.ExpiresAt)

	var verr *ValidationError
	_, err = svc.ExtendExpiry(ctx, ownerSession, "s0", 0)
	assert.ErrorAs(t, err, &verr)
}

func TestLedgerExport(t *testing.T) {
	store := newMemStore()
	seedSales(store)
	svc := NewLedgerService(store)

	header, rows, err := svc.Export(context.Background(), adminSession, LedgerQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, model.SaleColumns, header)
	assert.Len(t, rows, 3, "export ignores paging")
	for _, r := range rows {
		assert.Len(t, r, len(header))
	}
}
