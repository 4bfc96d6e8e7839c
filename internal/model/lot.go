package model

import (
	"strconv"
	"time"
)

// InventoryLot is a batch of identical credential units sharing
// product, account type and duration.
type InventoryLot struct {
	ID             string     `json:"id" bson:"_id"`
	OwnerID        string     `json:"owner_id" bson:"owner_id"`
	ProductKey     string     `json:"product_key" bson:"product_key"`
	AccountType    string     `json:"account_type" bson:"account_type"`
	DurationCode   string     `json:"duration_code" bson:"duration_code"`
	Quantity       int        `json:"quantity" bson:"quantity"`
	Email          string     `json:"email,omitempty" bson:"email,omitempty"`
	Password       string     `json:"password,omitempty" bson:"password,omitempty"`
	ProfileName    string     `json:"profile_name,omitempty" bson:"profile_name,omitempty"`
	PIN            string     `json:"pin,omitempty" bson:"pin,omitempty"`
	Notes          string     `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	PremiumedAt    *time.Time `json:"premiumed_at,omitempty" bson:"premiumed_at,omitempty"`
	AutoExpireDays int        `json:"auto_expire_days" bson:"auto_expire_days"`
	Archived       bool       `json:"archived" bson:"archived"`
}

// Key returns the grouping key of the lot.
func (l *InventoryLot) Key() StockKey {
	return StockKey{ProductKey: l.ProductKey, AccountType: l.AccountType, DurationCode: l.DurationCode}
}

// Available reports whether the lot can be sold from.
func (l *InventoryLot) Available() bool {
	return !l.Archived && l.Quantity > 0
}

// Expired reports whether the lot has outlived its auto-expire window at now.
func (l *InventoryLot) Expired(now time.Time) bool {
	if l.AutoExpireDays <= 0 {
		return false
	}
	return now.After(l.CreatedAt.AddDate(0, 0, l.AutoExpireDays))
}

// LotPatch holds the editable fields of a lot. Nil fields are left as is.
type LotPatch struct {
	Quantity       *int       `json:"quantity,omitempty" validate:"omitempty,min=0"`
	PremiumedAt    *time.Time `json:"premiumed_at,omitempty"`
	AutoExpireDays *int       `json:"auto_expire_days,omitempty" validate:"omitempty,min=0,max=3650"`
	Archived       *bool      `json:"archived,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p LotPatch) Empty() bool {
	return p.Quantity == nil && p.PremiumedAt == nil && p.AutoExpireDays == nil &&
		p.Archived == nil && p.Notes == nil
}

// StockKey identifies a sellable pool: (product, account type, duration).
type StockKey struct {
	ProductKey   string `json:"product_key" bson:"product_key" validate:"required"`
	AccountType  string `json:"account_type" bson:"account_type" validate:"required"`
	DurationCode string `json:"duration_code" bson:"duration_code" validate:"required"`
}

// StockSummary is the available quantity of one pool. Sold counts the
// pool's non-voided sales and is only filled where the store can count them.
type StockSummary struct {
	ProductKey   string `json:"product_key" bson:"product_key"`
	AccountType  string `json:"account_type" bson:"account_type"`
	DurationCode string `json:"duration_code" bson:"duration_code"`
	TotalQty     int    `json:"total_qty" bson:"total_qty"`
	Sold         int    `json:"sold" bson:"sold"`
}

// Key returns the pool key of the summary row.
func (s StockSummary) Key() StockKey {
	return StockKey{ProductKey: s.ProductKey, AccountType: s.AccountType, DurationCode: s.DurationCode}
}

// LotFilter narrows lot listings. Zero values mean "any".
type LotFilter struct {
	OwnerID       string
	ProductKey    string
	AccountType   string
	DurationCode  string
	AvailableOnly bool
	Limit         int
}

// LotColumns is the column order used when a lot is flattened to a row.
var LotColumns = []string{
	"id", "owner_id", "product_key", "account_type", "duration_code", "quantity",
	"email", "password", "profile_name", "pin", "notes",
	"created_at", "premiumed_at", "auto_expire_days", "archived",
}

// Row flattens the lot in LotColumns order.
func (l *InventoryLot) Row() []string {
	premiumed := ""
	if l.PremiumedAt != nil {
		premiumed = l.PremiumedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		l.ID, l.OwnerID, l.ProductKey, l.AccountType, l.DurationCode, strconv.Itoa(l.Quantity),
		l.Email, l.Password, l.ProfileName, l.PIN, l.Notes,
		l.CreatedAt.UTC().Format(time.RFC3339), premiumed, strconv.Itoa(l.AutoExpireDays), strconv.FormatBool(l.Archived),
	}
}
