package model

import (
	"time"

	"github.com/shopspring/decimal"

	"aiaxstock/internal/duration"
)

// Sale is one unit handed to a buyer.
type Sale struct {
	ID           string              `json:"id"`
	LotID        string              `json:"lot_id"`
	ProductKey   string              `json:"product_key"`
	AccountType  string              `json:"account_type"`
	DurationCode string              `json:"duration_code"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    *time.Time          `json:"expires_at"`
	AdminID      string              `json:"admin_id"`
	OwnerID      string              `json:"owner_id"`
	BuyerLink    string              `json:"buyer_link"`
	Price        decimal.NullDecimal `json:"price"`
	Email        string              `json:"email"`
	Password     string              `json:"password"`
	ProfileName  string              `json:"profile_name"`
	PIN          string              `json:"pin"`
	Warranty     bool                `json:"warranty"`
	Voided       bool                `json:"voided"`
}

// SaleColumns is the column order used when a sale is flattened to a row.
var SaleColumns = []string{
	"id", "lot_id", "product_key", "account_type", "duration_code",
	"created_at", "expires_at", "admin_id", "owner_id", "buyer_link",
	"price", "email", "password", "profile_name", "pin", "warranty", "voided",
}

// Row flattens the sale in SaleColumns order.
func (s *Sale) Row() []string {
	expires := ""
	if s.ExpiresAt != nil {
		expires = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	price := ""
	if s.Price.Valid {
		price = s.Price.Decimal.String()
	}
	return []string{
		s.ID, s.LotID, s.ProductKey, s.AccountType, s.DurationCode,
		s.CreatedAt.UTC().Format(time.RFC3339), expires, s.AdminID, s.OwnerID, s.BuyerLink,
		price, s.Email, s.Password, s.ProfileName, s.PIN, boolString(s.Warranty), boolString(s.Voided),
	}
}

// NewSale builds the sale record for one unit taken from lot by adminID at now.
func NewSale(id string, lot *InventoryLot, adminID string, now time.Time) *Sale {
	return &Sale{
		ID:           id,
		LotID:        lot.ID,
		ProductKey:   lot.ProductKey,
		AccountType:  lot.AccountType,
		DurationCode: lot.DurationCode,
		CreatedAt:    now,
		ExpiresAt:    duration.ExpiresAt(lot.DurationCode, now),
		AdminID:      adminID,
		OwnerID:      lot.OwnerID,
		Email:        lot.Email,
		Password:     lot.Password,
		ProfileName:  lot.ProfileName,
		PIN:          lot.PIN,
	}
}

// SalePatch holds the post hoc editable fields of a sale.
type SalePatch struct {
	BuyerLink *string              `json:"buyer_link,omitempty"`
	Price     *decimal.NullDecimal `json:"price,omitempty"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	Warranty  *bool                `json:"warranty,omitempty"`
	Voided    *bool                `json:"voided,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SalePatch) Empty() bool {
	return p.BuyerLink == nil && p.Price == nil && p.ExpiresAt == nil && p.Warranty == nil && p.Voided == nil
}

// SaleFilter narrows ledger queries.
type SaleFilter struct {
	OwnerID    string
	AdminID    string
	ProductKey string
	BuyerLike  string
	Limit      int
	Offset     int
}

// Checkout is the credential payload handed to the admin.
type Checkout struct {
	SaleID       string     `json:"sale_id"`
	LotID        string     `json:"lot_id"`
	ProductKey   string     `json:"product_key"`
	AccountType  string     `json:"account_type"`
	DurationCode string     `json:"duration_code"`
	Email        string     `json:"email"`
	Password     string     `json:"password"`
	ProfileName  string     `json:"profile_name"`
	PIN          string     `json:"pin"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// CheckoutFromSale builds the payload returned for a recorded sale.
func CheckoutFromSale(s *Sale) *Checkout {
	return &Checkout{
		SaleID:       s.ID,
		LotID:        s.LotID,
		ProductKey:   s.ProductKey,
		AccountType:  s.AccountType,
		DurationCode: s.DurationCode,
		Email:        s.Email,
		Password:     s.Password,
		ProfileName:  s.ProfileName,
		PIN:          s.PIN,
		ExpiresAt:    s.ExpiresAt,
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
