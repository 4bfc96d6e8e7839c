package repository

import (
	"strconv"
	"strings"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	// appended to the candidate SELECT inside the checkout transaction;
	// never SKIP LOCKED, a lot row carries more than one unit
	lockClause string
	// serialize writers in process (single writer SQLite)
	serialize bool
	schema    []string
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var sqliteDialect = dialect{
	name:      "sqlite",
	serialize: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stocks (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			product_key TEXT NOT NULL,
			account_type TEXT NOT NULL,
			duration_code TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			email TEXT,
			password TEXT,
			profile_name TEXT,
			pin TEXT,
			notes TEXT,
			created_at DATETIME NOT NULL,
			premiumed_at DATETIME,
			auto_expire_days INTEGER NOT NULL DEFAULT 0,
			archived BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stocks_pool ON stocks(product_key, account_type, duration_code, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_stocks_owner ON stocks(owner_id)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			lot_id TEXT,
			product_key TEXT NOT NULL,
			account_type TEXT NOT NULL,
			duration_code TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			admin_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			buyer_link TEXT,
			price TEXT,
			email TEXT,
			password TEXT,
			profile_name TEXT,
			pin TEXT,
			warranty BOOLEAN NOT NULL DEFAULT 0,
			voided BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_owner ON sales(owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_admin ON sales(admin_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_key TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			category TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS account_types (label TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS durations (
			code TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0
		)`,
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	numbered:   true,
	lockClause: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stocks (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			product_key TEXT NOT NULL,
			account_type TEXT NOT NULL,
			duration_code TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			email TEXT,
			password TEXT,
			profile_name TEXT,
			pin TEXT,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			premiumed_at TIMESTAMPTZ,
			auto_expire_days INTEGER NOT NULL DEFAULT 0,
			archived BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stocks_pool ON stocks(product_key, account_type, duration_code, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_stocks_owner ON stocks(owner_id)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			lot_id TEXT,
			product_key TEXT NOT NULL,
			account_type TEXT NOT NULL,
			duration_code TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ,
			admin_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			buyer_link TEXT,
			price NUMERIC(12,2),
			email TEXT,
			password TEXT,
			profile_name TEXT,
			pin TEXT,
			warranty BOOLEAN NOT NULL DEFAULT FALSE,
			voided BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_owner ON sales(owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_admin ON sales(admin_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_key TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			category TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS account_types (label TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS durations (
			code TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0
		)`,
	},
}

// Indexes live inside CREATE TABLE because MySQL has no
// CREATE INDEX IF NOT EXISTS.
var mysqlDialect = dialect{
	name:       "mysql",
	lockClause: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stocks (
			id VARCHAR(64) PRIMARY KEY,
			owner_id VARCHAR(191) NOT NULL,
			product_key VARCHAR(191) NOT NULL,
			account_type VARCHAR(191) NOT NULL,
			duration_code VARCHAR(32) NOT NULL,
			quantity INT NOT NULL DEFAULT 0,
			email TEXT,
			password TEXT,
			profile_name TEXT,
			pin TEXT,
			notes TEXT,
			created_at DATETIME(6) NOT NULL,
			premiumed_at DATETIME(6) NULL,
			auto_expire_days INT NOT NULL DEFAULT 0,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			INDEX idx_stocks_pool (product_key, account_type, duration_code, created_at),
			INDEX idx_stocks_owner (owner_id),
			CHECK (quantity >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id VARCHAR(64) PRIMARY KEY,
			lot_id VARCHAR(64),
			product_key VARCHAR(191) NOT NULL,
			account_type VARCHAR(191) NOT NULL,
			duration_code VARCHAR(32) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			expires_at DATETIME(6) NULL,
			admin_id VARCHAR(191) NOT NULL,
			owner_id VARCHAR(191) NOT NULL,
			buyer_link TEXT,
			price DECIMAL(12,2) NULL,
			email TEXT,
			password TEXT,
			profile_name TEXT,
			pin TEXT,
			warranty BOOLEAN NOT NULL DEFAULT FALSE,
			voided BOOLEAN NOT NULL DEFAULT FALSE,
			INDEX idx_sales_owner (owner_id, created_at),
			INDEX idx_sales_admin (admin_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_key VARCHAR(191) PRIMARY KEY,
			label VARCHAR(255) NOT NULL,
			category VARCHAR(191)
		)`,
		`CREATE TABLE IF NOT EXISTS account_types (label VARCHAR(191) PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS durations (
			code VARCHAR(32) PRIMARY KEY,
			label VARCHAR(191) NOT NULL,
			seq INT NOT NULL DEFAULT 0
		)`,
	},
}
