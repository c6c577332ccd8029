package admin

import (
	"time"

	"github.com/google/uuid"
)

type Admin struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Stats is the dashboard summary. Money is in minor units of the catalog currency.
type Stats struct {
	Users     UserStats     `json:"users"`
	Messages  MessageStats  `json:"messages"`
	Revenue   RevenueStats  `json:"revenue"`
	Purchases PurchaseStats `json:"purchases"`
	Requests  RequestStats  `json:"requests"`
}

type UserStats struct {
	Total    int64      `json:"total"`
	NewByDay []DayCount `json:"new_by_day"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type MessageStats struct {
	Total int64 `json:"total"`
}

// RevenueStats: Total sums completed purchases, Pending sums those still awaiting payment.
type RevenueStats struct {
	Total     int64          `json:"total"`
	Pending   int64          `json:"pending"`
	Currency  string         `json:"currency"`
	ByPackage []PackageStats `json:"by_package"`
}

type PackageStats struct {
	Package string `json:"package"`
	Count   int64  `json:"count"`
	Revenue int64  `json:"revenue"`
}

type PurchaseStats struct {
	Total int64 `json:"total"`
}

type RequestStats struct {
	FreeUsed      int64 `json:"free_used"`
	PaidRemaining int64 `json:"paid_remaining"`
}
