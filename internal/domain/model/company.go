package model

import "time"

// Company is the tenant; the unit of subscription and billing.
type Company struct {
	ID             string
	Name           string
	Country        string // ISO 3166-1 alpha-2, e.g. CO, MX
	SubscriptionID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
