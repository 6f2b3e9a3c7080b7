package domain

import "time"

// Role is the caller role resolved by the identity gate.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// User is a rider or driver account with its wallet.
type User struct {
	ID            string
	Name          string
	Phone         string
	Role          Role
	WalletBalance float64
	LoyaltyPoints int
	Rating        float64
	TotalRatings  int
	CreatedAt     time.Time
}
