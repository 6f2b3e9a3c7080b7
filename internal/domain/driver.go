package domain

import "time"

// SubscriptionStatus represents a driver's platform subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// Driver is the dispatch-relevant presence of a driver.
type Driver struct {
	ID                 string
	Name               string
	Phone              string
	VehicleType        VehicleType
	VehicleNumber      string
	Online             bool
	Lat                float64
	Lng                float64
	Rating             float64
	AcceptanceRate     float64
	SubscriptionStatus SubscriptionStatus
	SubscriptionExpiry *time.Time
	KYCVerified        bool
	OptedInCampaigns   []string
}

// SubscriptionActive reports whether the driver holds an active, unexpired subscription at now.
func (d *Driver) SubscriptionActive(now time.Time) bool {
	if d.SubscriptionStatus != SubscriptionStatusActive {
		return false
	}
	return d.SubscriptionExpiry == nil || !now.After(*d.SubscriptionExpiry)
}

// OptedInto reports whether the driver opted into the brand's campaigns.
func (d *Driver) OptedInto(brand string) bool {
	for _, name := range d.OptedInCampaigns {
		if name == brand {
			return true
		}
	}
	return false
}
