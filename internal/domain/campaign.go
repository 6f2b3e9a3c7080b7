package domain

// Campaign is a brand-funded zone that subsidizes fares and prioritizes opted-in drivers.
type Campaign struct {
	ID           string
	BrandName    string
	Title        string
	Lat          float64
	Lng          float64
	RadiusMeters float64
	IsActive     bool
}
