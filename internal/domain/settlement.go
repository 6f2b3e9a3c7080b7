package domain

// Settlement is the financial effect of completing a ride.
type Settlement struct {
	RideID        string
	RiderID       string
	DriverID      string
	PaymentMethod PaymentMethod
	Fare          float64
	Split         FareSplit
	LoyaltyPoints int
	Transactions  []*Transaction
}

// RiderDebit is the amount taken from the rider's wallet.
func (s *Settlement) RiderDebit() float64 {
	if s.PaymentMethod == PaymentMethodWallet {
		return s.Fare
	}
	return 0
}

// DriverDelta is the signed change applied to the driver's wallet.
func (s *Settlement) DriverDelta() float64 {
	if s.PaymentMethod == PaymentMethodWallet {
		return s.Split.Driver
	}
	return -s.Split.Platform
}
