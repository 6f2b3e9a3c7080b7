package domain

import "time"

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// TransactionCategory classifies a ledger entry.
type TransactionCategory string

const (
	TransactionCategoryRideFare      TransactionCategory = "ride_fare"
	TransactionCategoryWalletTopup   TransactionCategory = "wallet_topup"
	TransactionCategoryWithdrawal    TransactionCategory = "withdrawal"
	TransactionCategoryReferralBonus TransactionCategory = "referral_bonus"
	TransactionCategoryRefund        TransactionCategory = "refund"
	TransactionCategorySubscription  TransactionCategory = "subscription"
)

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID            string              `json:"id"`
	UserID        string              `json:"userId"`
	Amount        float64             `json:"amount"`
	Type          TransactionType     `json:"type"`
	Category      TransactionCategory `json:"category"`
	Description   string              `json:"description"`
	RideID        string              `json:"rideId,omitempty"`
	PaymentMethod PaymentMethod       `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}
