package repository

import (
	"context"

	"ridedeck/internal/domain"
)

// WalletRepository is the wallet collaborator used by settlement.
type WalletRepository interface {
	// Balance returns the user's wallet balance.
	Balance(ctx context.Context, userID string) (float64, error)

	// Credit adds amount to the user's wallet.
	Credit(ctx context.Context, userID string, amount float64) error

	// Debit subtracts amount from the user's wallet. It does not check the balance.
	Debit(ctx context.Context, userID string, amount float64) error

	// AddLoyaltyPoints adds points to the user's loyalty balance.
	AddLoyaltyPoints(ctx context.Context, userID string, points int) error
}

// TransactionRepository defines the persistence operations for ledger entries.
type TransactionRepository interface {
	// CreateBatch persists all entries.
	CreateBatch(ctx context.Context, txns []*domain.Transaction) error

	// ExistsForRide reports whether entries of the category exist for the ride.
	ExistsForRide(ctx context.Context, rideID string, category domain.TransactionCategory) (bool, error)
}

// AtomicLedger applies a settlement as one all-or-nothing unit.
type AtomicLedger interface {
	// Apply debits, credits, awards points and records the transactions atomically.
	// Returns ErrInsufficientBalance if a wallet-paying rider cannot cover the fare,
	// and ErrAlreadySettled if the ride was settled before.
	Apply(ctx context.Context, s *domain.Settlement) error

	// Probe reports whether multi-record transactions are available.
	Probe(ctx context.Context) error
}
