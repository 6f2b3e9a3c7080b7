package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// Ledger applies ride settlements inside a single PostgreSQL transaction.
type Ledger struct {
	db *sqlx.DB
}

// NewLedger creates a new transactional ledger.
func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{db: db}
}

var _ repository.AtomicLedger = (*Ledger)(nil)

// Probe verifies that a transaction can be opened and rolled back.
func (l *Ledger) Probe(ctx context.Context) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	return tx.Rollback()
}

// Apply executes the settlement atomically at read-committed isolation.
// Both wallet rows are locked before the balance check.
func (l *Ledger) Apply(ctx context.Context, s *domain.Settlement) (err error) {
	tx, err := l.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txnRepo := NewTransactionRepositoryWithTx(tx)
	userRepo := NewUserRepositoryWithTx(tx)

	settled, err := txnRepo.ExistsForRide(ctx, s.RideID, domain.TransactionCategoryRideFare)
	if err != nil {
		return err
	}
	if settled {
		err = repository.ErrAlreadySettled
		return err
	}

	balances, err := lockWallets(ctx, tx, s.RiderID, s.DriverID)
	if err != nil {
		return err
	}

	if s.PaymentMethod == domain.PaymentMethodWallet && balances[s.RiderID] < s.Fare {
		err = repository.ErrInsufficientBalance
		return err
	}

	if debit := s.RiderDebit(); debit > 0 {
		if err = userRepo.Debit(ctx, s.RiderID, debit); err != nil {
			return err
		}
	}

	if delta := s.DriverDelta(); delta >= 0 {
		err = userRepo.Credit(ctx, s.DriverID, delta)
	} else {
		err = userRepo.Debit(ctx, s.DriverID, -delta)
	}
	if err != nil {
		return err
	}

	if err = userRepo.AddLoyaltyPoints(ctx, s.RiderID, s.LoyaltyPoints); err != nil {
		return err
	}

	if err = txnRepo.CreateBatch(ctx, s.Transactions); err != nil {
		return err
	}

	return tx.Commit()
}

// lockWallets selects both wallets FOR UPDATE in id order so concurrent settlements cannot deadlock.
func lockWallets(ctx context.Context, tx *sqlx.Tx, ids ...string) (map[string]float64, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	balances := make(map[string]float64, len(ordered))
	for _, id := range ordered {
		var balance float64
		err := tx.GetContext(ctx, &balance, `SELECT wallet_balance FROM users WHERE id = $1 FOR UPDATE`, id)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("wallet %s: %w", id, repository.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		balances[id] = balance
	}
	return balances, nil
}
