package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// TransactionRepository is a PostgreSQL implementation of repository.TransactionRepository.
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{q: db}
}

// NewTransactionRepositoryWithTx creates a transaction repository using a transaction.
func NewTransactionRepositoryWithTx(tx *sqlx.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

// CreateBatch persists all entries.
func (r *TransactionRepository) CreateBatch(ctx context.Context, txns []*domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, amount, type, category, description, ride_id, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, t := range txns {
		var rideID sql.NullString
		if t.RideID != "" {
			rideID = sql.NullString{String: t.RideID, Valid: true}
		}

		_, err := r.q.ExecContext(ctx, query,
			t.ID,
			t.UserID,
			t.Amount,
			t.Type,
			t.Category,
			t.Description,
			rideID,
			t.PaymentMethod,
			t.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrAlreadySettled
			}
			return err
		}
	}

	return nil
}

// ExistsForRide reports whether entries of the category exist for the ride.
func (r *TransactionRepository) ExistsForRide(ctx context.Context, rideID string, category domain.TransactionCategory) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE ride_id = $1 AND category = $2)`
	err := sqlx.GetContext(ctx, r.q, &exists, query, rideID, category)
	return exists, err
}
