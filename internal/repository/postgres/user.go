package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// UserRepository implements repository.UserRepository and repository.WalletRepository using PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{q: db}
}

// NewUserRepositoryWithTx creates a user repository using a transaction.
func NewUserRepositoryWithTx(tx *sqlx.Tx) *UserRepository {
	return &UserRepository{q: tx}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, name, phone, role, wallet_balance, loyalty_points, rating, total_ratings, created_at
		FROM users WHERE id = $1
	`

	var user domain.User
	err := r.q.QueryRowxContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Phone,
		&user.Role,
		&user.WalletBalance,
		&user.LoyaltyPoints,
		&user.Rating,
		&user.TotalRatings,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// ApplyRating folds a new rating into the user's running average in one statement.
func (r *UserRepository) ApplyRating(ctx context.Context, id string, rating int) error {
	query := `
		UPDATE users
		SET rating = (rating * total_ratings + $1) / (total_ratings + 1),
			total_ratings = total_ratings + 1
		WHERE id = $2
	`
	return r.execOne(ctx, query, rating, id)
}

// Balance returns the user's wallet balance.
func (r *UserRepository) Balance(ctx context.Context, userID string) (float64, error) {
	var balance float64
	err := sqlx.GetContext(ctx, r.q, &balance, `SELECT wallet_balance FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	return balance, err
}

// Credit adds amount to the user's wallet.
func (r *UserRepository) Credit(ctx context.Context, userID string, amount float64) error {
	return r.execOne(ctx, `UPDATE users SET wallet_balance = wallet_balance + $1 WHERE id = $2`, amount, userID)
}

// Debit subtracts amount from the user's wallet.
func (r *UserRepository) Debit(ctx context.Context, userID string, amount float64) error {
	return r.execOne(ctx, `UPDATE users SET wallet_balance = wallet_balance - $1 WHERE id = $2`, amount, userID)
}

// AddLoyaltyPoints adds points to the user's loyalty balance.
func (r *UserRepository) AddLoyaltyPoints(ctx context.Context, userID string, points int) error {
	return r.execOne(ctx, `UPDATE users SET loyalty_points = loyalty_points + $1 WHERE id = $2`, points, userID)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}
