package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

const driverColumns = `id, name, phone, vehicle_type, vehicle_number, is_online, rating,
	acceptance_rate, subscription_status, subscription_expiry, kyc_verified, opted_in_campaigns`

type driverRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Phone              string         `db:"phone"`
	VehicleType        string         `db:"vehicle_type"`
	VehicleNumber      string         `db:"vehicle_number"`
	IsOnline           bool           `db:"is_online"`
	Rating             float64        `db:"rating"`
	AcceptanceRate     float64        `db:"acceptance_rate"`
	SubscriptionStatus string         `db:"subscription_status"`
	SubscriptionExpiry sql.NullTime   `db:"subscription_expiry"`
	KYCVerified        bool           `db:"kyc_verified"`
	OptedInCampaigns   pq.StringArray `db:"opted_in_campaigns"`
}

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sqlx.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM users WHERE id = $1 AND role = 'driver'`

	var row driverRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return row.toDomain(), nil
}

// GetByIDs retrieves the drivers that exist among ids in a single query.
func (r *DriverRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + driverColumns + ` FROM users WHERE id = ANY($1) AND role = 'driver'`

	var rows []driverRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, pq.Array(ids)); err != nil {
		return nil, err
	}

	drivers := make([]*domain.Driver, 0, len(rows))
	for i := range rows {
		drivers = append(drivers, rows[i].toDomain())
	}
	return drivers, nil
}

// SetOnline toggles the driver's online flag.
func (r *DriverRepository) SetOnline(ctx context.Context, id string, online bool) error {
	result, err := r.q.ExecContext(ctx, `UPDATE users SET is_online = $1 WHERE id = $2 AND role = 'driver'`, online, id)
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

func (row *driverRow) toDomain() *domain.Driver {
	driver := &domain.Driver{
		ID:                 row.ID,
		Name:               row.Name,
		Phone:              row.Phone,
		VehicleType:        domain.VehicleType(row.VehicleType),
		VehicleNumber:      row.VehicleNumber,
		Online:             row.IsOnline,
		Rating:             row.Rating,
		AcceptanceRate:     row.AcceptanceRate,
		SubscriptionStatus: domain.SubscriptionStatus(row.SubscriptionStatus),
		KYCVerified:        row.KYCVerified,
		OptedInCampaigns:   []string(row.OptedInCampaigns),
	}
	if row.SubscriptionExpiry.Valid {
		expiry := row.SubscriptionExpiry.Time
		driver.SubscriptionExpiry = &expiry
	}
	return driver
}
