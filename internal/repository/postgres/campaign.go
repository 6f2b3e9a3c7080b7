package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

const campaignColumns = `id, brand_name, title, lat, lng, radius_meters, is_active`

type campaignRow struct {
	ID           string  `db:"id"`
	BrandName    string  `db:"brand_name"`
	Title        string  `db:"title"`
	Lat          float64 `db:"lat"`
	Lng          float64 `db:"lng"`
	RadiusMeters float64 `db:"radius_meters"`
	IsActive     bool    `db:"is_active"`
}

// CampaignRepository is a PostgreSQL implementation of repository.CampaignRepository.
type CampaignRepository struct {
	q Querier
}

// NewCampaignRepository creates a new PostgreSQL campaign repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{q: db}
}

// GetByID retrieves a campaign by ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var row campaignRow
	if err := sqlx.GetContext(ctx, r.q, &row, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListActive retrieves all active campaigns.
func (r *CampaignRepository) ListActive(ctx context.Context) ([]*domain.Campaign, error) {
	var rows []campaignRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT `+campaignColumns+` FROM campaigns WHERE is_active`); err != nil {
		return nil, err
	}

	campaigns := make([]*domain.Campaign, 0, len(rows))
	for i := range rows {
		campaigns = append(campaigns, rows[i].toDomain())
	}
	return campaigns, nil
}

func (row *campaignRow) toDomain() *domain.Campaign {
	return &domain.Campaign{
		ID:           row.ID,
		BrandName:    row.BrandName,
		Title:        row.Title,
		Lat:          row.Lat,
		Lng:          row.Lng,
		RadiusMeters: row.RadiusMeters,
		IsActive:     row.IsActive,
	}
}
