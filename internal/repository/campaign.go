package repository

import (
	"context"

	"ridedeck/internal/domain"
)

// CampaignRepository defines read access to brand campaigns.
type CampaignRepository interface {
	// GetByID retrieves a campaign by ID.
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// ListActive retrieves all active campaigns.
	ListActive(ctx context.Context) ([]*domain.Campaign, error)
}
