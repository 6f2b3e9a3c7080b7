package memory

import (
	"context"
	"sync"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// CampaignRepository is an in-memory implementation of repository.CampaignRepository.
type CampaignRepository struct {
	mu        sync.RWMutex
	campaigns map[string]*domain.Campaign
}

// NewCampaignRepository creates a new in-memory campaign repository.
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{campaigns: make(map[string]*domain.Campaign)}
}

var _ repository.CampaignRepository = (*CampaignRepository)(nil)

// Put adds or replaces a campaign.
func (r *CampaignRepository) Put(campaign *domain.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *campaign
	r.campaigns[campaign.ID] = &copied
}

// GetByID retrieves a campaign by ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *campaign
	return &copied, nil
}

// ListActive retrieves all active campaigns.
func (r *CampaignRepository) ListActive(ctx context.Context) ([]*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Campaign
	for _, campaign := range r.campaigns {
		if campaign.IsActive {
			copied := *campaign
			out = append(out, &copied)
		}
	}
	return out, nil
}
