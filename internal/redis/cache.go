package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ridedeck/internal/domain"
)

const driverCachePrefix = "cache:driver:"

// cachedDriver is the cached form of a driver's dispatch attributes.
type cachedDriver struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	VehicleType        string     `json:"vehicle_type"`
	VehicleNumber      string     `json:"vehicle_number"`
	Online             bool       `json:"online"`
	Rating             float64    `json:"rating"`
	AcceptanceRate     float64    `json:"acceptance_rate"`
	SubscriptionStatus string     `json:"subscription_status"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"`
	KYCVerified        bool       `json:"kyc_verified"`
	OptedInCampaigns   []string   `json:"opted_in_campaigns"`
}

// CacheStore caches driver presence attributes in Redis.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore with the given entry TTL.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	return &CacheStore{client: client, ttl: ttl}
}

// GetDriversBatch retrieves multiple drivers from cache using a pipeline.
// Returns the cached drivers keyed by id and the ids that missed.
func (s *CacheStore) GetDriversBatch(ctx context.Context, driverIDs []string) (map[string]*domain.Driver, []string, error) {
	result := make(map[string]*domain.Driver, len(driverIDs))
	if len(driverIDs) == 0 {
		return result, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(driverIDs))
	for i, id := range driverIDs {
		cmds[i] = pipe.Get(ctx, driverCachePrefix+id)
	}

	// Missing keys surface as redis.Nil on the individual commands.
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return result, driverIDs, err
	}

	var missing []string
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			missing = append(missing, driverIDs[i])
			continue
		}

		var cached cachedDriver
		if err := json.Unmarshal(data, &cached); err != nil {
			missing = append(missing, driverIDs[i])
			continue
		}
		result[driverIDs[i]] = cached.toDomain()
	}

	return result, missing, nil
}

// SetDriversBatch stores multiple drivers in cache using a pipeline.
func (s *CacheStore) SetDriversBatch(ctx context.Context, drivers []*domain.Driver) error {
	if len(drivers) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, driver := range drivers {
		data, err := json.Marshal(fromDomainDriver(driver))
		if err != nil {
			continue
		}
		pipe.Set(ctx, driverCachePrefix+driver.ID, data, s.ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateDriver removes a driver from cache.
func (s *CacheStore) InvalidateDriver(ctx context.Context, driverID string) error {
	return s.client.Del(ctx, driverCachePrefix+driverID).Err()
}

func fromDomainDriver(d *domain.Driver) cachedDriver {
	return cachedDriver{
		ID:                 d.ID,
		Name:               d.Name,
		VehicleType:        string(d.VehicleType),
		VehicleNumber:      d.VehicleNumber,
		Online:             d.Online,
		Rating:             d.Rating,
		AcceptanceRate:     d.AcceptanceRate,
		SubscriptionStatus: string(d.SubscriptionStatus),
		SubscriptionExpiry: d.SubscriptionExpiry,
		KYCVerified:        d.KYCVerified,
		OptedInCampaigns:   d.OptedInCampaigns,
	}
}

func (c cachedDriver) toDomain() *domain.Driver {
	return &domain.Driver{
		ID:                 c.ID,
		Name:               c.Name,
		VehicleType:        domain.VehicleType(c.VehicleType),
		VehicleNumber:      c.VehicleNumber,
		Online:             c.Online,
		Rating:             c.Rating,
		AcceptanceRate:     c.AcceptanceRate,
		SubscriptionStatus: domain.SubscriptionStatus(c.SubscriptionStatus),
		SubscriptionExpiry: c.SubscriptionExpiry,
		KYCVerified:        c.KYCVerified,
		OptedInCampaigns:   c.OptedInCampaigns,
	}
}
