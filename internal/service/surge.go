package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SurgeConfig contains surge pricing configuration.
type SurgeConfig struct {
	RadiusKm       float64 // Radius to check for supply/demand
	LowSurgeRatio  float64 // Ratio above which LowSurge applies
	MedSurgeRatio  float64 // Ratio above which MedSurge applies
	HighSurgeRatio float64 // Ratio above which HighSurge applies
	LowSurge       float64
	MedSurge       float64
	HighSurge      float64
	PeakFloor      float64 // Minimum multiplier during peak hours
	PeakHours      []HourWindow
}

// HourWindow is an inclusive range of wall-clock hours.
type HourWindow struct {
	From int
	To   int
}

// Contains reports whether hour falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	return hour >= w.From && hour <= w.To
}

// DefaultSurgeConfig returns the default surge configuration.
func DefaultSurgeConfig() SurgeConfig {
	return SurgeConfig{
		RadiusKm:       5.0,
		LowSurgeRatio:  1.5,
		MedSurgeRatio:  2.0,
		HighSurgeRatio: 3.0,
		LowSurge:       1.2,
		MedSurge:       1.5,
		HighSurge:      2.0,
		PeakFloor:      1.2,
		PeakHours:      []HourWindow{{From: 8, To: 10}, {From: 18, To: 22}},
	}
}

// Multiplier combines the demand ratio tier with the peak-hour floor.
func (c SurgeConfig) Multiplier(ratio float64, hour int) float64 {
	multiplier := 1.0
	switch {
	case ratio > c.HighSurgeRatio:
		multiplier = c.HighSurge
	case ratio > c.MedSurgeRatio:
		multiplier = c.MedSurge
	case ratio > c.LowSurgeRatio:
		multiplier = c.LowSurge
	}

	for _, w := range c.PeakHours {
		if w.Contains(hour) && multiplier < c.PeakFloor {
			multiplier = c.PeakFloor
		}
	}

	return multiplier
}

// SurgeReading is the supply/demand snapshot behind a multiplier.
type SurgeReading struct {
	ActiveDrivers   int     `json:"activeDrivers"`
	ActiveRequests  int     `json:"activeRequests"`
	SurgeMultiplier float64 `json:"surgeMultiplier"`
}

// SurgeService calculates surge pricing based on supply and demand.
type SurgeService struct {
	geo      GeoIndex
	config   SurgeConfig
	location *time.Location
	now      func() time.Time
	logger   logrus.FieldLogger
}

// NewSurgeService creates a new SurgeService. Peak hours are evaluated in location.
func NewSurgeService(geo GeoIndex, config SurgeConfig, location *time.Location, logger logrus.FieldLogger) *SurgeService {
	if location == nil {
		location = time.UTC
	}
	return &SurgeService{
		geo:      geo,
		config:   config,
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

// GetReading calculates the surge multiplier at a pickup point.
// Count failures fall back to no demand surge; the peak floor still applies.
func (s *SurgeService) GetReading(ctx context.Context, lat, lng float64, hasPickup bool) SurgeReading {
	reading := SurgeReading{ActiveDrivers: 1}

	if hasPickup {
		drivers, derr := s.geo.CountOnlineDrivers(ctx, lat, lng, s.config.RadiusKm)
		requests, rerr := s.geo.CountSearchingRides(ctx, lat, lng, s.config.RadiusKm)
		if derr != nil || rerr != nil {
			s.logger.WithFields(logrus.Fields{
				"drivers_error":  derr,
				"requests_error": rerr,
			}).Warn("surge counts unavailable")
		} else {
			reading.ActiveDrivers = drivers
			reading.ActiveRequests = requests
		}
	}

	supply := reading.ActiveDrivers
	if supply < 1 {
		supply = 1
	}
	ratio := float64(reading.ActiveRequests) / float64(supply)
	reading.SurgeMultiplier = s.config.Multiplier(ratio, s.now().In(s.location).Hour())

	return reading
}
