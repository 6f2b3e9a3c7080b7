package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// Settlement modes.
const (
	SettlementModeAuto          = "auto"
	SettlementModeTransactional = "transactional"
	SettlementModeBestEffort    = "best_effort"
)

// Ensure BestEffortLedger implements repository.AtomicLedger.
var _ repository.AtomicLedger = (*BestEffortLedger)(nil)

// BestEffortLedger applies settlement steps one by one without rollback. It is
// the degraded strategy for stores without multi-record transactions. A
// failure after the first write is logged with every applied step for manual
// reconciliation and the settlement is reported as done.
type BestEffortLedger struct {
	users   repository.UserRepository
	wallets repository.WalletRepository
	txns    repository.TransactionRepository
	logger  logrus.FieldLogger
}

// NewBestEffortLedger creates a new BestEffortLedger.
func NewBestEffortLedger(
	users repository.UserRepository,
	wallets repository.WalletRepository,
	txns repository.TransactionRepository,
	logger logrus.FieldLogger,
) *BestEffortLedger {
	return &BestEffortLedger{
		users:   users,
		wallets: wallets,
		txns:    txns,
		logger:  logger,
	}
}

// Probe always succeeds.
func (l *BestEffortLedger) Probe(ctx context.Context) error {
	return nil
}

// Apply runs the settlement steps sequentially.
func (l *BestEffortLedger) Apply(ctx context.Context, s *domain.Settlement) error {
	settled, err := l.txns.ExistsForRide(ctx, s.RideID, domain.TransactionCategoryRideFare)
	if err != nil {
		return err
	}
	if settled {
		return repository.ErrAlreadySettled
	}

	if _, err := l.users.GetByID(ctx, s.RiderID); err != nil {
		return err
	}
	if _, err := l.users.GetByID(ctx, s.DriverID); err != nil {
		return err
	}

	if s.PaymentMethod == domain.PaymentMethodWallet {
		balance, err := l.wallets.Balance(ctx, s.RiderID)
		if err != nil {
			return err
		}
		if balance < s.Fare {
			return repository.ErrInsufficientBalance
		}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"debit_rider", func() error {
			if debit := s.RiderDebit(); debit > 0 {
				return l.wallets.Debit(ctx, s.RiderID, debit)
			}
			return nil
		}},
		{"award_loyalty", func() error {
			return l.wallets.AddLoyaltyPoints(ctx, s.RiderID, s.LoyaltyPoints)
		}},
		{"adjust_driver", func() error {
			delta := s.DriverDelta()
			if delta >= 0 {
				return l.wallets.Credit(ctx, s.DriverID, delta)
			}
			return l.wallets.Debit(ctx, s.DriverID, -delta)
		}},
		{"record_transactions", func() error {
			return l.txns.CreateBatch(ctx, s.Transactions)
		}},
	}

	applied := make([]string, 0, len(steps))
	for _, step := range steps {
		if err := step.run(); err != nil {
			if txn := newrelic.FromContext(ctx); txn != nil {
				txn.NoticeError(err)
			}
			l.logger.WithError(err).WithFields(logrus.Fields{
				"ride_id":        s.RideID,
				"rider_id":       s.RiderID,
				"driver_id":      s.DriverID,
				"payment_method": s.PaymentMethod,
				"fare":           s.Fare,
				"driver_delta":   s.DriverDelta(),
				"loyalty_points": s.LoyaltyPoints,
				"failed_step":    step.name,
				"applied_steps":  applied,
			}).Error("partial settlement, manual reconciliation required")
			return nil
		}
		applied = append(applied, step.name)
	}

	return nil
}

// SelectLedger picks the settlement strategy once at startup.
func SelectLedger(ctx context.Context, mode string, atomic, fallback repository.AtomicLedger, logger logrus.FieldLogger) (repository.AtomicLedger, error) {
	switch mode {
	case SettlementModeBestEffort:
		logger.Warn("settlement running in best-effort mode")
		return fallback, nil
	case SettlementModeTransactional:
		if err := atomic.Probe(ctx); err != nil {
			return nil, fmt.Errorf("transactional settlement unavailable: %w", err)
		}
		return atomic, nil
	case SettlementModeAuto, "":
		if err := atomic.Probe(ctx); err != nil {
			logger.WithError(err).Warn("transactions unavailable, settlement falls back to best effort")
			return fallback, nil
		}
		return atomic, nil
	default:
		return nil, fmt.Errorf("unknown settlement mode %q", mode)
	}
}

// SettlementService moves money when a ride completes.
type SettlementService struct {
	ledger  repository.AtomicLedger
	pricing *FarePricingEngine
	now     func() time.Time
	logger  logrus.FieldLogger
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(ledger repository.AtomicLedger, pricing *FarePricingEngine, logger logrus.FieldLogger) *SettlementService {
	return &SettlementService{
		ledger:  ledger,
		pricing: pricing,
		now:     time.Now,
		logger:  logger,
	}
}

// Settle computes the fare split and applies the settlement for the ride.
// A ride that was already settled is not charged again.
func (s *SettlementService) Settle(ctx context.Context, ride *domain.Ride, sponsored bool) (domain.FareSplit, error) {
	split := s.pricing.Split(ride.Fare, sponsored)
	settlement := s.pricing.BuildSettlement(ride, split, s.now())

	err := s.ledger.Apply(ctx, settlement)
	switch {
	case err == nil:
		s.logger.WithFields(logrus.Fields{
			"ride_id":  ride.ID,
			"fare":     ride.Fare,
			"driver":   split.Driver,
			"platform": split.Platform,
			"brand":    split.Brand,
		}).Info("ride settled")
		return split, nil
	case errors.Is(err, repository.ErrAlreadySettled):
		s.logger.WithField("ride_id", ride.ID).Info("ride already settled")
		return split, nil
	case errors.Is(err, repository.ErrInsufficientBalance):
		return domain.FareSplit{}, ErrInsufficientBalance
	case errors.Is(err, repository.ErrNotFound):
		return domain.FareSplit{}, ErrUserNotFound
	default:
		return domain.FareSplit{}, fmt.Errorf("settle ride %s: %w", ride.ID, err)
	}
}
