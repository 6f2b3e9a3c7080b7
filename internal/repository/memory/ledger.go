package memory

import (
	"context"
	"sync"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

// Ledger holds user accounts and ledger entries in memory. It implements
// the user, wallet and transaction repositories and applies settlements
// atomically under a single lock.
type Ledger struct {
	mu           sync.RWMutex
	users        map[string]*domain.User
	transactions []*domain.Transaction
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{users: make(map[string]*domain.User)}
}

var (
	_ repository.UserRepository        = (*Ledger)(nil)
	_ repository.WalletRepository      = (*Ledger)(nil)
	_ repository.TransactionRepository = (*Ledger)(nil)
	_ repository.AtomicLedger          = (*Ledger)(nil)
)

// Put adds or replaces a user account.
func (l *Ledger) Put(user *domain.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := *user
	l.users[user.ID] = &copied
}

// Transactions returns a copy of all recorded entries in insertion order.
func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Transaction, len(l.transactions))
	for i, t := range l.transactions {
		out[i] = *t
	}
	return out
}

// GetByID retrieves a user by ID.
func (l *Ledger) GetByID(ctx context.Context, id string) (*domain.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	user, ok := l.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// ApplyRating folds a new rating into the user's running average.
func (l *Ledger) ApplyRating(ctx context.Context, id string, rating int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	total := user.Rating * float64(user.TotalRatings)
	user.TotalRatings++
	user.Rating = (total + float64(rating)) / float64(user.TotalRatings)
	return nil
}

// Balance returns the user's wallet balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	user, ok := l.users[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return user.WalletBalance, nil
}

// Credit adds amount to the user's wallet.
func (l *Ledger) Credit(ctx context.Context, userID string, amount float64) error {
	return l.adjust(userID, amount)
}

// Debit subtracts amount from the user's wallet.
func (l *Ledger) Debit(ctx context.Context, userID string, amount float64) error {
	return l.adjust(userID, -amount)
}

// AddLoyaltyPoints adds points to the user's loyalty balance.
func (l *Ledger) AddLoyaltyPoints(ctx context.Context, userID string, points int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.LoyaltyPoints += points
	return nil
}

// CreateBatch persists all entries.
func (l *Ledger) CreateBatch(ctx context.Context, txns []*domain.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range txns {
		if l.hasRideEntryLocked(t.RideID, t.UserID, t.Category) {
			return repository.ErrAlreadySettled
		}
	}
	l.appendLocked(txns)
	return nil
}

// ExistsForRide reports whether entries of the category exist for the ride.
func (l *Ledger) ExistsForRide(ctx context.Context, rideID string, category domain.TransactionCategory) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, t := range l.transactions {
		if t.RideID == rideID && t.Category == category {
			return true, nil
		}
	}
	return false, nil
}

// Probe always succeeds; the in-memory ledger is atomic by construction.
func (l *Ledger) Probe(ctx context.Context) error {
	return nil
}

// Apply executes the settlement under the ledger lock.
func (l *Ledger) Apply(ctx context.Context, s *domain.Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range l.transactions {
		if t.RideID == s.RideID && t.Category == domain.TransactionCategoryRideFare {
			return repository.ErrAlreadySettled
		}
	}

	rider, ok := l.users[s.RiderID]
	if !ok {
		return repository.ErrNotFound
	}
	driver, ok := l.users[s.DriverID]
	if !ok {
		return repository.ErrNotFound
	}

	if s.PaymentMethod == domain.PaymentMethodWallet && rider.WalletBalance < s.Fare {
		return repository.ErrInsufficientBalance
	}

	rider.WalletBalance -= s.RiderDebit()
	driver.WalletBalance += s.DriverDelta()
	rider.LoyaltyPoints += s.LoyaltyPoints
	l.appendLocked(s.Transactions)
	return nil
}

func (l *Ledger) adjust(userID string, delta float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, ok := l.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.WalletBalance += delta
	return nil
}

func (l *Ledger) hasRideEntryLocked(rideID, userID string, category domain.TransactionCategory) bool {
	if rideID == "" {
		return false
	}
	for _, t := range l.transactions {
		if t.RideID == rideID && t.UserID == userID && t.Category == category {
			return true
		}
	}
	return false
}

func (l *Ledger) appendLocked(txns []*domain.Transaction) {
	for _, t := range txns {
		copied := *t
		l.transactions = append(l.transactions, &copied)
	}
}
