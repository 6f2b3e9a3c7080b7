package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ridedeck/internal/domain"
	"ridedeck/internal/repository"
)

const rideColumns = `id, rider_id, driver_id, pickup_lat, pickup_lng, pickup_address,
	dropoff_lat, dropoff_lng, dropoff_address, stops, vehicle_type, payment_method,
	rider_offer, fare, min_price, max_price, fare_split, offers, status, safety_status,
	otp, is_scheduled, scheduled_time, is_delivery, delivery_details, sponsored_by,
	messages, driver_rating, rider_rating, settling_since, version, created_at, updated_at`

// rideRow is the column mapping of the rides table.
type rideRow struct {
	ID              string          `db:"id"`
	RiderID         string          `db:"rider_id"`
	DriverID        sql.NullString  `db:"driver_id"`
	PickupLat       float64         `db:"pickup_lat"`
	PickupLng       float64         `db:"pickup_lng"`
	PickupAddress   string          `db:"pickup_address"`
	DropoffLat      float64         `db:"dropoff_lat"`
	DropoffLng      float64         `db:"dropoff_lng"`
	DropoffAddress  string          `db:"dropoff_address"`
	Stops           string          `db:"stops"`
	VehicleType     string          `db:"vehicle_type"`
	PaymentMethod   string          `db:"payment_method"`
	RiderOffer      float64         `db:"rider_offer"`
	Fare            float64         `db:"fare"`
	MinPrice        float64         `db:"min_price"`
	MaxPrice        float64         `db:"max_price"`
	FareSplit       sql.NullString  `db:"fare_split"`
	Offers          string          `db:"offers"`
	Status          string          `db:"status"`
	SafetyStatus    string          `db:"safety_status"`
	OTP             string          `db:"otp"`
	IsScheduled     bool            `db:"is_scheduled"`
	ScheduledTime   sql.NullTime    `db:"scheduled_time"`
	IsDelivery      bool            `db:"is_delivery"`
	DeliveryDetails sql.NullString  `db:"delivery_details"`
	SponsoredBy     string          `db:"sponsored_by"`
	Messages        string          `db:"messages"`
	DriverRating    int             `db:"driver_rating"`
	RiderRating     int             `db:"rider_rating"`
	SettlingSince   sql.NullTime    `db:"settling_since"`
	Version         int64           `db:"version"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sqlx.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sqlx.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride at version 1.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	ride.Version = 1
	row, err := toRideRow(ride)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES (:id, :rider_id, :driver_id, :pickup_lat, :pickup_lng, :pickup_address,
			:dropoff_lat, :dropoff_lng, :dropoff_address, :stops, :vehicle_type, :payment_method,
			:rider_offer, :fare, :min_price, :max_price, :fare_split, :offers, :status, :safety_status,
			:otp, :is_scheduled, :scheduled_time, :is_delivery, :delivery_details, :sponsored_by,
			:messages, :driver_rating, :rider_rating, :settling_since, :version, :created_at, :updated_at)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.q, query, row); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	return r.getOne(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
}

// Update writes the ride if its stored version is unchanged and bumps the version.
func (r *RideRepository) Update(ctx context.Context, ride *domain.Ride) error {
	expected := ride.Version
	ride.UpdatedAt = time.Now().UTC()

	row, err := toRideRow(ride)
	if err != nil {
		return err
	}

	query := `
		UPDATE rides SET
			driver_id = :driver_id, stops = :stops, payment_method = :payment_method,
			rider_offer = :rider_offer, fare = :fare, min_price = :min_price, max_price = :max_price,
			fare_split = :fare_split, offers = :offers, status = :status, safety_status = :safety_status,
			is_scheduled = :is_scheduled, scheduled_time = :scheduled_time, sponsored_by = :sponsored_by,
			messages = :messages, driver_rating = :driver_rating, rider_rating = :rider_rating,
			settling_since = :settling_since,
			version = version + 1, updated_at = :updated_at
		WHERE id = :id AND version = :version
	`

	result, err := sqlx.NamedExecContext(ctx, r.q, query, row)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Distinguish a missing ride from a lost race.
		var exists bool
		if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, ride.ID); err != nil {
			return err
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	}

	ride.Version = expected + 1
	return nil
}

// FindActiveByRider returns the rider's ride in any active status.
func (r *RideRepository) FindActiveByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE rider_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, riderID, pq.Array(statusStrings(domain.ActiveRideStatuses)))
}

// FindActiveByDriver returns the ride the driver is currently bound to.
func (r *RideRepository) FindActiveByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE driver_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, driverID, pq.Array(statusStrings(domain.DriverActiveRideStatuses)))
}

// ListByStatus retrieves up to limit rides in the given status, oldest first.
func (r *RideRepository) ListByStatus(ctx context.Context, status domain.RideStatus, limit int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	return r.getMany(ctx, query, string(status), limit)
}

// ListByParty retrieves a page of the user's rides, newest first, with the total count.
func (r *RideRepository) ListByParty(ctx context.Context, userID string, offset, limit int) ([]*domain.Ride, int, error) {
	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, `SELECT COUNT(*) FROM rides WHERE rider_id = $1 OR driver_id = $1`, userID); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + rideColumns + ` FROM rides WHERE rider_id = $1 OR driver_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`
	rides, err := r.getMany(ctx, query, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return rides, total, nil
}

func (r *RideRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Ride, error) {
	var row rideRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

func (r *RideRepository) getMany(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	var rows []rideRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, err
	}

	rides := make([]*domain.Ride, 0, len(rows))
	for i := range rows {
		ride, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, nil
}

func toRideRow(ride *domain.Ride) (*rideRow, error) {
	row := &rideRow{
		ID:             ride.ID,
		RiderID:        ride.RiderID,
		PickupLat:      ride.Pickup.Lat,
		PickupLng:      ride.Pickup.Lng,
		PickupAddress:  ride.Pickup.Address,
		DropoffLat:     ride.Dropoff.Lat,
		DropoffLng:     ride.Dropoff.Lng,
		DropoffAddress: ride.Dropoff.Address,
		VehicleType:    string(ride.VehicleType),
		PaymentMethod:  string(ride.PaymentMethod),
		RiderOffer:     ride.RiderOffer,
		Fare:           ride.Fare,
		MinPrice:       ride.MinPrice,
		MaxPrice:       ride.MaxPrice,
		Status:         string(ride.Status),
		SafetyStatus:   string(ride.SafetyStatus),
		OTP:            ride.OTP,
		IsScheduled:    ride.IsScheduled,
		IsDelivery:     ride.IsDelivery,
		SponsoredBy:    ride.SponsoredBy,
		DriverRating:   ride.DriverRating,
		RiderRating:    ride.RiderRating,
		Version:        ride.Version,
		CreatedAt:      ride.CreatedAt,
		UpdatedAt:      ride.UpdatedAt,
	}

	if ride.DriverID != "" {
		row.DriverID = sql.NullString{String: ride.DriverID, Valid: true}
	}
	if ride.ScheduledTime != nil {
		row.ScheduledTime = sql.NullTime{Time: *ride.ScheduledTime, Valid: true}
	}
	if ride.SettlingSince != nil {
		row.SettlingSince = sql.NullTime{Time: *ride.SettlingSince, Valid: true}
	}

	var err error
	if row.Stops, err = marshalList(ride.Stops); err != nil {
		return nil, err
	}
	if row.Offers, err = marshalList(ride.Offers); err != nil {
		return nil, err
	}
	if row.Messages, err = marshalList(ride.Messages); err != nil {
		return nil, err
	}
	if ride.FareSplit != nil {
		if row.FareSplit, err = marshalNullable(ride.FareSplit); err != nil {
			return nil, err
		}
	}
	if ride.DeliveryDetails != nil {
		if row.DeliveryDetails, err = marshalNullable(ride.DeliveryDetails); err != nil {
			return nil, err
		}
	}

	return row, nil
}

func (row *rideRow) toDomain() (*domain.Ride, error) {
	ride := &domain.Ride{
		ID:            row.ID,
		RiderID:       row.RiderID,
		Pickup:        domain.Point{Lat: row.PickupLat, Lng: row.PickupLng, Address: row.PickupAddress},
		Dropoff:       domain.Point{Lat: row.DropoffLat, Lng: row.DropoffLng, Address: row.DropoffAddress},
		VehicleType:   domain.VehicleType(row.VehicleType),
		PaymentMethod: domain.PaymentMethod(row.PaymentMethod),
		RiderOffer:    row.RiderOffer,
		Fare:          row.Fare,
		MinPrice:      row.MinPrice,
		MaxPrice:      row.MaxPrice,
		Status:        domain.RideStatus(row.Status),
		SafetyStatus:  domain.SafetyStatus(row.SafetyStatus),
		OTP:           row.OTP,
		IsScheduled:   row.IsScheduled,
		IsDelivery:    row.IsDelivery,
		SponsoredBy:   row.SponsoredBy,
		DriverRating:  row.DriverRating,
		RiderRating:   row.RiderRating,
		Version:       row.Version,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		Offers:        []domain.Offer{},
		Messages:      []domain.Message{},
	}

	if row.DriverID.Valid {
		ride.DriverID = row.DriverID.String
	}
	if row.ScheduledTime.Valid {
		at := row.ScheduledTime.Time
		ride.ScheduledTime = &at
	}
	if row.SettlingSince.Valid {
		since := row.SettlingSince.Time
		ride.SettlingSince = &since
	}

	if err := unmarshalIfSet(row.Stops, &ride.Stops); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(row.Offers, &ride.Offers); err != nil {
		return nil, err
	}
	if err := unmarshalIfSet(row.Messages, &ride.Messages); err != nil {
		return nil, err
	}
	if row.FareSplit.Valid {
		ride.FareSplit = &domain.FareSplit{}
		if err := json.Unmarshal([]byte(row.FareSplit.String), ride.FareSplit); err != nil {
			return nil, err
		}
	}
	if row.DeliveryDetails.Valid {
		ride.DeliveryDetails = &domain.DeliveryDetails{}
		if err := json.Unmarshal([]byte(row.DeliveryDetails.String), ride.DeliveryDetails); err != nil {
			return nil, err
		}
	}

	return ride, nil
}

// marshalList encodes a slice as a JSON array, never as null.
// JSONB values are bound as text since lib/pq sends []byte as bytea.
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	return string(data), err
}

func marshalNullable(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalIfSet(data string, dest any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), dest)
}

func statusStrings(statuses []domain.RideStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
