package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	AppendDevice(ctx context.Context, id, deviceID string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, email, tier, license_key, devices, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, userID, user.Email, user.Tier, user.LicenseKey, user.Devices, user.CreatedAt.UTC())
	return err
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, email, tier, license_key, devices, created_at FROM users WHERE id = $1`, userID)
	var (
		scannedID uuid.UUID
		createdAt time.Time
		user      User
	)
	if err := row.Scan(&scannedID, &user.Email, &user.Tier, &user.LicenseKey, &user.Devices, &createdAt); err != nil {
		return User{}, ErrNotFound
	}
	user.ID = scannedID.String()
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

// AppendDevice records an additional device identifier for the user. Device
// lists are append-only; no binding policy is enforced here.
func (r *PostgresRepository) AppendDevice(ctx context.Context, id, deviceID string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET devices = array_append(devices, $1)
        WHERE id = $2 AND NOT ($1 = ANY(devices))`, deviceID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// Either unknown user or the device is already recorded; only the
		// former is an error.
		if _, err := r.FindByID(ctx, id); err != nil {
			return ErrNotFound
		}
	}
	return nil
}
