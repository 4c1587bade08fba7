package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardio-ai/triage/internal/shared/errors"
)

// Repository provides database operations for patients
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new patient repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new patient
func (r *Repository) Create(ctx context.Context, p *Patient) error {
	query := `
		INSERT INTO patients (name, age, email)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, p.Name, p.Age, p.Email).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("patient with this email already exists")
		}
		return errors.Wrap(err, "failed to create patient")
	}

	return nil
}

// GetByEmail retrieves a patient by email
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	query := `
		SELECT id, name, age, email, created_at
		FROM patients
		WHERE email = $1
		LIMIT 1`

	p := &Patient{}
	err := r.pool.QueryRow(ctx, query, email).Scan(&p.ID, &p.Name, &p.Age, &p.Email, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", email)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get patient by email")
	}

	return p, nil
}

// Get retrieves a patient by ID
func (r *Repository) Get(ctx context.Context, id int) (*Patient, error) {
	query := `
		SELECT id, name, age, email, created_at
		FROM patients
		WHERE id = $1`

	p := &Patient{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Age, &p.Email, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get patient")
	}

	return p, nil
}

// UpdateAge backfills the age of an existing patient
func (r *Repository) UpdateAge(ctx context.Context, id int, age string) error {
	result, err := r.pool.Exec(ctx, `UPDATE patients SET age = $2 WHERE id = $1`, id, age)
	if err != nil {
		return errors.Wrap(err, "failed to update patient age")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("patient", fmt.Sprintf("%d", id))
	}

	return nil
}

// List lists all patients, newest first
func (r *Repository) List(ctx context.Context) ([]Patient, error) {
	query := `
		SELECT id, name, age, email, created_at
		FROM patients
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Email, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan patient")
		}
		patients = append(patients, p)
	}

	return patients, nil
}
