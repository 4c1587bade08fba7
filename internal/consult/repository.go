package consult

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardio-ai/triage/internal/shared/errors"
)

// Repository provides database operations for consults
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new consult repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new in-progress consult for the patient
func (r *Repository) Create(ctx context.Context, patientID int) (*Consult, error) {
	c := &Consult{
		PatientID:       patientID,
		Symptoms:        []string{},
		FollowUpAnswers: map[string][]Answer{},
		Urgency:         UrgencyNormal,
		Status:          StatusInProgress,
	}

	query := `
		INSERT INTO consults (patient_id, symptoms, follow_up_answers, urgency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	symptomsJSON, answersJSON, err := marshalConsult(c)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx, query,
		c.PatientID, symptomsJSON, answersJSON, c.Urgency, c.Status,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create consult")
	}

	return c, nil
}

// Get retrieves a consult by ID
func (r *Repository) Get(ctx context.Context, id int) (*Consult, error) {
	query := `
		SELECT id, patient_id, symptoms, follow_up_answers, urgency, status,
			calendar_event_id, created_at, updated_at
		FROM consults
		WHERE id = $1`

	c := &Consult{}
	var symptomsJSON, answersJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.PatientID, &symptomsJSON, &answersJSON, &c.Urgency, &c.Status,
		&c.CalendarEventID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("consult", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get consult")
	}

	if err := unmarshalConsult(c, symptomsJSON, answersJSON); err != nil {
		return nil, err
	}

	return c, nil
}

// Save writes back symptoms, answers, urgency, status and the calendar event
// id for an existing consult
func (r *Repository) Save(ctx context.Context, c *Consult) error {
	symptomsJSON, answersJSON, err := marshalConsult(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE consults SET
			symptoms = $2, follow_up_answers = $3, urgency = $4, status = $5,
			calendar_event_id = $6, updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		c.ID, symptomsJSON, answersJSON, c.Urgency, c.Status, c.CalendarEventID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save consult")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("consult", fmt.Sprintf("%d", c.ID))
	}

	return nil
}

func marshalConsult(c *Consult) ([]byte, []byte, error) {
	if c.Symptoms == nil {
		c.Symptoms = []string{}
	}
	if c.FollowUpAnswers == nil {
		c.FollowUpAnswers = map[string][]Answer{}
	}

	symptomsJSON, err := json.Marshal(c.Symptoms)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal consult symptoms")
	}
	answersJSON, err := json.Marshal(c.FollowUpAnswers)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal consult answers")
	}
	return symptomsJSON, answersJSON, nil
}

func unmarshalConsult(c *Consult, symptomsJSON, answersJSON []byte) error {
	if len(symptomsJSON) > 0 {
		if err := json.Unmarshal(symptomsJSON, &c.Symptoms); err != nil {
			return errors.Wrap(err, "failed to unmarshal consult symptoms")
		}
	}
	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &c.FollowUpAnswers); err != nil {
			return errors.Wrap(err, "failed to unmarshal consult answers")
		}
	}
	return nil
}
