package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardio-ai/triage/internal/shared/errors"
)

// Repository provides database operations for symptom and escalation rules
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new rules repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// --- Symptom rules ---

// CreateSymptom creates a canonical symptom rule
func (r *Repository) CreateSymptom(ctx context.Context, rule *SymptomRule) error {
	query := `
		INSERT INTO symptom_rules (symptom_key, follow_up_questions, urgency)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query, rule.SymptomKey, rule.FollowUpQuestions, rule.Urgency).Scan(&rule.ID)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("symptom with this key already exists")
		}
		return errors.Wrap(err, "failed to create symptom rule")
	}

	return nil
}

// ListSymptoms lists all canonical symptom rules
func (r *Repository) ListSymptoms(ctx context.Context) ([]SymptomRule, error) {
	query := `
		SELECT id, symptom_key, follow_up_questions, urgency
		FROM symptom_rules
		ORDER BY symptom_key`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list symptom rules")
	}
	defer rows.Close()

	var result []SymptomRule
	for rows.Next() {
		var rule SymptomRule
		if err := rows.Scan(&rule.ID, &rule.SymptomKey, &rule.FollowUpQuestions, &rule.Urgency); err != nil {
			return nil, errors.Wrap(err, "failed to scan symptom rule")
		}
		result = append(result, rule)
	}

	return result, nil
}

// --- Escalation rules ---

// CreateEscalation creates an escalation rule
func (r *Repository) CreateEscalation(ctx context.Context, rule *EscalationRule) error {
	query := `
		INSERT INTO followup_rules (symptom_key, question_pattern, trigger_values, new_urgency)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		rule.SymptomKey, rule.QuestionPattern, rule.TriggerValues, rule.NewUrgency,
	).Scan(&rule.ID)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			return errors.BadRequest("symptom_key does not reference a known symptom")
		}
		return errors.Wrap(err, "failed to create escalation rule")
	}

	return nil
}

// ListEscalations lists all escalation rules
func (r *Repository) ListEscalations(ctx context.Context) ([]EscalationRule, error) {
	query := `
		SELECT id, symptom_key, question_pattern, trigger_values, new_urgency
		FROM followup_rules
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list escalation rules")
	}
	defer rows.Close()

	var result []EscalationRule
	for rows.Next() {
		var rule EscalationRule
		if err := rows.Scan(&rule.ID, &rule.SymptomKey, &rule.QuestionPattern, &rule.TriggerValues, &rule.NewUrgency); err != nil {
			return nil, errors.Wrap(err, "failed to scan escalation rule")
		}
		result = append(result, rule)
	}

	return result, nil
}

// DeleteEscalation deletes an escalation rule by ID
func (r *Repository) DeleteEscalation(ctx context.Context, id int) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM followup_rules WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete escalation rule")
	}

	if result.RowsAffected() == 0 {
		return errors.NotFound("escalation rule", fmt.Sprintf("%d", id))
	}

	return nil
}
