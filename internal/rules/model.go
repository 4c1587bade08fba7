package rules

import (
	"github.com/cardio-ai/triage/internal/consult"
)

// SymptomRule is an operator-curated canonical symptom: the matching target
// for free-text mentions, its follow-up questions in ask order, and the base
// urgency its presence implies.
type SymptomRule struct {
	ID                int             `json:"id"`
	SymptomKey        string          `json:"symptom_key"`
	FollowUpQuestions []string        `json:"follow_up_questions"`
	Urgency           consult.Urgency `json:"urgency"`
}

// EscalationRule raises consult urgency when a follow-up answer under the
// rule's symptom satisfies it: the question must match QuestionPattern
// (case-insensitive regex) and the answer must contain one of TriggerValues
// as a case-insensitive substring, or pass the semantic judgment fallback.
type EscalationRule struct {
	ID              int             `json:"id"`
	SymptomKey      string          `json:"symptom_key"`
	QuestionPattern string          `json:"question_pattern"`
	TriggerValues   []string        `json:"trigger_values"`
	NewUrgency      consult.Urgency `json:"new_urgency"`
}

// CreateSymptomRequest is the request to create a canonical symptom
type CreateSymptomRequest struct {
	SymptomKey        string          `json:"symptom_key"`
	FollowUpQuestions []string        `json:"follow_up_questions"`
	Urgency           consult.Urgency `json:"urgency"`
}

// CreateEscalationRequest is the request to create an escalation rule
type CreateEscalationRequest struct {
	SymptomKey      string          `json:"symptom_key"`
	QuestionPattern string          `json:"question_pattern"`
	TriggerValues   []string        `json:"trigger_values"`
	NewUrgency      consult.Urgency `json:"new_urgency"`
}
