package rules

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cardio-ai/triage/internal/consult"
	"github.com/cardio-ai/triage/internal/shared/errors"
)

// Handler provides HTTP handlers for the operator rule tables
type Handler struct {
	repo      *Repository
	adminOnly func(http.Handler) http.Handler
}

// NewHandler creates a new rules handler. adminOnly guards the mutating
// routes; a nil guard leaves them open (dev mode).
func NewHandler(repo *Repository, adminOnly func(http.Handler) http.Handler) *Handler {
	if adminOnly == nil {
		adminOnly = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{repo: repo, adminOnly: adminOnly}
}

// Routes registers the rule routes. The escalation routes are also reachable
// under /followup-rules, an alias kept for older admin frontends.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/symptoms", func(r chi.Router) {
		r.Get("/", h.ListSymptoms)
		r.With(h.adminOnly).Post("/", h.CreateSymptom)
	})

	escalationRoutes := func(r chi.Router) {
		r.Get("/", h.ListEscalations)
		r.With(h.adminOnly).Post("/", h.CreateEscalation)
		r.With(h.adminOnly).Delete("/{ruleID}", h.DeleteEscalation)
	}
	r.Route("/escalations", escalationRoutes)
	r.Route("/followup-rules", escalationRoutes)

	return r
}

// ListSymptoms lists all canonical symptoms
func (h *Handler) ListSymptoms(w http.ResponseWriter, r *http.Request) {
	symptoms, err := h.repo.ListSymptoms(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if symptoms == nil {
		symptoms = []SymptomRule{}
	}
	writeJSON(w, http.StatusOK, symptoms)
}

// CreateSymptom creates a canonical symptom
func (h *Handler) CreateSymptom(w http.ResponseWriter, r *http.Request) {
	var req CreateSymptomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.SymptomKey == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"symptom_key": "symptom_key is required",
		}))
		return
	}
	if req.Urgency == "" {
		req.Urgency = consult.UrgencyNormal
	}
	if !req.Urgency.Valid() {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"urgency": "urgency must be one of: " + urgencyChoices(),
		}))
		return
	}

	rule := &SymptomRule{
		SymptomKey:        req.SymptomKey,
		FollowUpQuestions: req.FollowUpQuestions,
		Urgency:           req.Urgency,
	}
	if rule.FollowUpQuestions == nil {
		rule.FollowUpQuestions = []string{}
	}

	if err := h.repo.CreateSymptom(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

// ListEscalations lists all escalation rules
func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	escalations, err := h.repo.ListEscalations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if escalations == nil {
		escalations = []EscalationRule{}
	}
	writeJSON(w, http.StatusOK, escalations)
}

// CreateEscalation creates an escalation rule
func (h *Handler) CreateEscalation(w http.ResponseWriter, r *http.Request) {
	var req CreateEscalationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	details := map[string]string{}
	if req.SymptomKey == "" {
		details["symptom_key"] = "symptom_key is required"
	}
	if req.QuestionPattern == "" {
		details["question_pattern"] = "question_pattern is required"
	} else if _, err := regexp.Compile("(?i)" + req.QuestionPattern); err != nil {
		details["question_pattern"] = "question_pattern is not a valid regex"
	}
	if len(req.TriggerValues) == 0 {
		details["trigger_values"] = "at least one trigger value is required"
	}
	if !req.NewUrgency.Valid() {
		details["new_urgency"] = "new_urgency must be one of: " + urgencyChoices()
	}
	if len(details) > 0 {
		writeError(w, errors.Validation("validation failed", details))
		return
	}

	rule := &EscalationRule{
		SymptomKey:      req.SymptomKey,
		QuestionPattern: req.QuestionPattern,
		TriggerValues:   req.TriggerValues,
		NewUrgency:      req.NewUrgency,
	}

	if err := h.repo.CreateEscalation(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rule)
}

// DeleteEscalation deletes an escalation rule
func (h *Handler) DeleteEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid rule ID"))
		return
	}

	if err := h.repo.DeleteEscalation(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "escalation rule deleted"})
}

func urgencyChoices() string {
	members := consult.Urgencies()
	names := make([]string, len(members))
	for i, u := range members {
		names[i] = string(u)
	}
	return strings.Join(names, ", ")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
