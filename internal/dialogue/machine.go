package dialogue

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/consult"
	"github.com/cardio-ai/triage/internal/llm"
	"github.com/cardio-ai/triage/internal/patient"
	"github.com/cardio-ai/triage/internal/rules"
	"github.com/cardio-ai/triage/internal/shared/errors"
	"github.com/cardio-ai/triage/internal/shared/metrics"
)

// PatientStore is the slice of patient storage the dialogue needs.
type PatientStore interface {
	GetByEmail(ctx context.Context, email string) (*patient.Patient, error)
	Create(ctx context.Context, p *patient.Patient) error
	UpdateAge(ctx context.Context, id int, age string) error
}

// ConsultStore is the slice of consult storage the dialogue needs. Consults
// are re-read before every mutation so the dialogue never works from a stale
// in-memory copy.
type ConsultStore interface {
	Create(ctx context.Context, patientID int) (*consult.Consult, error)
	Get(ctx context.Context, id int) (*consult.Consult, error)
	Save(ctx context.Context, c *consult.Consult) error
}

// RuleStore supplies the operator-managed symptom and escalation tables.
type RuleStore interface {
	ListSymptoms(ctx context.Context) ([]rules.SymptomRule, error)
	ListEscalations(ctx context.Context) ([]rules.EscalationRule, error)
}

// Gateway is the text-generation capability the dialogue delegates to. Every
// method degrades to a neutral value on failure, so the machine never has to
// handle a gateway error.
type Gateway interface {
	RuleJudge
	ExtractField(ctx context.Context, field, text string) string
	ExtractSymptoms(ctx context.Context, text string, known []string) []string
	ClassifyVagueness(ctx context.Context, question, answer string) llm.VaguenessResult
	Rephrase(ctx context.Context, patientName, question, prevAnswer string) string
	ExplainAnswer(ctx context.Context, symptom, question, answer string) string
}

// Question is an outbound follow-up question event. Text is the canonical
// question; Phrased is the conversational wrapper shown to the patient.
type Question struct {
	Symptoms []string
	Index    int
	Text     string
	Phrased  string
}

// Emitter delivers outbound messages to a session's transport.
type Emitter interface {
	BotMessage(sessionID, msg string)
	AskQuestion(sessionID string, q Question)
}

// Notifier hands a completed consult to the clinician. It reports the final
// consult status (scheduled or needs_manual_schedule) and the calendar event
// id when booking succeeded. It never fails the dialogue.
type Notifier interface {
	Handoff(ctx context.Context, c *consult.Consult, p *patient.Patient) (consult.Status, string)
}

// Machine drives the intake dialogue. One event per session is processed at
// a time; sessions are independent.
type Machine struct {
	registry *Registry
	patients PatientStore
	consults ConsultStore
	rules    RuleStore
	gateway  Gateway
	resolver *Resolver
	emitter  Emitter
	notifier Notifier
	logger   *zap.Logger
}

func NewMachine(registry *Registry, patients PatientStore, consults ConsultStore, ruleStore RuleStore, gateway Gateway, emitter Emitter, notifier Notifier, logger *zap.Logger) *Machine {
	return &Machine{
		registry: registry,
		patients: patients,
		consults: consults,
		rules:    ruleStore,
		gateway:  gateway,
		resolver: NewResolver(gateway),
		emitter:  emitter,
		notifier: notifier,
		logger:   logger,
	}
}

// phrase wraps text in a conversational lead-in via the gateway, falling back
// to the raw text when the gateway yields nothing.
func (m *Machine) phrase(ctx context.Context, name, text, prevAnswer string) string {
	if out := m.gateway.Rephrase(ctx, name, text, prevAnswer); out != "" {
		return out
	}
	return text
}

func (m *Machine) fail(sessionID, msg string, err error) {
	m.logger.Error("dialogue event failed", zap.String("session_id", sessionID), zap.Error(err))
	m.emitter.BotMessage(sessionID, msg)
}

// HandleConnect registers the session and emits the opening question.
func (m *Machine) HandleConnect(ctx context.Context, sessionID string) {
	s := m.registry.Create(sessionID)
	m.logger.Info("session connected", zap.String("session_id", sessionID))
	msg := m.phrase(ctx, "Patient", "Please tell me your name?", "")
	if s.Closed() {
		return
	}
	m.emitter.BotMessage(sessionID, msg)
}

// HandleDisconnect purges all state for the session. Safe to call more than
// once; only the first call does anything.
func (m *Machine) HandleDisconnect(sessionID string) {
	if m.registry.Delete(sessionID) {
		m.logger.Info("session disconnected", zap.String("session_id", sessionID))
	}
}

// HandleStartConsult advances the identity-capture stages. Field extraction
// failure falls back to the raw trimmed input; it never blocks the dialogue.
func (m *Machine) HandleStartConsult(ctx context.Context, sessionID, text string) {
	s, ok := m.registry.Get(sessionID)
	if !ok {
		m.emitter.BotMessage(sessionID, "Session not started.")
		return
	}
	s.Lock()
	defer s.Unlock()

	switch s.Stage {
	case StageAskName:
		name := m.gateway.ExtractField(ctx, "name", text)
		if name == "" {
			name = strings.TrimSpace(text)
		}
		if s.Closed() {
			return
		}
		s.Name = name
		s.Stage = StageAskAge
		m.emitter.BotMessage(sessionID, m.phrase(ctx, s.Name, "Now please tell me your age.", ""))

	case StageAskAge:
		age := m.gateway.ExtractField(ctx, "age", text)
		if age == "" {
			age = strings.TrimSpace(text)
		}
		if s.Closed() {
			return
		}
		s.Age = age
		s.Stage = StageAskEmail
		m.emitter.BotMessage(sessionID, m.phrase(ctx, s.Name, "Now please provide your email ID.", ""))

	case StageAskEmail:
		email := m.gateway.ExtractField(ctx, "email", text)
		if email == "" {
			email = strings.TrimSpace(text)
		}
		if s.Closed() {
			return
		}
		s.Email = email

		p, err := m.patients.GetByEmail(ctx, s.Email)
		switch {
		case err == nil:
			if p.Age == "" && s.Age != "" {
				if uerr := m.patients.UpdateAge(ctx, p.ID, s.Age); uerr != nil {
					m.logger.Warn("age backfill failed", zap.Int("patient_id", p.ID), zap.Error(uerr))
				}
			}
		case errors.IsNotFound(err):
			p = &patient.Patient{Name: s.Name, Age: s.Age, Email: s.Email}
			if cerr := m.patients.Create(ctx, p); cerr != nil {
				m.fail(sessionID, "Error while starting consult.", cerr)
				return
			}
		default:
			m.fail(sessionID, "Error while starting consult.", err)
			return
		}

		c, err := m.consults.Create(ctx, p.ID)
		if err != nil {
			m.fail(sessionID, "Error while starting consult.", err)
			return
		}
		if s.Closed() {
			return
		}
		s.PatientID = p.ID
		s.ConsultID = c.ID
		s.Stage = StageCollectSymptoms
		m.emitter.BotMessage(sessionID, m.phrase(ctx, s.Name, "Please tell me your symptoms (e.g., chest pain, shortness of breath).", ""))

	default:
		m.emitter.BotMessage(sessionID, "Unexpected input.")
	}
}

// HandlePatientSymptoms matches free text against the canonical vocabulary
// and builds the follow-up queue. With zero matches the stage holds and the
// patient is re-prompted with the full canonical list.
func (m *Machine) HandlePatientSymptoms(ctx context.Context, sessionID, text string) {
	s, ok := m.registry.Get(sessionID)
	if !ok {
		m.emitter.BotMessage(sessionID, "Session not started.")
		return
	}
	s.Lock()
	defer s.Unlock()

	if s.Stage != StageCollectSymptoms {
		m.emitter.BotMessage(sessionID, "Session not started.")
		return
	}
	if s.ConsultID == 0 {
		m.emitter.BotMessage(sessionID, "No consult found.")
		return
	}

	symptomRules, err := m.rules.ListSymptoms(ctx)
	if err != nil {
		m.fail(sessionID, "Error while collecting symptoms.", err)
		return
	}
	known := make([]string, len(symptomRules))
	byKey := make(map[string]rules.SymptomRule, len(symptomRules))
	for i, sr := range symptomRules {
		known[i] = sr.SymptomKey
		byKey[sr.SymptomKey] = sr
	}

	extracted := m.gateway.ExtractSymptoms(ctx, text, known)
	matched := rules.MatchAll(extracted, known)
	if s.Closed() {
		return
	}

	if len(matched) == 0 {
		msg := m.phrase(ctx, s.Name, "Sorry, I couldn't recognise your symptoms. Please choose from: "+strings.Join(known, ", "), "")
		if s.Closed() {
			return
		}
		m.emitter.BotMessage(sessionID, msg)
		return
	}

	c, err := m.consults.Get(ctx, s.ConsultID)
	if err != nil {
		m.fail(sessionID, "Error while collecting symptoms.", err)
		return
	}
	c.Symptoms = matched
	c.EnsureAnswerSlots()
	if err := m.consults.Save(ctx, c); err != nil {
		m.fail(sessionID, "Error while collecting symptoms.", err)
		return
	}

	s.Queue = s.Queue[:0]
	for _, key := range matched {
		for idx, q := range byKey[key].FollowUpQuestions {
			s.Queue = append(s.Queue, FollowUpItem{Symptoms: []string{key}, Index: idx, Text: q})
		}
	}
	s.Stage = StageFollowups

	if item := s.PopQuestion(); item != nil {
		m.askNext(ctx, s, *item, "")
	} else {
		m.finalize(ctx, s)
	}
}

// HandleAnswerQuestion runs the vagueness check, records the answer against
// its canonical symptoms, recomputes urgency and either emits the next
// question or finalizes the consult.
func (m *Machine) HandleAnswerQuestion(ctx context.Context, sessionID string, declared []string, answerText, questionText string) {
	s, ok := m.registry.Get(sessionID)
	if !ok {
		m.emitter.BotMessage(sessionID, "No consult found.")
		return
	}
	s.Lock()
	defer s.Unlock()

	if s.Stage != StageFollowups {
		m.emitter.BotMessage(sessionID, "Session not started.")
		return
	}
	if s.ConsultID == 0 {
		m.emitter.BotMessage(sessionID, "No consult found.")
		return
	}

	answer := strings.TrimSpace(answerText)
	question := strings.TrimSpace(questionText)
	if question == "" && s.LastQuestion != nil {
		question = s.LastQuestion.Text
	}
	if question == "" {
		question = "Follow-up question"
	}

	res := m.gateway.ClassifyVagueness(ctx, question, answer)
	if s.Closed() {
		return
	}
	if res.Vague && s.RetryCount < 2 {
		s.RetryCount++
		clarify := res.Clarify
		if clarify == "" {
			clarify = "Could you clarify: " + question
		}
		idx := 0
		if s.LastQuestion != nil {
			idx = s.LastQuestion.Index
		}
		m.emitter.AskQuestion(sessionID, Question{Symptoms: declared, Index: idx, Text: question, Phrased: clarify})
		return
	}
	s.RetryCount = 0

	c, err := m.consults.Get(ctx, s.ConsultID)
	if err != nil {
		m.fail(sessionID, "Error while recording answer.", err)
		return
	}
	c.EnsureAnswerSlots()

	targets := rules.MatchAll(declared, c.Symptoms)
	if len(targets) == 0 && s.LastQuestion != nil {
		targets = rules.MatchAll(s.LastQuestion.Symptoms, c.Symptoms)
	}
	if len(targets) == 0 {
		targets = c.Symptoms
	}

	for _, sym := range targets {
		entry := consult.Answer{Question: question, Answer: answer}
		if note := m.gateway.ExplainAnswer(ctx, sym, question, answer); note != "" {
			entry.DoctorNote = note
		}
		c.Record(sym, entry)
	}

	symptomRules, err := m.rules.ListSymptoms(ctx)
	if err != nil {
		m.fail(sessionID, "Error while recording answer.", err)
		return
	}
	escalations, err := m.rules.ListEscalations(ctx)
	if err != nil {
		m.fail(sessionID, "Error while recording answer.", err)
		return
	}
	c.Escalate(m.resolver.Resolve(ctx, c, symptomRules, escalations))
	if s.Closed() {
		return
	}
	if err := m.consults.Save(ctx, c); err != nil {
		m.fail(sessionID, "Error while recording answer.", err)
		return
	}

	if item := s.PopQuestion(); item != nil {
		m.askNext(ctx, s, *item, answer)
	} else {
		m.finalize(ctx, s)
	}
}

func (m *Machine) askNext(ctx context.Context, s *Session, item FollowUpItem, prevAnswer string) {
	lead := fmt.Sprintf("For your %s, %s", strings.Join(item.Symptoms, ", "), item.Text)
	phrased := m.phrase(ctx, s.Name, lead, prevAnswer)
	if s.Closed() {
		return
	}
	m.emitter.AskQuestion(s.ID, Question{Symptoms: item.Symptoms, Index: item.Index, Text: item.Text, Phrased: phrased})
}

// finalize renders the summary, marks the consult completed, purges the
// session and hands the consult to the clinician. Hand-off failures only
// affect the consult status, never the patient-facing flow.
func (m *Machine) finalize(ctx context.Context, s *Session) {
	defer m.registry.Delete(s.ID)

	c, err := m.consults.Get(ctx, s.ConsultID)
	if err != nil {
		m.fail(s.ID, "Failed to prepare doctor summary.", err)
		return
	}
	escalations, err := m.rules.ListEscalations(ctx)
	if err != nil {
		m.fail(s.ID, "Failed to prepare doctor summary.", err)
		return
	}

	summary := RenderSummary(s.Name, s.Age, s.Email, c, EscalationNotes(c, escalations))
	m.emitter.BotMessage(s.ID, summary)
	m.emitter.BotMessage(s.ID, "Thanks, I have all your answers. I'll notify the doctor.")

	c.Status = consult.StatusCompleted
	if err := m.consults.Save(ctx, c); err != nil {
		m.logger.Error("consult completion save failed", zap.Int("consult_id", c.ID), zap.Error(err))
		return
	}
	s.Stage = StageCompleted
	metrics.RecordConsultCompleted(string(c.Urgency))

	if m.notifier == nil {
		return
	}
	p := &patient.Patient{ID: s.PatientID, Name: s.Name, Age: s.Age, Email: s.Email}
	status, eventID := m.notifier.Handoff(ctx, c, p)
	c.Status = status
	if eventID != "" {
		c.CalendarEventID = &eventID
	}
	if err := m.consults.Save(ctx, c); err != nil {
		m.logger.Error("consult hand-off save failed", zap.Int("consult_id", c.ID), zap.Error(err))
	}
}
