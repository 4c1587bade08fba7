package dialogue

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/consult"
	"github.com/cardio-ai/triage/internal/llm"
	"github.com/cardio-ai/triage/internal/patient"
	"github.com/cardio-ai/triage/internal/rules"
	apperrors "github.com/cardio-ai/triage/internal/shared/errors"
)

// --- Fakes ---

type fakePatients struct {
	nextID     int
	byEmail    map[string]*patient.Patient
	ageUpdates []string
}

func newFakePatients() *fakePatients {
	return &fakePatients{byEmail: make(map[string]*patient.Patient)}
}

func (f *fakePatients) GetByEmail(ctx context.Context, email string) (*patient.Patient, error) {
	if p, ok := f.byEmail[email]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, apperrors.NotFound("patient", email)
}

func (f *fakePatients) Create(ctx context.Context, p *patient.Patient) error {
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.byEmail[p.Email] = &cp
	return nil
}

func (f *fakePatients) UpdateAge(ctx context.Context, id int, age string) error {
	f.ageUpdates = append(f.ageUpdates, age)
	for _, p := range f.byEmail {
		if p.ID == id {
			p.Age = age
		}
	}
	return nil
}

type fakeConsults struct {
	nextID int
	store  map[int]*consult.Consult
	saves  int
}

func newFakeConsults() *fakeConsults {
	return &fakeConsults{store: make(map[int]*consult.Consult)}
}

func cloneConsult(c *consult.Consult) *consult.Consult {
	cp := *c
	cp.Symptoms = append([]string(nil), c.Symptoms...)
	cp.FollowUpAnswers = make(map[string][]consult.Answer, len(c.FollowUpAnswers))
	for k, v := range c.FollowUpAnswers {
		cp.FollowUpAnswers[k] = append([]consult.Answer(nil), v...)
	}
	return &cp
}

func (f *fakeConsults) Create(ctx context.Context, patientID int) (*consult.Consult, error) {
	f.nextID++
	c := &consult.Consult{
		ID:              f.nextID,
		PatientID:       patientID,
		Symptoms:        []string{},
		FollowUpAnswers: map[string][]consult.Answer{},
		Urgency:         consult.UrgencyNormal,
		Status:          consult.StatusInProgress,
	}
	f.store[c.ID] = cloneConsult(c)
	return c, nil
}

func (f *fakeConsults) Get(ctx context.Context, id int) (*consult.Consult, error) {
	c, ok := f.store[id]
	if !ok {
		return nil, apperrors.NotFound("consult", "")
	}
	return cloneConsult(c), nil
}

func (f *fakeConsults) Save(ctx context.Context, c *consult.Consult) error {
	f.saves++
	f.store[c.ID] = cloneConsult(c)
	return nil
}

type fakeRules struct {
	symptoms    []rules.SymptomRule
	escalations []rules.EscalationRule
}

func (f *fakeRules) ListSymptoms(ctx context.Context) ([]rules.SymptomRule, error) {
	return f.symptoms, nil
}

func (f *fakeRules) ListEscalations(ctx context.Context) ([]rules.EscalationRule, error) {
	return f.escalations, nil
}

type fakeGateway struct {
	fields      map[string]string
	symptoms    []string
	vague       []llm.VaguenessResult
	judge       bool
	onVagueness func()
}

func (g *fakeGateway) ExtractField(ctx context.Context, field, text string) string {
	return g.fields[field]
}

func (g *fakeGateway) ExtractSymptoms(ctx context.Context, text string, known []string) []string {
	return g.symptoms
}

func (g *fakeGateway) ClassifyVagueness(ctx context.Context, question, answer string) llm.VaguenessResult {
	if g.onVagueness != nil {
		g.onVagueness()
	}
	if len(g.vague) == 0 {
		return llm.VaguenessResult{}
	}
	res := g.vague[0]
	g.vague = g.vague[1:]
	return res
}

func (g *fakeGateway) JudgeRuleMatch(ctx context.Context, question, answer, symptomKey, pattern string, triggers []string, newUrgency string) bool {
	return g.judge
}

func (g *fakeGateway) Rephrase(ctx context.Context, patientName, question, prevAnswer string) string {
	return ""
}

func (g *fakeGateway) ExplainAnswer(ctx context.Context, symptom, question, answer string) string {
	return ""
}

type askedQuestion struct {
	sessionID string
	question  Question
}

type fakeEmitter struct {
	messages  []string
	questions []askedQuestion
}

func (e *fakeEmitter) BotMessage(sessionID, msg string) {
	e.messages = append(e.messages, msg)
}

func (e *fakeEmitter) AskQuestion(sessionID string, q Question) {
	e.questions = append(e.questions, askedQuestion{sessionID: sessionID, question: q})
}

type fakeNotifier struct {
	calls   int
	status  consult.Status
	eventID string
}

func (n *fakeNotifier) Handoff(ctx context.Context, c *consult.Consult, p *patient.Patient) (consult.Status, string) {
	n.calls++
	return n.status, n.eventID
}

// --- Harness ---

type harness struct {
	machine  *Machine
	registry *Registry
	patients *fakePatients
	consults *fakeConsults
	gateway  *fakeGateway
	emitter  *fakeEmitter
	notifier *fakeNotifier
}

func newHarness(gateway *fakeGateway, ruleStore *fakeRules) *harness {
	h := &harness{
		registry: NewRegistry(),
		patients: newFakePatients(),
		consults: newFakeConsults(),
		gateway:  gateway,
		emitter:  &fakeEmitter{},
		notifier: &fakeNotifier{status: consult.StatusScheduled, eventID: "evt-1"},
	}
	h.machine = NewMachine(h.registry, h.patients, h.consults, ruleStore, gateway, h.emitter, h.notifier, zap.NewNop())
	return h
}

// runIdentity walks a session through connect and the three identity stages.
func (h *harness) runIdentity(ctx context.Context, sessionID string) {
	h.machine.HandleConnect(ctx, sessionID)
	h.machine.HandleStartConsult(ctx, sessionID, "Jordan Lee")
	h.machine.HandleStartConsult(ctx, sessionID, "42")
	h.machine.HandleStartConsult(ctx, sessionID, "jordan@example.com")
}

func defaultRules() *fakeRules {
	return &fakeRules{
		symptoms: []rules.SymptomRule{
			{SymptomKey: "chest pain", FollowUpQuestions: []string{"When did the pain start?"}, Urgency: consult.UrgencyNormal},
			{SymptomKey: "shortness of breath", FollowUpQuestions: nil, Urgency: consult.UrgencySemiUrgent},
		},
		escalations: []rules.EscalationRule{
			{SymptomKey: "chest pain", QuestionPattern: "when.*start", TriggerValues: []string{"sudden"}, NewUrgency: consult.UrgencyUrgent},
		},
	}
}

// --- Tests ---

func TestIdentityCaptureCreatesPatientAndConsult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&fakeGateway{}, defaultRules())

	h.runIdentity(ctx, "s1")

	s, ok := h.registry.Get("s1")
	if !ok {
		t.Fatal("Expected session in registry")
	}
	if s.Stage != StageCollectSymptoms {
		t.Errorf("Expected stage collect_symptoms, got %s", s.Stage)
	}
	if s.Name != "Jordan Lee" || s.Age != "42" || s.Email != "jordan@example.com" {
		t.Errorf("Identity fields not captured: %+v", s)
	}
	if s.ConsultID == 0 {
		t.Error("Expected consult to be created")
	}
	if _, ok := h.patients.byEmail["jordan@example.com"]; !ok {
		t.Error("Expected patient to be created")
	}
}

func TestIdentityCaptureReusesPatientAndBackfillsAge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&fakeGateway{}, defaultRules())
	h.patients.byEmail["jordan@example.com"] = &patient.Patient{ID: 7, Name: "Jordan Lee", Email: "jordan@example.com"}

	h.runIdentity(ctx, "s1")

	if len(h.patients.ageUpdates) != 1 || h.patients.ageUpdates[0] != "42" {
		t.Errorf("Expected age backfill to 42, got %v", h.patients.ageUpdates)
	}
	s, _ := h.registry.Get("s1")
	if s.PatientID != 7 {
		t.Errorf("Expected existing patient id 7, got %d", s.PatientID)
	}
}

func TestExtractionFallsBackToRawInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&fakeGateway{fields: map[string]string{"name": "Jordan"}}, defaultRules())

	h.machine.HandleConnect(ctx, "s1")
	h.machine.HandleStartConsult(ctx, "s1", "hi I'm Jordan")
	h.machine.HandleStartConsult(ctx, "s1", "  42  ")

	s, _ := h.registry.Get("s1")
	if s.Name != "Jordan" {
		t.Errorf("Expected extracted name, got '%s'", s.Name)
	}
	if s.Age != "42" {
		t.Errorf("Expected raw trimmed age fallback, got '%s'", s.Age)
	}
}

func TestSymptomMatchBuildsQueueAndAsksFirstQuestion(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"chest pain", "shortness of breath"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	h.machine.HandlePatientSymptoms(ctx, "s1", "I have chest pain and can't breathe")

	s, _ := h.registry.Get("s1")
	if s.Stage != StageFollowups {
		t.Errorf("Expected stage followups, got %s", s.Stage)
	}

	c := h.consults.store[s.ConsultID]
	if len(c.Symptoms) != 2 || c.Symptoms[0] != "chest pain" || c.Symptoms[1] != "shortness of breath" {
		t.Errorf("Expected both symptoms recorded, got %v", c.Symptoms)
	}

	if len(h.emitter.questions) != 1 {
		t.Fatalf("Expected 1 question emitted, got %d", len(h.emitter.questions))
	}
	q := h.emitter.questions[0].question
	if q.Text != "When did the pain start?" {
		t.Errorf("Expected first chest pain question, got '%s'", q.Text)
	}
	if q.Phrased != "For your chest pain, When did the pain start?" {
		t.Errorf("Unexpected phrased question: '%s'", q.Phrased)
	}
}

func TestUnmatchedSymptomsRepromptWithCanonicalList(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"funky"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	before := len(h.emitter.messages)
	h.machine.HandlePatientSymptoms(ctx, "s1", "I feel funky")

	s, _ := h.registry.Get("s1")
	if s.Stage != StageCollectSymptoms {
		t.Errorf("Expected stage to hold at collect_symptoms, got %s", s.Stage)
	}

	if len(h.emitter.messages) != before+1 {
		t.Fatalf("Expected a re-prompt message")
	}
	reprompt := h.emitter.messages[len(h.emitter.messages)-1]
	if !strings.Contains(reprompt, "chest pain") || !strings.Contains(reprompt, "shortness of breath") {
		t.Errorf("Expected re-prompt listing canonical symptoms, got '%s'", reprompt)
	}

	c := h.consults.store[s.ConsultID]
	if len(c.Symptoms) != 0 {
		t.Errorf("Expected no symptoms recorded, got %v", c.Symptoms)
	}
}

func TestAnswerEscalatesUrgencyAndFinalizes(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"chest pain"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	h.machine.HandlePatientSymptoms(ctx, "s1", "chest pain")
	s, _ := h.registry.Get("s1")
	consultID := s.ConsultID

	h.machine.HandleAnswerQuestion(ctx, "s1", []string{"chest pain"}, "it started very suddenly", "When did the pain start?")

	c := h.consults.store[consultID]
	if c.Urgency != consult.UrgencyUrgent {
		t.Errorf("Expected urgent after escalation, got %s", c.Urgency)
	}
	if c.Status != consult.StatusScheduled {
		t.Errorf("Expected scheduled after hand-off, got %s", c.Status)
	}
	if c.CalendarEventID == nil || *c.CalendarEventID != "evt-1" {
		t.Error("Expected calendar event id stored")
	}
	if h.notifier.calls != 1 {
		t.Errorf("Expected 1 hand-off, got %d", h.notifier.calls)
	}

	if _, ok := h.registry.Get("s1"); ok {
		t.Error("Expected session purged after finalization")
	}

	var summary string
	for _, msg := range h.emitter.messages {
		if strings.HasPrefix(msg, "Doctor Summary") {
			summary = msg
		}
	}
	if summary == "" {
		t.Fatal("Expected doctor summary message")
	}
	if !strings.Contains(summary, "Urgency: URGENT") {
		t.Errorf("Expected urgency in summary, got:\n%s", summary)
	}
}

func TestTwoSymptomBaseUrgency(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"chest pain", "shortness of breath"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	h.machine.HandlePatientSymptoms(ctx, "s1", "I have chest pain and can't breathe")
	s, _ := h.registry.Get("s1")
	consultID := s.ConsultID

	h.machine.HandleAnswerQuestion(ctx, "s1", nil, "a while ago", "When did the pain start?")

	c := h.consults.store[consultID]
	if c.Urgency != consult.UrgencySemiUrgent {
		t.Errorf("Expected semi-urgent base urgency, got %s", c.Urgency)
	}
}

func TestVaguenessRetryCap(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{
		symptoms: []string{"chest pain"},
		vague: []llm.VaguenessResult{
			{Vague: true, Clarify: "Can you say when it began?"},
			{Vague: true},
			{Vague: true},
		},
	}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	h.machine.HandlePatientSymptoms(ctx, "s1", "chest pain")
	s, _ := h.registry.Get("s1")
	consultID := s.ConsultID

	// First vague answer: model-suggested clarification, no queue slot consumed.
	h.machine.HandleAnswerQuestion(ctx, "s1", nil, "hmm", "When did the pain start?")
	if s.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", s.RetryCount)
	}
	last := h.emitter.questions[len(h.emitter.questions)-1].question
	if last.Phrased != "Can you say when it began?" {
		t.Errorf("Expected model clarification, got '%s'", last.Phrased)
	}

	// Second vague answer: generic clarification fallback.
	h.machine.HandleAnswerQuestion(ctx, "s1", nil, "dunno", "When did the pain start?")
	if s.RetryCount != 2 {
		t.Errorf("Expected retry count 2, got %d", s.RetryCount)
	}
	last = h.emitter.questions[len(h.emitter.questions)-1].question
	if last.Phrased != "Could you clarify: When did the pain start?" {
		t.Errorf("Expected generic clarification, got '%s'", last.Phrased)
	}

	// Third answer is accepted despite the vague classification.
	h.machine.HandleAnswerQuestion(ctx, "s1", nil, "still not sure", "When did the pain start?")

	c := h.consults.store[consultID]
	answers := c.FollowUpAnswers["chest pain"]
	if len(answers) != 1 {
		t.Fatalf("Expected 1 recorded answer after retry cap, got %d", len(answers))
	}
	if answers[0].Answer != "still not sure" {
		t.Errorf("Expected third answer recorded, got '%s'", answers[0].Answer)
	}
}

func TestDisconnectPurgesRegistry(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"chest pain"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	h.machine.HandlePatientSymptoms(ctx, "s1", "chest pain")

	h.machine.HandleDisconnect("s1")

	if _, ok := h.registry.Get("s1"); ok {
		t.Error("Expected session removed from registry")
	}
	if h.registry.Len() != 0 {
		t.Errorf("Expected empty registry, got %d sessions", h.registry.Len())
	}
	if h.registry.Delete("s1") {
		t.Error("Expected second delete to be a no-op")
	}
}

func TestDisconnectDuringGatewayCallDoesNotRecordAnswer(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"chest pain"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	h.machine.HandlePatientSymptoms(ctx, "s1", "chest pain")
	s, _ := h.registry.Get("s1")
	consultID := s.ConsultID
	savesBefore := h.consults.saves

	// Disconnect lands while the vagueness call is in flight.
	gw.onVagueness = func() { h.machine.HandleDisconnect("s1") }
	h.machine.HandleAnswerQuestion(ctx, "s1", nil, "suddenly", "When did the pain start?")

	c := h.consults.store[consultID]
	if len(c.FollowUpAnswers["chest pain"]) != 0 {
		t.Error("Expected no answer recorded after disconnect")
	}
	if h.consults.saves != savesBefore {
		t.Error("Expected no consult save after disconnect")
	}
	if h.notifier.calls != 0 {
		t.Error("Expected no hand-off after disconnect")
	}
}

func TestSymptomWithoutQuestionsFinalizesImmediately(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"shortness of breath"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	s, _ := h.registry.Get("s1")
	consultID := s.ConsultID

	h.machine.HandlePatientSymptoms(ctx, "s1", "I can't breathe")

	c := h.consults.store[consultID]
	if c.Status != consult.StatusScheduled {
		t.Errorf("Expected consult finalized and scheduled, got %s", c.Status)
	}
	if _, ok := h.registry.Get("s1"); ok {
		t.Error("Expected session purged")
	}
}

func TestAnswerTargetsFallBackToLastQuestionSymptoms(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{symptoms: []string{"chest pain", "shortness of breath"}}
	h := newHarness(gw, defaultRules())

	h.runIdentity(ctx, "s1")
	h.machine.HandlePatientSymptoms(ctx, "s1", "chest pain and breathlessness")
	s, _ := h.registry.Get("s1")
	consultID := s.ConsultID

	// No declared symptoms: the answer lands on the last question's symptom.
	h.machine.HandleAnswerQuestion(ctx, "s1", nil, "two days ago", "")

	c := h.consults.store[consultID]
	if len(c.FollowUpAnswers["chest pain"]) != 1 {
		t.Errorf("Expected answer under chest pain, got %v", c.FollowUpAnswers)
	}
	if len(c.FollowUpAnswers["shortness of breath"]) != 0 {
		t.Errorf("Expected no answer under shortness of breath, got %v", c.FollowUpAnswers)
	}
	if c.FollowUpAnswers["chest pain"][0].Question != "When did the pain start?" {
		t.Errorf("Expected last question text used, got '%s'", c.FollowUpAnswers["chest pain"][0].Question)
	}
}

func TestAnswerBeforeFollowupsIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&fakeGateway{}, defaultRules())

	h.runIdentity(ctx, "s1")
	savesBefore := h.consults.saves

	h.machine.HandleAnswerQuestion(ctx, "s1", nil, "it hurts", "")

	s, ok := h.registry.Get("s1")
	if !ok {
		t.Fatal("Expected session to survive an out-of-order answer")
	}
	if s.Stage != StageCollectSymptoms {
		t.Errorf("Expected stage collect_symptoms, got %s", s.Stage)
	}
	last := h.emitter.messages[len(h.emitter.messages)-1]
	if last != "Session not started." {
		t.Errorf("Expected 'Session not started.', got '%s'", last)
	}
	if h.consults.saves != savesBefore {
		t.Errorf("Expected no consult saves, got %d extra", h.consults.saves-savesBefore)
	}
	if h.notifier.calls != 0 {
		t.Errorf("Expected no handoff, got %d calls", h.notifier.calls)
	}
}
