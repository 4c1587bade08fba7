package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/consult"
	"github.com/cardio-ai/triage/internal/patient"
)

type fakeMessenger struct {
	sent []string
	err  error
}

func (m *fakeMessenger) SendMessage(ctx context.Context, text string) error {
	m.sent = append(m.sent, text)
	return m.err
}

type fakeScheduler struct {
	eventID string
	err     error
}

func (s *fakeScheduler) Schedule(ctx context.Context, patientEmail, patientName, description string) (string, error) {
	return s.eventID, s.err
}

func testConsult() (*consult.Consult, *patient.Patient) {
	c := &consult.Consult{
		ID:       1,
		Symptoms: []string{"chest pain"},
		Urgency:  consult.UrgencyUrgent,
		FollowUpAnswers: map[string][]consult.Answer{
			"chest pain": {{Question: "When did the pain start?", Answer: "suddenly"}},
		},
	}
	p := &patient.Patient{ID: 1, Name: "Jordan Lee", Email: "jordan@example.com"}
	return c, p
}

func TestHandoffScheduled(t *testing.T) {
	c, p := testConsult()
	messenger := &fakeMessenger{}
	svc := NewService(messenger, &fakeScheduler{eventID: "evt-42"}, zap.NewNop())

	status, eventID := svc.Handoff(context.Background(), c, p)

	if status != consult.StatusScheduled {
		t.Errorf("Expected scheduled, got %s", status)
	}
	if eventID != "evt-42" {
		t.Errorf("Expected event id evt-42, got '%s'", eventID)
	}
	if len(messenger.sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messenger.sent))
	}

	msg := messenger.sent[0]
	for _, want := range []string{"*New Cardiology Consult*", "Jordan Lee", "jordan@example.com", "URGENT", "chest pain", "1. When did the pain start?: suddenly"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected message to contain %q, got:\n%s", want, msg)
		}
	}
}

func TestHandoffBookingFailure(t *testing.T) {
	c, p := testConsult()
	svc := NewService(&fakeMessenger{}, &fakeScheduler{err: errors.New("calendar down")}, zap.NewNop())

	status, eventID := svc.Handoff(context.Background(), c, p)

	if status != consult.StatusNeedsManualSchedule {
		t.Errorf("Expected needs_manual_schedule, got %s", status)
	}
	if eventID != "" {
		t.Errorf("Expected no event id, got '%s'", eventID)
	}
}

func TestHandoffWithoutScheduler(t *testing.T) {
	c, p := testConsult()
	svc := NewService(&fakeMessenger{}, nil, zap.NewNop())

	status, _ := svc.Handoff(context.Background(), c, p)
	if status != consult.StatusNeedsManualSchedule {
		t.Errorf("Expected needs_manual_schedule, got %s", status)
	}
}

func TestHandoffMessengerFailureStillBooks(t *testing.T) {
	c, p := testConsult()
	svc := NewService(&fakeMessenger{err: errors.New("telegram down")}, &fakeScheduler{eventID: "evt-1"}, zap.NewNop())

	status, eventID := svc.Handoff(context.Background(), c, p)
	if status != consult.StatusScheduled || eventID != "evt-1" {
		t.Errorf("Expected booking despite messenger failure, got %s/%s", status, eventID)
	}
}
