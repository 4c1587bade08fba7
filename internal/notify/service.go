package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/consult"
	"github.com/cardio-ai/triage/internal/patient"
	"github.com/cardio-ai/triage/internal/shared/metrics"
)

// Messenger delivers a text message to the clinician's channel.
type Messenger interface {
	SendMessage(ctx context.Context, text string) error
}

// Scheduler books a consult slot and returns the created event id.
type Scheduler interface {
	Schedule(ctx context.Context, patientEmail, patientName, description string) (string, error)
}

// Service hands completed consults to the clinician: a Markdown summary to
// the doctor's chat plus a calendar booking. Failures are logged and reduced
// to the resulting consult status; they never propagate to the session.
type Service struct {
	messenger Messenger
	scheduler Scheduler
	logger    *zap.Logger
}

func NewService(messenger Messenger, scheduler Scheduler, logger *zap.Logger) *Service {
	return &Service{messenger: messenger, scheduler: scheduler, logger: logger}
}

// Handoff notifies the doctor and attempts to book a slot. It returns the
// final consult status (scheduled or needs_manual_schedule) and, on
// successful booking, the calendar event id.
func (s *Service) Handoff(ctx context.Context, c *consult.Consult, p *patient.Patient) (consult.Status, string) {
	message := renderDoctorMessage(c, p)

	if s.messenger != nil {
		if err := s.messenger.SendMessage(ctx, message); err != nil {
			s.logger.Warn("doctor notification failed", zap.Int("consult_id", c.ID), zap.Error(err))
		}
	}

	if s.scheduler == nil {
		metrics.RecordHandoff(string(consult.StatusNeedsManualSchedule))
		return consult.StatusNeedsManualSchedule, ""
	}

	eventID, err := s.scheduler.Schedule(ctx, p.Email, p.Name, message)
	if err != nil {
		s.logger.Warn("calendar booking failed", zap.Int("consult_id", c.ID), zap.Error(err))
		metrics.RecordHandoff(string(consult.StatusNeedsManualSchedule))
		return consult.StatusNeedsManualSchedule, ""
	}

	s.logger.Info("consult scheduled",
		zap.Int("consult_id", c.ID),
		zap.String("event_id", eventID))
	metrics.RecordHandoff(string(consult.StatusScheduled))
	return consult.StatusScheduled, eventID
}

// renderDoctorMessage builds the Markdown message sent to the doctor's chat;
// the same text doubles as the calendar event description.
func renderDoctorMessage(c *consult.Consult, p *patient.Patient) string {
	lines := []string{
		"*New Cardiology Consult*",
		fmt.Sprintf("*Patient*: %s", p.Name),
		fmt.Sprintf("*Email*: %s", p.Email),
		fmt.Sprintf("*Urgency*: %s", strings.ToUpper(string(c.Urgency))),
		fmt.Sprintf("*Symptoms*: %s", strings.Join(c.Symptoms, ", ")),
		"",
		"*Follow-ups:*",
	}
	for _, sym := range c.Symptoms {
		lines = append(lines, fmt.Sprintf("_%s_", sym))
		for i, qa := range c.FollowUpAnswers[sym] {
			lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, qa.Question, qa.Answer))
		}
	}
	return strings.Join(lines, "\n")
}
