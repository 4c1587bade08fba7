package consult

import "time"

// Status defines the lifecycle state of a consult
type Status string

const (
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusScheduled           Status = "scheduled"
	StatusNeedsManualSchedule Status = "needs_manual_schedule"
)

// Answer is one recorded follow-up exchange under a symptom
type Answer struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	DoctorNote string `json:"doctor_note,omitempty"`
}

// Consult represents one triage dialogue with a patient. Symptoms holds the
// canonical keys matched from free text; FollowUpAnswers maps each key to the
// ordered answers recorded for it.
type Consult struct {
	ID              int                 `json:"id"`
	PatientID       int                 `json:"patient_id"`
	Symptoms        []string            `json:"symptoms"`
	FollowUpAnswers map[string][]Answer `json:"follow_up_answers"`
	Urgency         Urgency             `json:"urgency"`
	Status          Status              `json:"status"`
	CalendarEventID *string             `json:"calendar_event_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnsureAnswerSlots guarantees every reported symptom has an answer list.
func (c *Consult) EnsureAnswerSlots() {
	if c.FollowUpAnswers == nil {
		c.FollowUpAnswers = make(map[string][]Answer, len(c.Symptoms))
	}
	for _, s := range c.Symptoms {
		if _, ok := c.FollowUpAnswers[s]; !ok {
			c.FollowUpAnswers[s] = []Answer{}
		}
	}
}

// Record appends an answer under the given symptom key.
func (c *Consult) Record(symptom string, a Answer) {
	if c.FollowUpAnswers == nil {
		c.FollowUpAnswers = make(map[string][]Answer)
	}
	c.FollowUpAnswers[symptom] = append(c.FollowUpAnswers[symptom], a)
}

// Escalate raises the consult urgency to u if u ranks higher. Urgency never
// decreases within a consult lifecycle.
func (c *Consult) Escalate(u Urgency) {
	c.Urgency = Max(c.Urgency, u)
}
