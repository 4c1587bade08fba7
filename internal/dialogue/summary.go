package dialogue

import (
	"fmt"
	"strings"

	"github.com/cardio-ai/triage/internal/consult"
)

// RenderSummary produces the clinician-facing summary message for a finished
// consult. It is a pure function of its inputs so it can be tested against a
// fixed consult snapshot.
func RenderSummary(name, age, email string, c *consult.Consult, escalationNotes []string) string {
	urgency := c.Urgency
	if urgency == "" {
		urgency = consult.UrgencyNormal
	}

	lines := []string{
		"Doctor Summary",
		"Patient: " + name,
	}
	if age != "" {
		lines = append(lines, "Age: "+age)
	} else {
		lines = append(lines, "Age: Not provided")
	}
	lines = append(lines, "Email: "+email)
	lines = append(lines, "Urgency: "+strings.ToUpper(string(urgency)))
	if len(c.Symptoms) > 0 {
		lines = append(lines, "Symptoms reported: "+strings.Join(c.Symptoms, ", "))
	} else {
		lines = append(lines, "Symptoms reported: None")
	}
	lines = append(lines, "")

	for _, sym := range c.Symptoms {
		lines = append(lines, fmt.Sprintf("--- %s ---", sym))
		answers := c.FollowUpAnswers[sym]
		if len(answers) == 0 {
			lines = append(lines, "No follow-up answers provided.")
			continue
		}
		answers = MergeRelatedAnswers(answers)
		for i, qa := range answers {
			if strings.TrimSpace(qa.Answer) == "" {
				continue
			}
			question := qa.Question
			if question == "" {
				question = "Follow-up question"
			}
			lines = append(lines, fmt.Sprintf("Q%d: %s", i+1, question))
			lines = append(lines, fmt.Sprintf("A%d: %s", i+1, qa.Answer))
			if qa.DoctorNote != "" {
				lines = append(lines, "Doctor Note: "+qa.DoctorNote)
			}
		}
		lines = append(lines, "")
	}

	if len(escalationNotes) > 0 {
		lines = append(lines, "Escalations Applied:")
		lines = append(lines, escalationNotes...)
	}

	return strings.Join(lines, "\n")
}
