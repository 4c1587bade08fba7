package dialogue

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cardio-ai/triage/internal/consult"
	"github.com/cardio-ai/triage/internal/rules"
	"github.com/cardio-ai/triage/internal/shared/metrics"
)

// RuleJudge decides whether an answer satisfies an escalation rule's intent
// when the literal trigger values did not appear in it.
type RuleJudge interface {
	JudgeRuleMatch(ctx context.Context, question, answer, symptomKey, pattern string, triggers []string, newUrgency string) bool
}

// Resolver computes a consult's urgency from the base urgencies of its
// reported symptoms and the operator-defined escalation rules. The result is
// a pure maximum over all contributions, so evaluation order never changes
// the outcome and urgency can only go up as answers accumulate.
type Resolver struct {
	judge RuleJudge
}

func NewResolver(judge RuleJudge) *Resolver {
	return &Resolver{judge: judge}
}

// Resolve returns the urgency for the consult's current symptoms and answers.
// Base phase: max of the configured urgency of each reported symptom,
// starting from normal. Escalation phase: for every recorded answer, every
// rule for that symptom whose pattern matches the question escalates when a
// trigger value appears in the answer, or when the semantic judge says the
// rule's intent is satisfied. A failed judgment never escalates.
func (r *Resolver) Resolve(ctx context.Context, c *consult.Consult, symptomRules []rules.SymptomRule, escalations []rules.EscalationRule) consult.Urgency {
	urgency := consult.UrgencyNormal
	for _, s := range c.Symptoms {
		for _, sr := range symptomRules {
			if sr.SymptomKey == s {
				urgency = consult.Max(urgency, sr.Urgency)
			}
		}
	}

	for _, sym := range c.Symptoms {
		for _, qa := range c.FollowUpAnswers[sym] {
			for _, rule := range escalations {
				if rule.SymptomKey != sym {
					continue
				}
				re, err := regexp.Compile("(?i)" + rule.QuestionPattern)
				if err != nil || !re.MatchString(qa.Question) {
					continue
				}
				if containsTrigger(qa.Answer, rule.TriggerValues) {
					urgency = consult.Max(urgency, rule.NewUrgency)
					metrics.RecordEscalation("literal")
					continue
				}
				if r.judge != nil && r.judge.JudgeRuleMatch(ctx, qa.Question, qa.Answer, rule.SymptomKey, rule.QuestionPattern, rule.TriggerValues, string(rule.NewUrgency)) {
					urgency = consult.Max(urgency, rule.NewUrgency)
					metrics.RecordEscalation("semantic")
				}
			}
		}
	}
	return urgency
}

// EscalationNotes lists the literal rule matches for the summary. Only
// trigger-substring matches are reported; semantic escalations already show
// up in the urgency itself.
func EscalationNotes(c *consult.Consult, escalations []rules.EscalationRule) []string {
	var notes []string
	for _, sym := range c.Symptoms {
		for _, qa := range c.FollowUpAnswers[sym] {
			for _, rule := range escalations {
				if rule.SymptomKey != sym {
					continue
				}
				re, err := regexp.Compile("(?i)" + rule.QuestionPattern)
				if err != nil || !re.MatchString(qa.Question) {
					continue
				}
				if containsTrigger(qa.Answer, rule.TriggerValues) {
					notes = append(notes, fmt.Sprintf("%s: Escalated -> %s (question matched %q, answer matched)",
						sym, strings.ToUpper(string(rule.NewUrgency)), rule.QuestionPattern))
				}
			}
		}
	}
	return notes
}

func containsTrigger(answer string, triggers []string) bool {
	a := strings.ToLower(answer)
	for _, tv := range triggers {
		if tv != "" && strings.Contains(a, strings.ToLower(tv)) {
			return true
		}
	}
	return false
}
