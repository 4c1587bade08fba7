package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cardio-ai/triage/internal/shared/metrics"
)

// Gateway wraps a raw Client with the typed operations the dialogue engine
// needs. Every wrapper degrades gracefully: a model error or malformed
// response never propagates, it falls back to a neutral value the caller can
// act on.
type Gateway struct {
	client Client
	logger *zap.Logger
}

func NewGateway(client Client, logger *zap.Logger) *Gateway {
	return &Gateway{client: client, logger: logger}
}

func (g *Gateway) call(ctx context.Context, operation, prompt, system string, maxTokens int, temperature float32) (string, error) {
	start := time.Now()
	out, err := g.client.Generate(ctx, prompt, system, maxTokens, temperature)
	if err != nil {
		metrics.RecordGatewayCall(operation, "error", time.Since(start))
		g.logger.Warn("model call failed", zap.String("operation", operation), zap.Error(err))
		return "", err
	}
	metrics.RecordGatewayCall(operation, "ok", time.Since(start))
	return strings.TrimSpace(out), nil
}

// ExtractField pulls a single registration field (name, age, email) out of a
// free-text patient reply. Returns "" when the model fails or the reply does
// not contain the field.
func (g *Gateway) ExtractField(ctx context.Context, field, text string) string {
	prompt := fmt.Sprintf(extractFieldTemplate, field, text, field)
	out, err := g.call(ctx, "extract_field", prompt, fieldSystemPrompt, 60, 0)
	if err != nil {
		return ""
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		metrics.RecordGatewayCall("extract_field", "fallback", 0)
		return ""
	}
	v, ok := parsed[field]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return fmt.Sprintf("%d", int(val))
	default:
		return ""
	}
}

// ExtractSymptoms asks the model which of the known symptoms appear in the
// patient's description. The model is told to reply with a bare JSON list;
// when it wraps the list in prose we salvage the bracketed slice. Total
// failure yields an empty list, which the dialogue layer treats as "nothing
// recognized".
func (g *Gateway) ExtractSymptoms(ctx context.Context, text string, known []string) []string {
	prompt := fmt.Sprintf(extractSymptomsTemplate, strings.Join(known, ", "), text)
	out, err := g.call(ctx, "extract_symptoms", prompt, extractorSystemPrompt, 150, 0)
	if err != nil {
		return nil
	}
	var symptoms []string
	if err := json.Unmarshal([]byte(out), &symptoms); err == nil {
		return cleanList(symptoms)
	}
	// Salvage a list embedded in surrounding prose.
	if start, end := strings.Index(out, "["), strings.LastIndex(out, "]"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(out[start:end+1]), &symptoms); err == nil {
			return cleanList(symptoms)
		}
	}
	metrics.RecordGatewayCall("extract_symptoms", "fallback", 0)
	g.logger.Warn("unparseable symptom extraction", zap.String("raw", out))
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// VaguenessResult reports whether an answer was too vague to record and, if
// so, what clarification to ask.
type VaguenessResult struct {
	Vague   bool   `json:"vague"`
	Clarify string `json:"clarify"`
}

// ClassifyVagueness judges whether the patient's answer actually addresses
// the question. A malformed or failed response counts as not vague so the
// dialogue never stalls on a model hiccup.
func (g *Gateway) ClassifyVagueness(ctx context.Context, question, answer string) VaguenessResult {
	prompt := fmt.Sprintf(vaguenessTemplate, question, answer)
	out, err := g.call(ctx, "classify_vagueness", prompt, jsonSystemPrompt, 120, 0)
	if err != nil {
		return VaguenessResult{}
	}
	var res VaguenessResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		metrics.RecordGatewayCall("classify_vagueness", "fallback", 0)
		return VaguenessResult{}
	}
	return res
}

// JudgeRuleMatch asks the model whether an answer satisfies an escalation
// rule's intent when the literal trigger values did not appear. Any failure
// is a non-match: escalation only ever happens on positive evidence.
func (g *Gateway) JudgeRuleMatch(ctx context.Context, question, answer, symptomKey, pattern string, triggers []string, newUrgency string) bool {
	prompt := fmt.Sprintf(judgeRuleTemplate, symptomKey, pattern, strings.Join(triggers, ", "), newUrgency, question, answer)
	out, err := g.call(ctx, "judge_rule_match", prompt, judgeSystemPrompt, 30, 0)
	if err != nil {
		return false
	}
	var res struct {
		Match bool `json:"match"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		metrics.RecordGatewayCall("judge_rule_match", "fallback", 0)
		return false
	}
	return res.Match
}

// Rephrase wraps a canned follow-up question in a short conversational lead-in
// addressed to the patient. Returns "" on failure; the caller falls back to
// the plain question text.
func (g *Gateway) Rephrase(ctx context.Context, patientName, question, prevAnswer string) string {
	var b strings.Builder
	if patientName != "" {
		fmt.Fprintf(&b, "Patient name: %s\n", patientName)
	}
	if prevAnswer != "" {
		fmt.Fprintf(&b, "Previous answer: %q\n", prevAnswer)
	}
	fmt.Fprintf(&b, "Follow-up question to ask: %q\n", question)
	b.WriteString("Rewrite the follow-up question as a single friendly chat message. Keep the question's meaning exactly.")
	out, err := g.call(ctx, "rephrase", b.String(), rephraseSystemPrompt, 80, 0.4)
	if err != nil {
		return ""
	}
	return strings.Trim(out, `"`)
}

// ExplainAnswer condenses a patient answer into a clinician-facing note.
// Returns "" on failure; the raw answer already stands on its own.
func (g *Gateway) ExplainAnswer(ctx context.Context, symptom, question, answer string) string {
	prompt := fmt.Sprintf(explainAnswerTemplate, symptom, question, answer)
	out, err := g.call(ctx, "explain_answer", prompt, scribeSystemPrompt, 120, 0.2)
	if err != nil {
		return ""
	}
	return out
}
