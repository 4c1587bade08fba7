package llm

// prompts.go holds the prompt templates used by the gateway wrappers.
// Keeping them in one file makes them easy to tweak without touching the
// parsing logic.

const (
	// rephraseSystemPrompt constrains the model to wrapping questions the
	// system supplies, never inventing medical content of its own.
	rephraseSystemPrompt = `You are a friendly, concise assistant that only rewrites or wraps follow-up questions provided by the system.
RULES:
1. Do NOT invent medical follow-up questions or infer medical conclusions.
2. Use only the follow-up question text provided by the system.
3. Keep output short (1-2 sentences) appropriate for a chat UI.
4. Do not give medical advice or interpret answers.`

	extractorSystemPrompt = "You are a strict symptom extractor."

	jsonSystemPrompt = "You are a strict JSON generator."

	fieldSystemPrompt = "You are a strict extractor that only outputs JSON."

	scribeSystemPrompt = "You are a medical scribe."

	judgeSystemPrompt = "You are a strict JSON generator."
)

const extractSymptomsTemplate = `Extract from this text all symptoms that match or are similar to this known list:
%s.

Text: "%s"

Respond with ONLY a JSON list of symptoms exactly as in the known list, if present.
Example: ["chest pain", "shortness of breath"]`

const extractFieldTemplate = `Extract the %s from this patient response: "%s".

Rules:
- If field is 'age', return only the integer number (e.g., 24).
- If field is 'email', return only the email address.
- If field is 'name', return only the name (first + last if given).
- Respond in JSON format: {"%s": "value"}`

const vaguenessTemplate = `The bot asked: "%s"
Patient answered: "%s"

1. Decide if the patient's answer is vague or unclear.
2. If vague, suggest ONE clarifying question to get more useful detail.

Respond ONLY in JSON:
{"vague": true, "clarify": "Can you tell me when it started (yesterday, today, etc.)?"}
or
{"vague": false}`

const explainAnswerTemplate = `Patient symptom: %s
Follow-up question: "%s"
Patient answer: "%s"

Rewrite the patient's answer into a concise, clinician-friendly note (1-2 short sentences). Use clinical wording (e.g., 'acute onset', 'intermittent', 'worse with exertion'). If the answer is vague, summarize the gist and mention uncertainty.`

const judgeRuleTemplate = `You are a medical reasoning assistant.

Follow-up Rule:
- Symptom: %s
- Question pattern: %s
- Trigger values: %s
- Intended urgency level: %s

Patient's response:
Q: %s
A: %s

Based on the rule's intent, does the patient's answer satisfy the condition?
Reply strictly with JSON: {"match": true} or {"match": false}`
