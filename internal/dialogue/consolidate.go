package dialogue

import (
	"strings"

	"github.com/cardio-ai/triage/internal/consult"
)

// Questions whose text contains one of these words are onset-related and get
// merged into a single leading entry before summarization.
var onsetKeywords = []string{"when", "date", "year", "start"}

const onsetQuestionLabel = "When did the pain start?"

// MergeRelatedAnswers collapses all onset-related answers in a symptom's
// answer list into one comma-joined leading entry, keeping the remaining
// entries in their original order. The operation is pure and idempotent:
// applying it to its own output changes nothing.
func MergeRelatedAnswers(answers []consult.Answer) []consult.Answer {
	var merged []consult.Answer
	var onset []string

	for _, qa := range answers {
		q := strings.ToLower(qa.Question)
		related := false
		for _, kw := range onsetKeywords {
			if strings.Contains(q, kw) {
				related = true
				break
			}
		}
		if related {
			if a := strings.TrimSpace(qa.Answer); a != "" {
				onset = append(onset, a)
			}
		} else {
			merged = append(merged, qa)
		}
	}

	if len(onset) > 0 {
		lead := consult.Answer{Question: onsetQuestionLabel, Answer: strings.Join(onset, ", ")}
		merged = append([]consult.Answer{lead}, merged...)
	}
	return merged
}
