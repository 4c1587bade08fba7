package dialogue

import (
	"reflect"
	"testing"

	"github.com/cardio-ai/triage/internal/consult"
)

func TestMergeRelatedAnswers(t *testing.T) {
	tests := []struct {
		name     string
		in       []consult.Answer
		expected []consult.Answer
	}{
		{
			"merges onset answers into leading entry",
			[]consult.Answer{
				{Question: "When did the pain start?", Answer: "yesterday"},
				{Question: "Does it get worse with exertion?", Answer: "yes"},
				{Question: "What date did you first notice it?", Answer: "last Monday"},
			},
			[]consult.Answer{
				{Question: "When did the pain start?", Answer: "yesterday, last Monday"},
				{Question: "Does it get worse with exertion?", Answer: "yes"},
			},
		},
		{
			"no onset entries pass through unchanged",
			[]consult.Answer{
				{Question: "Does it radiate to your arm?", Answer: "no"},
				{Question: "How severe is it?", Answer: "about a 6"},
			},
			[]consult.Answer{
				{Question: "Does it radiate to your arm?", Answer: "no"},
				{Question: "How severe is it?", Answer: "about a 6"},
			},
		},
		{
			"blank onset answers are dropped",
			[]consult.Answer{
				{Question: "When did it start?", Answer: "   "},
				{Question: "How severe is it?", Answer: "mild"},
			},
			[]consult.Answer{
				{Question: "How severe is it?", Answer: "mild"},
			},
		},
		{
			"empty input",
			nil,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeRelatedAnswers(tt.in)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestMergeRelatedAnswersIdempotent(t *testing.T) {
	in := []consult.Answer{
		{Question: "When did the pain start?", Answer: "two days ago"},
		{Question: "What year was your surgery?", Answer: "2019"},
		{Question: "Does rest help?", Answer: "a little"},
	}

	once := MergeRelatedAnswers(in)
	twice := MergeRelatedAnswers(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Expected idempotent merge, first %v, second %v", once, twice)
	}
}
