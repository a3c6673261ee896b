package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostProcess_StripsMetaCommentary(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "as an ai model opener",
			in:   "As an AI language model, the answer is 42.",
			want: "the answer is 42.",
		},
		{
			name: "based on context opener",
			in:   "Based on the provided context, retries use exponential backoff.",
			want: "retries use exponential backoff.",
		},
		{
			name: "certainly opener",
			in:   "Certainly! The cache is invalidated on write.",
			want: "The cache is invalidated on write.",
		},
		{
			name: "clean response untouched",
			in:   "The cache is invalidated on write.",
			want: "The cache is invalidated on write.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := postProcess(tc.in)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPostProcess_FlagsTruncation(t *testing.T) {
	long := strings.Repeat("the response keeps going ", 5)

	_, truncated := postProcess(long + "and then it just stops mid")
	assert.True(t, truncated)

	_, truncated = postProcess(long + "but this one finishes properly.")
	assert.False(t, truncated)

	// Short fragments are never flagged.
	_, truncated = postProcess("brief")
	assert.False(t, truncated)
}

func TestEstimateConfidence_Boosts(t *testing.T) {
	base := estimateConfidence("", 0)
	assert.InDelta(t, 0.5, base, 1e-9)

	withSalience := estimateConfidence("", 1.0)
	assert.InDelta(t, 0.7, withSalience, 1e-9)

	withCode := estimateConfidence("```go\nfunc main() {}\n```", 0)
	assert.Greater(t, withCode, base+0.1)

	capped := estimateConfidence("```"+strings.Repeat("answer 123 ", 200), 1.0)
	assert.Equal(t, 1.0, capped)
}
