package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name             string
		model            string
		promptTokens     int
		completionTokens int
		agent            string
		want             float64
	}{
		{
			name: "claude sonnet by substring match", model: "claude-sonnet-4-20260115",
			promptTokens: 1_000_000, completionTokens: 1_000_000, agent: "claude",
			want: 3.0 + 15.0,
		},
		{
			name: "bare opus alias", model: "opus",
			promptTokens: 1_000_000, completionTokens: 0, agent: "claude",
			want: 15.0,
		},
		{
			name: "unrecognized model falls back to agent default", model: "some-new-cursor-model",
			promptTokens: 1_000_000, completionTokens: 1_000_000, agent: "cursor",
			want: 5.0 + 15.0,
		},
		{
			name: "unrecognized model and agent falls back to sonnet", model: "mystery",
			promptTokens: 1_000_000, completionTokens: 1_000_000, agent: "unknown",
			want: 3.0 + 15.0,
		},
		{
			name: "zero tokens costs zero", model: "gemini-2.5-pro",
			promptTokens: 0, completionTokens: 0, agent: "gemini",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateCost(tt.model, tt.promptTokens, tt.completionTokens, tt.agent)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestGetModelPricing(t *testing.T) {
	input, output := GetModelPricing("claude", "opus")
	assert.Equal(t, 15.0, input)
	assert.Equal(t, 75.0, output)

	input, output = GetModelPricing("unknown-agent", "unknown-model")
	assert.Equal(t, 3.0, input)
	assert.Equal(t, 15.0, output)
}
