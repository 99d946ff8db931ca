package budget

import "strings"

// modelPricing is USD cost per 1M tokens.
type modelPricing struct {
	Input  float64
	Output float64
}

// pricingTable holds approximate per-model rates, keyed by a substring
// matched case-insensitively against the model name passed to EstimateCost
// — mirroring the original's "first matching key wins" lookup so that
// e.g. "claude-sonnet-4-20260115" still resolves to the sonnet rate.
var pricingTable = map[string]modelPricing{
	"claude-opus-4-5":  {Input: 15.0, Output: 75.0},
	"claude-opus-4":    {Input: 15.0, Output: 75.0},
	"claude-sonnet-4":  {Input: 3.0, Output: 15.0},
	"claude-haiku-3.5": {Input: 0.80, Output: 4.0},
	"opus":             {Input: 15.0, Output: 75.0},
	"sonnet":           {Input: 3.0, Output: 15.0},
	"haiku":            {Input: 0.80, Output: 4.0},
	"codex-5.2":        {Input: 5.0, Output: 15.0},
	"composer":         {Input: 3.0, Output: 10.0},
	"gemini-2.0-flash": {Input: 0.075, Output: 0.30},
	"gemini-2.0-pro":   {Input: 1.25, Output: 5.0},
	"gemini-2.5-flash": {Input: 0.15, Output: 0.60},
	"gemini-2.5-pro":   {Input: 2.50, Output: 10.0},
}

// pricingKeyOrder fixes iteration order for the substring match above —
// map iteration in Go is randomized — so the more specific "claude-*" keys
// are tried before the bare "opus"/"sonnet"/"haiku" keys they contain.
var pricingKeyOrder = []string{
	"claude-opus-4-5", "claude-opus-4", "claude-sonnet-4", "claude-haiku-3.5",
	"opus", "sonnet", "haiku", "codex-5.2", "composer",
	"gemini-2.0-flash", "gemini-2.0-pro", "gemini-2.5-flash", "gemini-2.5-pro",
}

// agentDefaultPricing is the fallback used when a model name matches
// nothing in pricingTable, keyed by agent family.
var agentDefaultPricing = map[string]modelPricing{
	"claude": pricingTable["sonnet"],
	"cursor": pricingTable["codex-5.2"],
	"gemini": pricingTable["gemini-2.0-flash"],
}

// AgentPricing is the quick-lookup table keyed by (agent, model), used by
// GetModelPricing.
var AgentPricing = map[string]map[string]modelPricing{
	"claude": {
		"sonnet": {Input: 3.0, Output: 15.0},
		"opus":   {Input: 15.0, Output: 75.0},
		"haiku":  {Input: 0.80, Output: 4.0},
	},
	"cursor": {
		"codex-5.2": {Input: 5.0, Output: 15.0},
		"composer":  {Input: 3.0, Output: 10.0},
	},
	"gemini": {
		"gemini-2.0-flash": {Input: 0.075, Output: 0.30},
		"gemini-2.0-pro":   {Input: 1.25, Output: 5.0},
	},
}

// EstimateCost estimates the USD cost of an invocation from token counts,
// falling back to an agent-family default rate when model is unrecognized.
func EstimateCost(model string, promptTokens, completionTokens int, agent string) float64 {
	lower := strings.ToLower(model)
	var prices modelPricing
	found := false
	for _, key := range pricingKeyOrder {
		if strings.Contains(lower, key) {
			prices = pricingTable[key]
			found = true
			break
		}
	}
	if !found {
		prices, found = agentDefaultPricing[strings.ToLower(agent)]
		if !found {
			prices = pricingTable["sonnet"]
		}
	}
	inputCost := float64(promptTokens) / 1_000_000 * prices.Input
	outputCost := float64(completionTokens) / 1_000_000 * prices.Output
	return inputCost + outputCost
}

// GetModelPricing returns the per-1M-token input/output rate for
// (agent, model), falling back to the agent's first listed model, then to
// Claude Sonnet as the ultimate fallback.
func GetModelPricing(agent, model string) (input, output float64) {
	agentPrices, ok := AgentPricing[strings.ToLower(agent)]
	if ok {
		if p, ok := agentPrices[strings.ToLower(model)]; ok {
			return p.Input, p.Output
		}
		if p, ok := agentDefaultPricing[strings.ToLower(agent)]; ok {
			return p.Input, p.Output
		}
	}
	fallback := AgentPricing["claude"]["sonnet"]
	return fallback.Input, fallback.Output
}
