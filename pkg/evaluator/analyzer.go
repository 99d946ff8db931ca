package evaluator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
)

// PatternType identifies a class of problem the Analyzer can flag in an
// output without calling a judge model.
type PatternType string

const (
	PatternVerbosity          PatternType = "verbosity"
	PatternRepetition         PatternType = "repetition"
	PatternMissingStructure   PatternType = "missing_structure"
	PatternIncompleteReason   PatternType = "incomplete_reasoning"
	PatternToolMisuse         PatternType = "tool_misuse"
	PatternContextLoss        PatternType = "context_loss"
	PatternFormatError        PatternType = "format_error"
	PatternHallucination      PatternType = "hallucination"
)

// DetectedPattern is one flagged issue with a severity and an optional
// fix suggestion.
type DetectedPattern struct {
	Type        PatternType
	Description string
	Severity    string // low, medium, high
	Location    string
	Suggestion  string
}

// SemanticScore captures completeness/accuracy/coherence (0-1 each).
type SemanticScore struct {
	Completeness float64
	Accuracy     float64
	Coherence    float64
	Details      string
}

// Overall averages the three semantic sub-scores.
func (s SemanticScore) Overall() float64 {
	return (s.Completeness + s.Accuracy + s.Coherence) / 3
}

// StructuralScore captures schema adherence, format consistency, and
// organization (0-1 each).
type StructuralScore struct {
	SchemaAdherence   float64
	FormatConsistency float64
	Organization      float64
	Errors            []string
}

// Overall averages the three structural sub-scores.
func (s StructuralScore) Overall() float64 {
	return (s.SchemaAdherence + s.FormatConsistency + s.Organization) / 3
}

// EfficiencyScore captures estimated token usage and verbosity.
type EfficiencyScore struct {
	OutputTokens            int
	EstimatedMinimumTokens  int
	EfficiencyRatio         float64
	VerbosityIndicators     []string
}

// Overall clamps the efficiency ratio at 1.0.
func (s EfficiencyScore) Overall() float64 {
	if s.EfficiencyRatio > 1.0 {
		return 1.0
	}
	return s.EfficiencyRatio
}

// AnalysisResult is the Analyzer's complete deterministic assessment of
// one output.
type AnalysisResult struct {
	OutputHash  string
	Semantic    SemanticScore
	Structural  StructuralScore
	Efficiency  EfficiencyScore
	Patterns    []DetectedPattern
	Suggestions []string
}

// OverallScore blends the four dimensions (semantic 0.4, structural 0.3,
// efficiency 0.2, pattern-penalty 0.1) into a single 0-1 score.
func (r AnalysisResult) OverallScore() float64 {
	patternScore := 1.0
	for _, p := range r.Patterns {
		switch p.Severity {
		case "high":
			patternScore -= 0.15
		case "medium":
			patternScore -= 0.08
		default:
			patternScore -= 0.03
		}
	}
	if patternScore < 0 {
		patternScore = 0
	}

	return (r.Semantic.Overall()*4 + r.Structural.Overall()*3 + r.Efficiency.Overall()*2 + patternScore) / 10
}

// verbosityPattern pairs a regex with its human-readable description;
// the first four (word/phrase level) are also used to estimate a
// "cleaned" minimum-token count.
type verbosityPattern struct {
	re          *regexp.Regexp
	description string
}

// verbosityPatterns covers the word/phrase-level indicators. The
// original's regex set also included a backreference-based repetition
// check ((.+?)\1{2,}); RE2 has no backreference support, so repetition
// is instead detected structurally in detectPatterns via sentence-level
// deduplication.
var verbosityPatterns = []verbosityPattern{
	{regexp.MustCompile(`(?i)\b(basically|essentially|actually|really|just|simply)\b`), "filler words"},
	{regexp.MustCompile(`(?i)\b(in order to)\b`), "verbose phrase (use 'to')"},
	{regexp.MustCompile(`(?i)\b(at this point in time)\b`), "verbose phrase (use 'now')"},
	{regexp.MustCompile(`(?i)\b(due to the fact that)\b`), "verbose phrase (use 'because')"},
	{regexp.MustCompile(`\n{3,}`), "excessive newlines"},
	{regexp.MustCompile(`(?m)^\s*#+ .+\n\n^\s*#+ .+`), "consecutive headings without content"},
}

// wordLevelVerbosityCount is the number of leading patterns treated as
// "word-level" for the minimum-token estimate, matching the original's
// VERBOSITY_PATTERNS[:6] (here: all but the newline/heading patterns).
const wordLevelVerbosityCount = 4

var headingPattern = regexp.MustCompile(`(?m)^#+\s+.+$`)
var listPattern = regexp.MustCompile(`(?m)^[-*\d]+[.)\s]`)

// Analyzer performs deterministic (non-LLM) analysis of agent outputs:
// semantic completeness heuristics, structural/schema checks, token
// efficiency estimation, and pattern detection — cheap enough to run on
// every output, complementing G-Eval's judge-model scoring.
type Analyzer struct{}

// NewAnalyzer constructs an Analyzer. It is stateless.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// AnalyzeParams are the optional context an analysis can use.
type AnalyzeParams struct {
	Requirements   []string
	ExpectedSchema map[string]interface{}
	ExpectedFormat string // "json", "markdown", or ""
}

// Analyze runs all four dimensions and returns the combined result.
func (a *Analyzer) Analyze(output string, p AnalyzeParams) AnalysisResult {
	semantic := a.analyzeSemantic(output, p.Requirements)
	structural := a.analyzeStructure(output, p.ExpectedSchema, p.ExpectedFormat)
	efficiency := a.analyzeEfficiency(output)
	patterns := a.detectPatterns(output)
	suggestions := a.generateSuggestions(semantic, structural, efficiency, patterns)

	sum := sha256.Sum256([]byte(output))
	return AnalysisResult{
		OutputHash:  hex.EncodeToString(sum[:])[:16],
		Semantic:    semantic,
		Structural:  structural,
		Efficiency:  efficiency,
		Patterns:    patterns,
		Suggestions: suggestions,
	}
}

func (a *Analyzer) analyzeSemantic(output string, requirements []string) SemanticScore {
	completeness := float64(len(output)) / 500
	if completeness > 1.0 {
		completeness = 1.0
	}

	accuracy := 1.0
	if len(requirements) > 0 {
		matched := 0
		lowerOutput := strings.ToLower(output)
		for _, req := range requirements {
			keywords := extractKeywords(req)
			for _, kw := range keywords {
				if strings.Contains(lowerOutput, strings.ToLower(kw)) {
					matched++
					break
				}
			}
		}
		accuracy = float64(matched) / float64(len(requirements))
	}

	return SemanticScore{
		Completeness: completeness,
		Accuracy:     accuracy,
		Coherence:    assessCoherence(output),
		Details:      "Completeness based on length, accuracy based on requirements coverage",
	}
}

func (a *Analyzer) analyzeStructure(output string, expectedSchema map[string]interface{}, expectedFormat string) StructuralScore {
	var errs []string
	schemaAdherence := 1.0
	formatConsistency := 1.0

	if expectedSchema != nil {
		var parsed interface{}
		if err := json.Unmarshal([]byte(output), &parsed); err != nil {
			schemaAdherence = 0.0
			errs = append(errs, "Invalid JSON: "+err.Error())
		} else {
			schemaAdherence = checkSchemaBasic(parsed, expectedSchema)
		}
	}

	switch expectedFormat {
	case "json":
		var v interface{}
		if json.Unmarshal([]byte(output), &v) != nil {
			formatConsistency = 0.0
			errs = append(errs, "Expected JSON format but got invalid JSON")
		}
	case "markdown":
		if !headingPattern.MatchString(output) {
			formatConsistency *= 0.8
			errs = append(errs, "Expected markdown but no headings found")
		}
	}

	return StructuralScore{
		SchemaAdherence:   schemaAdherence,
		FormatConsistency: formatConsistency,
		Organization:      assessOrganization(output),
		Errors:            errs,
	}
}

func (a *Analyzer) analyzeEfficiency(output string) EfficiencyScore {
	outputTokens := len(output) / 4

	var indicators []string
	for _, vp := range verbosityPatterns {
		matches := vp.re.FindAllString(output, -1)
		if len(matches) > 0 {
			indicators = append(indicators, vp.description)
		}
	}

	clean := output
	for _, vp := range verbosityPatterns[:wordLevelVerbosityCount] {
		clean = vp.re.ReplaceAllString(clean, "")
	}
	estimatedMinimum := len(clean) / 4
	if half := outputTokens / 2; estimatedMinimum < half {
		estimatedMinimum = half
	}

	ratio := 1.0
	if outputTokens > 0 {
		ratio = float64(estimatedMinimum) / float64(outputTokens)
	}

	return EfficiencyScore{
		OutputTokens:           outputTokens,
		EstimatedMinimumTokens: estimatedMinimum,
		EfficiencyRatio:        ratio,
		VerbosityIndicators:    indicators,
	}
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

func (a *Analyzer) detectPatterns(output string) []DetectedPattern {
	var patterns []DetectedPattern

	for _, vp := range verbosityPatterns {
		matches := vp.re.FindAllString(output, -1)
		if len(matches) > 3 {
			severity := "low"
			if len(matches) > 5 {
				severity = "medium"
			}
			patterns = append(patterns, DetectedPattern{
				Type: PatternVerbosity, Description: "Excessive " + vp.description,
				Severity: severity, Suggestion: "Reduce usage of " + vp.description,
			})
		}
	}

	sentences := sentenceSplit.Split(output, -1)
	unique := map[string]struct{}{}
	for _, s := range sentences {
		trimmed := strings.ToLower(strings.TrimSpace(s))
		if len(trimmed) > 20 {
			unique[trimmed] = struct{}{}
		}
	}
	if len(sentences) > 5 && float64(len(unique)) < float64(len(sentences))*0.7 {
		patterns = append(patterns, DetectedPattern{
			Type: PatternRepetition, Description: "Significant content repetition detected",
			Severity: "high", Suggestion: "Remove duplicate content and consolidate ideas",
		})
	}

	if len(output) > 2000 {
		hasHeadings := headingPattern.MatchString(output)
		hasLists := listPattern.MatchString(output)
		if !hasHeadings && !hasLists {
			patterns = append(patterns, DetectedPattern{
				Type: PatternMissingStructure, Description: "Long output lacks organizational structure",
				Severity: "medium", Suggestion: "Add headings or bullet points to organize content",
			})
		}
	}

	reasoningStarters := []string{"because", "therefore", "thus", "since", "due to"}
	hasReasoning := false
	lowerOutput := strings.ToLower(output)
	for _, w := range reasoningStarters {
		if strings.Contains(lowerOutput, w) {
			hasReasoning = true
			break
		}
	}
	if len(output) > 500 && !hasReasoning {
		patterns = append(patterns, DetectedPattern{
			Type: PatternIncompleteReason, Description: "Output lacks explicit reasoning",
			Severity: "low", Suggestion: "Add explanations for decisions and conclusions",
		})
	}

	if strings.Count(output, "```")%2 != 0 {
		patterns = append(patterns, DetectedPattern{
			Type: PatternFormatError, Description: "Unclosed code block",
			Severity: "medium", Location: "Code blocks", Suggestion: "Ensure all code blocks are properly closed",
		})
	}

	return patterns
}

func (a *Analyzer) generateSuggestions(semantic SemanticScore, structural StructuralScore, efficiency EfficiencyScore, patterns []DetectedPattern) []string {
	var suggestions []string

	if semantic.Completeness < 0.5 {
		suggestions = append(suggestions, "Output seems incomplete - ensure all requirements are addressed")
	}
	if semantic.Accuracy < 0.7 {
		suggestions = append(suggestions, "Output may not fully address requirements - review coverage")
	}
	if semantic.Coherence < 0.6 {
		suggestions = append(suggestions, "Improve logical flow and coherence between sections")
	}

	if structural.SchemaAdherence < 0.8 {
		suggestions = append(suggestions, "Output doesn't match expected schema - review structure")
	}
	if structural.FormatConsistency < 0.8 {
		suggestions = append(suggestions, "Inconsistent formatting detected - standardize format")
	}
	for i, e := range structural.Errors {
		if i >= 3 {
			break
		}
		suggestions = append(suggestions, "Fix structural issue: "+e)
	}

	if efficiency.EfficiencyRatio < 0.6 {
		suggestions = append(suggestions, "Output is verbose - reduce filler words and repetition")
	}
	for i, ind := range efficiency.VerbosityIndicators {
		if i >= 2 {
			break
		}
		suggestions = append(suggestions, "Reduce verbosity: "+ind)
	}

	for _, p := range patterns {
		if p.Suggestion != "" {
			suggestions = append(suggestions, p.Suggestion)
		}
	}

	seen := map[string]struct{}{}
	var unique []string
	for _, s := range suggestions {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
		if len(unique) == 10 {
			break
		}
	}
	return unique
}

var keywordPattern = regexp.MustCompile(`\b\w{3,}\b`)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "shall": {}, "to": {}, "of": {}, "in": {}, "for": {},
	"on": {}, "with": {}, "at": {}, "by": {}, "from": {}, "as": {}, "into": {}, "through": {}, "during": {},
	"before": {}, "after": {}, "and": {}, "but": {}, "or": {}, "not": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "it": {},
}

func extractKeywords(text string) []string {
	words := keywordPattern.FindAllString(strings.ToLower(text), -1)
	var out []string
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
		if len(out) == 10 {
			break
		}
	}
	return out
}

var coherenceConnectors = []string{
	"therefore", "however", "moreover", "furthermore", "because", "since", "although", "while",
	"thus", "consequently", "additionally", "finally", "first", "second", "third", "next", "then",
}

var contradictionPairs = [][2]string{
	{"always", "never"}, {"all", "none"}, {"true", "false"}, {"yes", "no"},
}

func assessCoherence(output string) float64 {
	score := 1.0
	lower := strings.ToLower(output)

	connectorCount := 0
	for _, c := range coherenceConnectors {
		if strings.Contains(lower, c) {
			connectorCount++
		}
	}
	if len(output) > 1000 && connectorCount < 2 {
		score -= 0.2
	}

	for _, pair := range contradictionPairs {
		if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
			score -= 0.05
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func assessOrganization(output string) float64 {
	score := 0.5

	headingCount := len(headingPattern.FindAllString(output, -1))
	if headingCount > 0 {
		score += 0.2
	}

	listCount := len(listPattern.FindAllString(output, -1))
	if listCount > 0 {
		score += 0.15
	}

	if strings.Count(output, "```") >= 2 {
		score += 0.1
	}

	if len(output) > 3000 && headingCount == 0 && listCount == 0 {
		score -= 0.3
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// checkSchemaBasic performs the same shallow required/properties presence
// check as the original (no full JSON-schema validation library).
func checkSchemaBasic(data interface{}, schema map[string]interface{}) float64 {
	obj, isObj := data.(map[string]interface{})

	required, _ := schema["required"].([]interface{})
	properties, _ := schema["properties"].(map[string]interface{})

	if !isObj {
		if len(properties) > 0 {
			return 0.0
		}
		return 1.0
	}

	if len(required) > 0 {
		present := 0
		for _, r := range required {
			key, _ := r.(string)
			if _, ok := obj[key]; ok {
				present++
			}
		}
		return float64(present) / float64(len(required))
	}

	if len(properties) > 0 {
		present := 0
		for key := range properties {
			if _, ok := obj[key]; ok {
				present++
			}
		}
		return float64(present) / float64(len(properties))
	}

	return 1.0
}
