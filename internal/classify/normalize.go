// Package classify implements relevance classification for crawl inputs:
// a remote LLM-backed adapter, a local keyword heuristic, and a fallback
// wrapper that the pipeline calls uniformly.
package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

const listCap = 20

// rawVerdict mirrors the JSON contract of the classification service. All
// value types are loose on purpose; the service does not reliably honor
// the schema.
type rawVerdict struct {
	IsRelevant           any   `json:"isRelevant"`
	Jurisdiction         any   `json:"jurisdiction"`
	Stage                any   `json:"stage"`
	AgeBracket           any   `json:"ageBracket"`
	AffectedMetaProducts []any `json:"affectedMetaProducts"`
	Summary              any   `json:"summary"`
	BusinessImpact       any   `json:"businessImpact"`
	RequiredSolutions    []any `json:"requiredSolutions"`
	CompetitorResponses  []any `json:"competitorResponses"`
	ImpactScore          any   `json:"impactScore"`
	LikelihoodScore      any   `json:"likelihoodScore"`
	ConfidenceScore      any   `json:"confidenceScore"`
	ChiliScore           any   `json:"chiliScore"`
}

var trailingJSONExpr = regexp.MustCompile(`(?s)\{.*\}\s*$`)

// extractJSON pulls a JSON object out of assistant-generated text. It first
// tries a trailing {...} match, then falls back to slicing between the
// first '{' and the last '}'.
func extractJSON(text string) (rawVerdict, error) {
	var verdict rawVerdict

	if match := trailingJSONExpr.FindString(text); match != "" {
		if err := json.Unmarshal([]byte(match), &verdict); err == nil {
			return verdict, nil
		}
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first < 0 || last <= first {
		return verdict, fmt.Errorf("no JSON object in classifier response")
	}
	if err := json.Unmarshal([]byte(text[first:last+1]), &verdict); err != nil {
		return verdict, fmt.Errorf("decode classifier JSON: %w", err)
	}
	return verdict, nil
}

// normalize converts a raw verdict into a well-formed Analysis, enforcing
// the stage enum, age bracket, score range, and list caps.
func normalize(verdict rawVerdict, input regwatch.CrawlInput) regwatch.Analysis {
	jurisdiction := coerceString(verdict.Jurisdiction)
	if jurisdiction == "" {
		jurisdiction = input.Source.Jurisdiction
	}
	return regwatch.Analysis{
		IsRelevant:          coerceBool(verdict.IsRelevant),
		Jurisdiction:        jurisdiction,
		Stage:               NormalizeStage(coerceString(verdict.Stage)),
		AgeBracket:          NormalizeAgeBracket(coerceString(verdict.AgeBracket)),
		AffectedProducts:    normalizeList(verdict.AffectedMetaProducts),
		Summary:             coerceString(verdict.Summary),
		BusinessImpact:      coerceString(verdict.BusinessImpact),
		RequiredSolutions:   normalizeList(verdict.RequiredSolutions),
		CompetitorResponses: normalizeList(verdict.CompetitorResponses),
		ImpactScore:         ClampScore(verdict.ImpactScore),
		LikelihoodScore:     ClampScore(verdict.LikelihoodScore),
		ConfidenceScore:     ClampScore(verdict.ConfidenceScore),
		ChiliScore:          ClampScore(verdict.ChiliScore),
	}
}

// stagePatterns are checked in order when no exact stage match exists.
var stagePatterns = []struct {
	expr  *regexp.Regexp
	stage regwatch.Stage
}{
	{regexp.MustCompile(`amend`), regwatch.StageAmended},
	{regexp.MustCompile(`withdraw|repeal`), regwatch.StageWithdrawn},
	{regexp.MustCompile(`reject|veto|fail`), regwatch.StageRejected},
	{regexp.MustCompile(`effect|in force`), regwatch.StageEffective},
	{regexp.MustCompile(`enact|sign`), regwatch.StageEnacted},
	{regexp.MustCompile(`committee`), regwatch.StageCommitteeReview},
	{regexp.MustCompile(`pass|approv|adopt`), regwatch.StagePassed},
	{regexp.MustCompile(`introduc|file`), regwatch.StageIntroduced},
	{regexp.MustCompile(`propos|draft`), regwatch.StageProposed},
}

// NormalizeStage maps free text onto the fixed nine-value stage enum,
// defaulting to proposed when unparseable.
func NormalizeStage(raw string) regwatch.Stage {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	if regwatch.ValidStage(regwatch.Stage(cleaned)) {
		return regwatch.Stage(cleaned)
	}
	for _, p := range stagePatterns {
		if p.expr.MatchString(cleaned) {
			return p.stage
		}
	}
	return regwatch.StageProposed
}

// NormalizeAgeBracket maps free text onto the fixed brackets, defaulting
// to both.
func NormalizeAgeBracket(raw string) regwatch.AgeBracket {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	has1315 := strings.Contains(cleaned, "13") || strings.Contains(cleaned, "15")
	has1618 := strings.Contains(cleaned, "16") || strings.Contains(cleaned, "18")
	switch {
	case has1315 && !has1618:
		return regwatch.AgeBracket13To15
	case has1618 && !has1315:
		return regwatch.AgeBracket16To18
	default:
		return regwatch.AgeBracketBoth
	}
}

// ClampScore coerces any raw score value to a rounded integer in [1,5].
// Non-numeric values default to 1.
func ClampScore(raw any) int {
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case int:
		value = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 1
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 1
		}
		value = parsed
	default:
		return 1
	}
	rounded := int(math.Round(value))
	if rounded < 1 {
		return 1
	}
	if rounded > 5 {
		return 5
	}
	return rounded
}

func normalizeList(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		s, ok := entry.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == listCap {
			break
		}
	}
	return out
}

// truncate caps s at max bytes without splitting a multibyte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func coerceString(raw any) string {
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func coerceBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

// NotRelevant is the safe default returned when classification fails for
// a single item. It must never abort the pass.
func NotRelevant(input regwatch.CrawlInput) regwatch.Analysis {
	return regwatch.Analysis{
		IsRelevant:      false,
		Jurisdiction:    input.Source.Jurisdiction,
		Stage:           regwatch.StageProposed,
		AgeBracket:      regwatch.AgeBracketBoth,
		ImpactScore:     1,
		LikelihoodScore: 1,
		ConfidenceScore: 1,
		ChiliScore:      1,
	}
}
