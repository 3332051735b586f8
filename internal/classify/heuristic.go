package classify

import (
	"context"
	"strings"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// DefaultMinorTerms flag text about minors and child safety.
var DefaultMinorTerms = []string{
	"minor", "child", "teen", "youth", "under 16", "under-16", "under 18",
	"age verification", "age assurance", "parental consent", "kids",
}

// DefaultRegulatoryTerms flag text about the regulatory process.
var DefaultRegulatoryTerms = []string{
	"bill", "act", "law", "regulation", "statute", "ordinance", "directive",
	"legislation", "amendment", "enacted", "passed", "introduced", "proposed",
	"compliance", "rulemaking",
}

const heuristicSummaryChars = 300

// HeuristicConfig carries the injectable keyword sets.
type HeuristicConfig struct {
	MinorTerms      []string
	RegulatoryTerms []string
}

// Heuristic is the local classifier used when the remote service is
// unusable. Relevance requires both a minor-safety term and a
// regulatory-process term; everything else is conservative defaults.
type Heuristic struct {
	cfg HeuristicConfig
}

// NewHeuristic builds a Heuristic, filling empty term sets with defaults.
func NewHeuristic(cfg HeuristicConfig) *Heuristic {
	if len(cfg.MinorTerms) == 0 {
		cfg.MinorTerms = DefaultMinorTerms
	}
	if len(cfg.RegulatoryTerms) == 0 {
		cfg.RegulatoryTerms = DefaultRegulatoryTerms
	}
	return &Heuristic{cfg: cfg}
}

// Classify derives a cheap relevance signal from keyword presence.
func (h *Heuristic) Classify(_ context.Context, input regwatch.CrawlInput) (regwatch.Analysis, error) {
	combined := strings.ToLower(input.Title + " " + input.Summary + " " + input.RawText)
	relevant := containsAny(combined, h.cfg.MinorTerms) && containsAny(combined, h.cfg.RegulatoryTerms)
	if !relevant {
		return NotRelevant(input), nil
	}

	summary := strings.TrimSpace(input.Summary)
	if summary == "" {
		summary = strings.TrimSpace(input.RawText)
	}
	summary = truncate(summary, heuristicSummaryChars)

	return regwatch.Analysis{
		IsRelevant:      true,
		Jurisdiction:    input.Source.Jurisdiction,
		Stage:           NormalizeStage(combined),
		AgeBracket:      regwatch.AgeBracketBoth,
		Summary:         summary,
		ImpactScore:     2,
		LikelihoodScore: 2,
		ConfidenceScore: 1,
		ChiliScore:      2,
	}, nil
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
