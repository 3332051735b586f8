// Package quality implements the independent rejection filter applied
// after classification, regardless of the classifier's relevance verdict.
package quality

import (
	"strings"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

const defaultMinSummaryLen = 40

// DefaultBoilerplate lists generic phrases that mark a summary as useless.
var DefaultBoilerplate = []string{
	"no details available",
	"no information available",
	"no further details",
	"details to follow",
	"n/a",
}

// DefaultProcessTerms must appear somewhere in the combined text for an
// item to be worth persisting.
var DefaultProcessTerms = []string{
	"bill", "act", "law", "regulation", "statute", "ordinance", "directive",
	"rule", "legislation", "amendment", "enacted", "passed", "introduced",
	"proposed", "committee", "compliance",
}

// Config carries the injectable phrase and keyword lists.
type Config struct {
	MinSummaryLen int
	Boilerplate   []string
	ProcessTerms  []string
}

// Gate rejects classifier output too thin or boilerplate to be useful.
type Gate struct {
	cfg Config
}

// New builds a Gate, applying defaults for empty fields.
func New(cfg Config) *Gate {
	if cfg.MinSummaryLen <= 0 {
		cfg.MinSummaryLen = defaultMinSummaryLen
	}
	if len(cfg.Boilerplate) == 0 {
		cfg.Boilerplate = DefaultBoilerplate
	}
	if len(cfg.ProcessTerms) == 0 {
		cfg.ProcessTerms = DefaultProcessTerms
	}
	return &Gate{cfg: cfg}
}

// Accept reports whether the analyzed item is substantial enough to
// persist. An item the classifier called relevant can still be rejected
// here.
func (g *Gate) Accept(input regwatch.CrawlInput, analysis regwatch.Analysis) bool {
	summary := strings.TrimSpace(analysis.Summary)
	if len(summary) < g.cfg.MinSummaryLen {
		return false
	}
	lowerSummary := strings.ToLower(summary)
	for _, phrase := range g.cfg.Boilerplate {
		if strings.Contains(lowerSummary, phrase) {
			return false
		}
	}

	combined := strings.ToLower(input.Title + " " + analysis.Summary + " " + input.RawText)
	for _, term := range g.cfg.ProcessTerms {
		if strings.Contains(combined, term) {
			return true
		}
	}
	return false
}
