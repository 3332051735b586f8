package classify

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

func TestHeuristic_RequiresBothTermClasses(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(HeuristicConfig{})

	cases := []struct {
		name     string
		text     string
		relevant bool
	}{
		{"both classes", "new bill restricts social media for minors", true},
		{"regulatory only", "new bill restricts tractor emissions", false},
		{"minor only", "tips for parenting your teen", false},
		{"neither", "quarterly earnings beat expectations", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis, err := h.Classify(context.Background(), regwatch.CrawlInput{
				Title: tc.text,
			})
			require.NoError(t, err)
			require.Equal(t, tc.relevant, analysis.IsRelevant)
		})
	}
}

func TestHeuristic_RelevantVerdictShape(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(HeuristicConfig{})
	analysis, err := h.Classify(context.Background(), regwatch.CrawlInput{
		Title:   "Senate passed the Kids Online Act",
		Summary: "The bill requires age verification for minors.",
		Source:  regwatch.SourceDescriptor{Jurisdiction: "United States"},
	})
	require.NoError(t, err)
	require.True(t, analysis.IsRelevant)
	require.Equal(t, "United States", analysis.Jurisdiction)
	require.Equal(t, regwatch.StagePassed, analysis.Stage)
	require.Equal(t, regwatch.AgeBracketBoth, analysis.AgeBracket)
	require.Equal(t, "The bill requires age verification for minors.", analysis.Summary)
	require.Equal(t, 2, analysis.ImpactScore)
	require.Equal(t, 1, analysis.ConfidenceScore)
}

func TestHeuristic_SummaryTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// "ü" straddles the summary byte cap; the truncated summary must stay
	// valid UTF-8.
	summary := strings.Repeat("a", heuristicSummaryChars-1) + "über Minderjährige"
	h := NewHeuristic(HeuristicConfig{})
	analysis, err := h.Classify(context.Background(), regwatch.CrawlInput{
		Title:   "new bill restricts social media for minors",
		Summary: summary,
	})
	require.NoError(t, err)
	require.True(t, analysis.IsRelevant)
	require.True(t, utf8.ValidString(analysis.Summary))
	require.Equal(t, strings.Repeat("a", heuristicSummaryChars-1), analysis.Summary)
	require.LessOrEqual(t, len(analysis.Summary), heuristicSummaryChars)
}

func TestHeuristic_SummaryFallsBackToRawText(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(HeuristicConfig{})
	analysis, err := h.Classify(context.Background(), regwatch.CrawlInput{
		Title:   "parental consent law introduced",
		RawText: "A law requiring parental consent was introduced today.",
	})
	require.NoError(t, err)
	require.True(t, analysis.IsRelevant)
	require.Equal(t, "A law requiring parental consent was introduced today.", analysis.Summary)
}
