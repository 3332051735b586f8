package quality

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

func TestGate_Accept(t *testing.T) {
	t.Parallel()

	g := New(Config{})
	goodSummary := "A new state bill would require parental consent before minors join social platforms."

	cases := []struct {
		name     string
		input    regwatch.CrawlInput
		analysis regwatch.Analysis
		want     bool
	}{
		{
			name:     "substantial summary with process term",
			input:    regwatch.CrawlInput{Title: "State bill on minors"},
			analysis: regwatch.Analysis{Summary: goodSummary},
			want:     true,
		},
		{
			name:     "summary too short",
			input:    regwatch.CrawlInput{Title: "State bill on minors"},
			analysis: regwatch.Analysis{Summary: "A short note."},
			want:     false,
		},
		{
			name:     "boilerplate phrase",
			input:    regwatch.CrawlInput{Title: "State bill on minors"},
			analysis: regwatch.Analysis{Summary: "No details available at this time, check back again later for more."},
			want:     false,
		},
		{
			name:     "no process term anywhere",
			input:    regwatch.CrawlInput{Title: "Platform announces feature"},
			analysis: regwatch.Analysis{Summary: "The company described a new feed ranking system for younger users today."},
			want:     false,
		},
		{
			name:     "process term only in raw text",
			input:    regwatch.CrawlInput{Title: "Update", RawText: "the committee will meet next week"},
			analysis: regwatch.Analysis{Summary: "Lawmakers will weigh restrictions on teen account defaults next week."},
			want:     true,
		},
		{
			name:     "whitespace-padded short summary",
			input:    regwatch.CrawlInput{Title: "Bill news"},
			analysis: regwatch.Analysis{Summary: "   brief   "},
			want:     false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, g.Accept(tc.input, tc.analysis))
		})
	}
}

func TestGate_CustomThreshold(t *testing.T) {
	t.Parallel()

	g := New(Config{MinSummaryLen: 5})
	ok := g.Accept(
		regwatch.CrawlInput{Title: "bill"},
		regwatch.Analysis{Summary: "Passed."},
	)
	require.True(t, ok)
}
