package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

type scriptedClassifier struct {
	analysis regwatch.Analysis
	err      error
	calls    int
}

func (s *scriptedClassifier) Classify(_ context.Context, _ regwatch.CrawlInput) (regwatch.Analysis, error) {
	s.calls++
	return s.analysis, s.err
}

func TestFallback_RemoteSuccessPassesThrough(t *testing.T) {
	t.Parallel()

	remote := &scriptedClassifier{analysis: regwatch.Analysis{IsRelevant: true, Summary: "remote"}}
	heuristic := &scriptedClassifier{}
	f := NewFallback(remote, heuristic, nil)

	analysis, err := f.Classify(context.Background(), regwatch.CrawlInput{})
	require.NoError(t, err)
	require.Equal(t, "remote", analysis.Summary)
	require.Zero(t, heuristic.calls)
	require.False(t, f.RemoteUnusable())
}

func TestFallback_UnauthorizedLatchesHeuristic(t *testing.T) {
	t.Parallel()

	remote := &scriptedClassifier{err: fmt.Errorf("classification request: %w", ErrUnauthorized)}
	heuristic := &scriptedClassifier{analysis: regwatch.Analysis{Summary: "heuristic"}}
	f := NewFallback(remote, heuristic, nil)

	analysis, err := f.Classify(context.Background(), regwatch.CrawlInput{})
	require.NoError(t, err)
	require.Equal(t, "heuristic", analysis.Summary)
	require.True(t, f.RemoteUnusable())

	// Second call must not touch the remote again.
	_, err = f.Classify(context.Background(), regwatch.CrawlInput{})
	require.NoError(t, err)
	require.Equal(t, 1, remote.calls)
	require.Equal(t, 2, heuristic.calls)
}

func TestFallback_MissingCredentialLatchesHeuristic(t *testing.T) {
	t.Parallel()

	remote := &scriptedClassifier{err: ErrNoCredential}
	heuristic := &scriptedClassifier{}
	f := NewFallback(remote, heuristic, nil)

	_, err := f.Classify(context.Background(), regwatch.CrawlInput{})
	require.NoError(t, err)
	require.True(t, f.RemoteUnusable())
}

func TestFallback_TransientErrorReturnsSafeDefault(t *testing.T) {
	t.Parallel()

	remote := &scriptedClassifier{err: errors.New("connection reset")}
	heuristic := &scriptedClassifier{}
	f := NewFallback(remote, heuristic, nil)

	input := regwatch.CrawlInput{
		Source: regwatch.SourceDescriptor{Jurisdiction: "Canada"},
	}
	analysis, err := f.Classify(context.Background(), input)
	require.NoError(t, err)
	require.False(t, analysis.IsRelevant)
	require.Equal(t, "Canada", analysis.Jurisdiction)
	require.Zero(t, heuristic.calls)
	require.False(t, f.RemoteUnusable())
}
