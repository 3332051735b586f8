package classify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// Fallback composes the remote and heuristic classifiers. The pipeline
// calls it uniformly; selection is an explicit mode flag, not hidden
// global state.
//
// A plain remote failure degrades that one item to the safe not-relevant
// default. A credential failure latches the wrapper into heuristic mode
// for the rest of its lifetime, so one pass never repeats doomed calls.
type Fallback struct {
	remote    regwatch.Classifier
	heuristic regwatch.Classifier
	logger    *zap.Logger

	mu             sync.Mutex
	remoteUnusable bool
}

// NewFallback builds the fallback wrapper.
func NewFallback(remote, heuristic regwatch.Classifier, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{
		remote:    remote,
		heuristic: heuristic,
		logger:    logger,
	}
}

// Classify never returns an error for item-level failures; a single item's
// classification failure must not abort the pass.
func (f *Fallback) Classify(ctx context.Context, input regwatch.CrawlInput) (regwatch.Analysis, error) {
	if f.unusable() {
		return f.heuristic.Classify(ctx, input)
	}

	analysis, err := f.remote.Classify(ctx, input)
	if err == nil {
		return analysis, nil
	}

	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNoCredential) {
		f.markUnusable()
		f.logger.Warn("remote classifier unusable, switching to heuristic",
			zap.Error(err))
		return f.heuristic.Classify(ctx, input)
	}

	f.logger.Warn("classification failed, using safe default",
		zap.String("title", input.Title),
		zap.Error(err))
	return NotRelevant(input), nil
}

// RemoteUnusable reports whether the wrapper has latched into heuristic
// mode.
func (f *Fallback) RemoteUnusable() bool {
	return f.unusable()
}

func (f *Fallback) unusable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteUnusable
}

func (f *Fallback) markUnusable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteUnusable = true
}
