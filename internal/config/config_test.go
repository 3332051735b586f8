package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 30, cfg.Crawler.FetchTimeoutSeconds)
	require.Equal(t, 5, cfg.Crawler.FeedItemCap)
	require.Equal(t, 4000, cfg.Crawler.WebpageMaxChars)
	require.Equal(t, 10, cfg.Crawler.ClassifyBatchSize)
	require.Equal(t, 45, cfg.Classifier.TimeoutSeconds)
	require.Equal(t, 2, cfg.Social.DelaySeconds)
	require.Equal(t, "none", cfg.Archive.Provider)
	require.Equal(t, 30*time.Second, cfg.FetchTimeout())
	require.Equal(t, 2*time.Second, cfg.SocialDelay())
}

func TestLoad_FileOverridesAndSources(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9191
crawler:
  user_agent: regcrawler-ci
  fetch_timeout_seconds: 12
  classify_batch_size: 4
classifier:
  endpoint: https://llm.internal/v1/chat/completions
  model: local-model
db:
  dsn: postgres://crawler@localhost/regwatch
archive:
  provider: local
  base_dir: /tmp/archive
sources:
  - id: ca-leg
    name: California Legislature
    url: https://leginfo.example.gov/rss
    kind: feed
    jurisdiction: "United States, California"
    authority: state
    reliability: 5
  - id: x-minors
    name: Minor Safety Search
    kind: social_search
    jurisdiction: United States
    reliability: 2
    query: "age verification minors"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, "regcrawler-ci", cfg.Crawler.UserAgent)
	require.Equal(t, 12*time.Second, cfg.FetchTimeout())
	require.Equal(t, "local-model", cfg.Classifier.Model)
	require.Equal(t, "postgres://crawler@localhost/regwatch", cfg.DB.DSN)

	require.Len(t, cfg.Sources, 2)
	require.Equal(t, regwatch.SourceKindFeed, cfg.Sources[0].Kind)
	require.Equal(t, regwatch.AuthorityState, cfg.Sources[0].Authority)
	require.Equal(t, "age verification minors", cfg.Sources[1].Query)
}

func TestLoad_ValidationErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad source kind",
			yaml: "sources:\n  - id: s1\n    kind: carrier_pigeon\n    url: https://x\n    reliability: 3\n",
			want: "unknown kind",
		},
		{
			name: "feed without url",
			yaml: "sources:\n  - id: s1\n    kind: feed\n    reliability: 3\n",
			want: "url is required",
		},
		{
			name: "social search without query",
			yaml: "sources:\n  - id: s1\n    kind: social_search\n    reliability: 3\n",
			want: "query is required",
		},
		{
			name: "reliability out of range",
			yaml: "sources:\n  - id: s1\n    kind: feed\n    url: https://x\n    reliability: 9\n",
			want: "reliability",
		},
		{
			name: "missing source id",
			yaml: "sources:\n  - kind: feed\n    url: https://x\n    reliability: 3\n",
			want: "id is required",
		},
		{
			name: "gcs archive without bucket",
			yaml: "archive:\n  provider: gcs\n",
			want: "archive.bucket",
		},
		{
			name: "unknown archive provider",
			yaml: "archive:\n  provider: tape\n",
			want: "archive provider",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
