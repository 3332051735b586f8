package social

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

func socialSource(url string) regwatch.SourceDescriptor {
	return regwatch.SourceDescriptor{
		ID:           "x-search",
		Name:         "Minor Safety Search",
		URL:          url,
		Kind:         regwatch.SourceKindSocialSearch,
		Jurisdiction: "United States",
		Query:        `"age verification" minors bill`,
	}
}

const searchPayload = `{
  "data": [
    {
      "id": "1001",
      "text": "Utah just passed a bill requiring age verification for minors on social apps.",
      "author_id": "u1",
      "created_at": "2024-02-05T10:30:00Z",
      "public_metrics": {"retweet_count": 12, "reply_count": 3, "like_count": 40, "quote_count": 1}
    },
    {
      "id": "1002",
      "text": "   ",
      "author_id": "u1"
    },
    {
      "id": "1003",
      "text": "No author record for this one."
    }
  ],
  "includes": {"users": [{"id": "u1", "username": "policywatcher", "name": "Policy Watcher"}]}
}`

func TestSearch(t *testing.T) {
	t.Parallel()

	var gotAuth, gotQuery, gotMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		gotMax = r.URL.Query().Get("max_results")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer srv.Close()

	c := New(Config{BearerToken: "tok", MaxResults: 25})
	inputs, err := c.Search(context.Background(), socialSource(srv.URL))
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, `"age verification" minors bill`, gotQuery)
	require.Equal(t, "25", gotMax)

	require.Len(t, inputs, 2, "blank-text posts must be dropped")

	first := inputs[0]
	require.Equal(t, "@policywatcher: Utah just passed a bill requiring age verification for minors on social apps.", first.Title)
	require.Equal(t, "https://x.com/policywatcher/status/1001", first.URL)
	require.Contains(t, first.RawText, "engagement: 12 reposts, 3 replies, 40 likes, 1 quotes")
	require.NotNil(t, first.PublishedAt)

	second := inputs[1]
	require.Equal(t, "https://x.com/i/web/status/1003", second.URL)
	require.Equal(t, "No author record for this one.", second.Title)
	require.Nil(t, second.PublishedAt)
}

func TestPostTitle_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// "ü" straddles the title byte cap.
	text := strings.Repeat("a", titleChars-1) + "über 16 Jahre"
	title := postTitle(user{Username: "policywatcher"}, text)
	require.True(t, utf8.ValidString(title), "truncation must not split a rune")
	require.Equal(t, "@policywatcher: "+strings.Repeat("a", titleChars-1), title)
	require.NotContains(t, title, "�")
}

func TestSearch_NoToken(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	_, err := c.Search(context.Background(), socialSource("http://unused"))
	require.ErrorIs(t, err, ErrNoCredential)
}

func TestSearch_NoQuery(t *testing.T) {
	t.Parallel()

	c := New(Config{BearerToken: "tok"})
	src := socialSource("http://unused")
	src.Query = ""
	_, err := c.Search(context.Background(), src)
	require.Error(t, err)
}

func TestSearch_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BearerToken: "tok"})
	_, err := c.Search(context.Background(), socialSource(srv.URL))
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}
