// Package social implements the search-API client used for news_search and
// social_search sources. Results come back already normalized; there is no
// feed parsing on this path.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// ErrNoCredential is returned when a search source is requested but no
// bearer token is configured. The pipeline records it as a per-source
// error, never a pass failure.
var ErrNoCredential = errors.New("search bearer token not configured")

const (
	defaultMaxResults = 10
	titleChars        = 90
)

// Config controls the search client.
type Config struct {
	Endpoint    string
	BearerToken string
	MaxResults  int
	Timeout     time.Duration
}

// Client issues authenticated search requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type postMetrics struct {
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	LikeCount    int `json:"like_count"`
	QuoteCount   int `json:"quote_count"`
}

type post struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	AuthorID  string      `json:"author_id"`
	CreatedAt string      `json:"created_at"`
	Metrics   postMetrics `json:"public_metrics"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type searchResponse struct {
	Data     []post `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
}

// Search runs the source's query against the search endpoint and returns
// normalized crawl inputs with author and engagement context folded into
// the raw text.
func (c *Client) Search(ctx context.Context, src regwatch.SourceDescriptor) ([]regwatch.CrawlInput, error) {
	if c.cfg.BearerToken == "" {
		return nil, ErrNoCredential
	}
	if src.Query == "" {
		return nil, fmt.Errorf("source %s has no search query", src.ID)
	}

	endpoint := c.cfg.Endpoint
	if src.URL != "" {
		endpoint = src.URL
	}
	reqURL, err := buildSearchURL(endpoint, src.Query, c.cfg.MaxResults)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	users := make(map[string]user, len(parsed.Includes.Users))
	for _, u := range parsed.Includes.Users {
		users[u.ID] = u
	}

	inputs := make([]regwatch.CrawlInput, 0, len(parsed.Data))
	for _, p := range parsed.Data {
		text := strings.TrimSpace(p.Text)
		if p.ID == "" || text == "" {
			continue
		}
		author := users[p.AuthorID]
		inputs = append(inputs, regwatch.CrawlInput{
			Title:       postTitle(author, text),
			URL:         postURL(author, p.ID),
			Summary:     text,
			RawText:     text + "\n" + engagementLine(p.Metrics),
			PublishedAt: parseCreatedAt(p.CreatedAt),
			Source:      src,
			SourceURL:   endpoint,
			ItemURL:     postURL(author, p.ID),
		})
	}
	return inputs, nil
}

func buildSearchURL(endpoint, query string, maxResults int) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid search endpoint %q: %w", endpoint, err)
	}
	q := parsed.Query()
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("tweet.fields", "created_at,public_metrics,author_id")
	q.Set("expansions", "author_id")
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func postTitle(author user, text string) string {
	head := truncate(text, titleChars)
	if author.Username != "" {
		return "@" + author.Username + ": " + head
	}
	return head
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

func postURL(author user, id string) string {
	if author.Username != "" {
		return "https://x.com/" + author.Username + "/status/" + id
	}
	return "https://x.com/i/web/status/" + id
}

func engagementLine(m postMetrics) string {
	return fmt.Sprintf("engagement: %d reposts, %d replies, %d likes, %d quotes",
		m.RetweetCount, m.ReplyCount, m.LikeCount, m.QuoteCount)
}

func parseCreatedAt(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
