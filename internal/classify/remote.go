package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/regcrawler/internal/regwatch"
)

// ErrNoCredential is returned when no API key is configured.
var ErrNoCredential = errors.New("classification api key not configured")

// ErrUnauthorized is returned when the service rejects the credential.
// The fallback wrapper latches on it to avoid repeated doomed calls.
var ErrUnauthorized = errors.New("classification service rejected credentials")

const systemPrompt = "You are a legal analyst tracking regulations that restrict " +
	"how social platforms may serve minors. Respond with a single JSON object " +
	"and no other text."

const defaultMaxPromptChars = 6000

// RemoteConfig controls the remote classifier adapter.
type RemoteConfig struct {
	Endpoint       string
	Model          string
	APIKey         string
	Timeout        time.Duration
	MaxPromptChars int
}

// Remote classifies items through an OpenAI-compatible chat completion
// endpoint.
type Remote struct {
	cfg        RemoteConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRemote builds a Remote classifier.
func NewRemote(cfg RemoteConfig, logger *zap.Logger) *Remote {
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = defaultMaxPromptChars
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify sends one item to the classification service and normalizes the
// strict-JSON verdict it returns.
func (r *Remote) Classify(ctx context.Context, input regwatch.CrawlInput) (regwatch.Analysis, error) {
	if r.cfg.APIKey == "" {
		return regwatch.Analysis{}, ErrNoCredential
	}

	body, err := json.Marshal(chatRequest{
		Model: r.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: r.buildPrompt(input)},
		},
		Temperature: 0,
	})
	if err != nil {
		return regwatch.Analysis{}, fmt.Errorf("marshal classify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return regwatch.Analysis{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return regwatch.Analysis{}, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return regwatch.Analysis{}, fmt.Errorf("classify: %w (%s)", ErrUnauthorized, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return regwatch.Analysis{}, fmt.Errorf("classify returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return regwatch.Analysis{}, fmt.Errorf("decode classify response: %w", err)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return regwatch.Analysis{}, fmt.Errorf("classify response has no content")
	}

	verdict, err := extractJSON(parsed.Choices[0].Message.Content)
	if err != nil {
		return regwatch.Analysis{}, err
	}
	return normalize(verdict, input), nil
}

// buildPrompt embeds the item's title, source context, and a length-capped
// slice of its text into the fixed prompt contract.
func (r *Remote) buildPrompt(input regwatch.CrawlInput) string {
	text := truncate(strings.TrimSpace(input.Summary+"\n"+input.RawText), r.cfg.MaxPromptChars)

	var b strings.Builder
	b.WriteString("Assess the following item for relevance to minor-safety platform regulation.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", input.Title)
	fmt.Fprintf(&b, "Source: %s (%s, jurisdiction: %s)\n", input.Source.Name, input.Source.Kind, input.Source.Jurisdiction)
	fmt.Fprintf(&b, "Content:\n%s\n\n", text)
	b.WriteString("Reply with one JSON object with exactly these keys: ")
	b.WriteString(`isRelevant (boolean), jurisdiction (string), stage (one of proposed, ` +
		`introduced, committee_review, passed, enacted, effective, amended, withdrawn, rejected), ` +
		`ageBracket (one of "13-15", "16-18", "both"), affectedMetaProducts (string array), ` +
		`summary (string), businessImpact (string), requiredSolutions (string array), ` +
		`competitorResponses (string array), impactScore, likelihoodScore, confidenceScore, ` +
		`chiliScore (each an integer 1-5).`)
	return b.String()
}
