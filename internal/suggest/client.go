package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-haiku-4-5-20251001"
)

// ErrNoAPIKey is returned when the client has no API key.
var ErrNoAPIKey = errors.New("no API key available")

// ClientOptions configures a Client.
type ClientOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	Logger  *log.Logger
}

// Client asks an Anthropic model to extract suggestions. Calls go through a
// circuit breaker so a failing API is skipped quickly.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a suggestion client. An empty API key falls back to
// ANTHROPIC_API_KEY.
func NewClient(opts ClientOptions) *Client {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		apiKey:  opts.APIKey,
		model:   opts.Model,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "suggest",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// IsAvailable returns true if the client has an API key.
func (c *Client) IsAvailable() bool {
	return c.apiKey != ""
}

// Suggest implements Source.
func (c *Client) Suggest(ctx context.Context, description string) (*Suggestion, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return &Suggestion{}, nil
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, buildPrompt(description))
	})
	if err != nil {
		return nil, err
	}
	return parseResponse(out.(string))
}

func buildPrompt(description string) string {
	var sb strings.Builder

	sb.WriteString(`You extract structured task details for a property maintenance team.
Read the task description and return a JSON object with these optional fields:
{
  "title": "<short imperative title>",
  "priority": "<low|medium|high|urgent>",
  "date": "<today|tomorrow|next_week|monday..sunday>",
  "signature": <true if a sign-off or signature is required>,
  "people": [{"name": "<person mentioned>"}],
  "teams": [{"name": "<team mentioned>"}],
  "spaces": [{"name": "<room or area>"}],
  "assets": [{"name": "<equipment or fixture>"}],
  "themes": [{"name": "<category>", "type": "<category|compliance>"}]
}

Leave out fields you are not sure about. Keep names exactly as written.

Examples:
- "fix the boiler with john tomorrow" -> {"title":"Fix the boiler","date":"tomorrow","people":[{"name":"john"}],"assets":[{"name":"boiler"}]}
- "urgent: leak in the garage" -> {"title":"Fix leak","priority":"urgent","spaces":[{"name":"garage"}],"themes":[{"name":"Plumbing","type":"category"}]}

`)
	sb.WriteString(fmt.Sprintf("Description: %s\n\nRespond with only the JSON object, no additional text.", description))
	return sb.String()
}

// Anthropic API types
type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) callAPI(ctx context.Context, prompt string) (string, error) {
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 400,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error: %d - %s", resp.StatusCode, string(body))
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("API error: %s", apiResp.Error.Message)
	}

	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}

	return apiResp.Content[0].Text, nil
}

func parseResponse(response string) (*Suggestion, error) {
	response = strings.TrimSpace(response)

	// The model sometimes wraps the object in prose or a code fence
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no JSON object in response")
	}
	response = response[jsonStart : jsonEnd+1]

	var s Suggestion
	if err := json.Unmarshal([]byte(response), &s); err != nil {
		return nil, fmt.Errorf("parse suggestion: %w", err)
	}

	s.Title = strings.TrimSpace(s.Title)
	s.Priority = NormalizePriority(s.Priority)
	s.Date = normalizeDate(s.Date)
	s.People = cleanNamed(s.People)
	s.Teams = cleanNamed(s.Teams)
	s.Spaces = cleanNamed(s.Spaces)
	s.Assets = cleanNamed(s.Assets)

	themes := s.Themes[:0]
	for _, t := range s.Themes {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name != "" {
			themes = append(themes, t)
		}
	}
	s.Themes = themes
	return &s, nil
}

func normalizeDate(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.ReplaceAll(d, " ", "_")
	switch d {
	case DateToday, DateTomorrow, DateNextWeek:
		return d
	}
	if isWeekday(d) {
		return d
	}
	return ""
}

func cleanNamed(list []Named) []Named {
	var out []Named
	for _, n := range list {
		n.Name = strings.TrimSpace(n.Name)
		if n.Name != "" {
			out = appendNamed(out, n.Name)
		}
	}
	return out
}
