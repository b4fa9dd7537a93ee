// Package lmstudio is a client for a local LM Studio server speaking
// the OpenAI-compatible HTTP API.
package lmstudio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "http://localhost:1234"
	defaultModel       = "qwen2.5-7b-instruct"
	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 3
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
	defaultTopP        = 0.9

	connectTimeout = 10 * time.Second
	initialBackoff = 1 * time.Second
)

// Config holds connection and sampling parameters for a Client. Zero
// values fall back to the package defaults.
type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Client communicates with a local LM Studio instance over HTTP.
type Client struct {
	baseURL     string
	model       string
	maxRetries  int
	temperature float64
	maxTokens   int
	topP        float64
	backoff     time.Duration
	httpClient  *http.Client
}

// New creates a Client from the given configuration.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.TopP <= 0 {
		cfg.TopP = defaultTopP
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		topP:        cfg.TopP,
		backoff:     initialBackoff,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Options override the client's sampling parameters for a single
// request. Nil fields keep the client defaults; stop sequences and
// penalties are only sent when set.
type Options struct {
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	Stop             []string
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// Result is a completed generation.
type Result struct {
	Content string
	Model   string
	Usage   Usage
}

// Generate sends a chat completion request and returns the model's
// answer. Transient failures are retried with exponential backoff;
// validation rejections (HTTP 422) are returned immediately because the
// same request cannot succeed on retry.
func (c *Client) Generate(ctx context.Context, messages []Message, opts *Options) (*Result, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	body, err := json.Marshal(c.buildRequest(messages, opts, false))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var (
		resp    *chatResponse
		lastErr error
	)
	for attempt := range c.maxRetries {
		resp, lastErr = c.doChat(ctx, body)
		if lastErr == nil {
			break
		}
		if isValidation(lastErr) {
			return nil, lastErr
		}

		slog.Warn("completion attempt failed", "attempt", attempt+1, "error", lastErr)
		if attempt < c.maxRetries-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("completion failed after %d attempts: %w", c.maxRetries, lastErr)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("model returned empty content")
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &Result{Content: content, Model: model, Usage: resp.Usage}, nil
}

func (c *Client) buildRequest(messages []Message, opts *Options, stream bool) chatRequest {
	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		TopP:        c.topP,
		Stream:      stream,
	}
	if opts != nil {
		if opts.Temperature != nil {
			req.Temperature = *opts.Temperature
		}
		if opts.MaxTokens != nil {
			req.MaxTokens = *opts.MaxTokens
		}
		if opts.TopP != nil {
			req.TopP = *opts.TopP
		}
		req.Stop = opts.Stop
		req.PresencePenalty = opts.PresencePenalty
		req.FrequencyPenalty = opts.FrequencyPenalty
	}
	return req
}

func (c *Client) doChat(ctx context.Context, body []byte) (*chatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		detail, _ := io.ReadAll(resp.Body)
		return nil, &validationError{detail: strings.TrimSpace(string(detail))}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &cr, nil
}

// validationError is returned on HTTP 422: the request is malformed for
// the loaded model and retrying cannot help.
type validationError struct {
	detail string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("request rejected by model server: %s", e.detail)
}

func isValidation(err error) bool {
	_, ok := err.(*validationError)
	return ok
}

// GenerateStream sends a streaming completion request and calls fn with
// each content chunk as it arrives. A non-nil error from fn aborts the
// stream. The returned Result carries the accumulated content.
// Streaming requests are not retried.
func (c *Client) GenerateStream(ctx context.Context, messages []Message, opts *Options, fn func(chunk string) error) (*Result, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages to send")
	}

	body, err := json.Marshal(c.buildRequest(messages, opts, true))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var content strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if data, found := strings.CutPrefix(strings.TrimSpace(line), "data: "); found {
			if data == "[DONE]" {
				return &Result{Content: content.String(), Model: c.model}, nil
			}
			var chunk streamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
				slog.Debug("skipping undecodable stream chunk", "error", jsonErr)
			} else if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				content.WriteString(chunk.Choices[0].Delta.Content)
				if cbErr := fn(chunk.Choices[0].Delta.Content); cbErr != nil {
					return nil, cbErr
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return &Result{Content: content.String(), Model: c.model}, nil
			}
			return nil, fmt.Errorf("reading stream: %w", err)
		}
	}
}

// ConnectionCheck reports server reachability and which model a session
// would use.
type ConnectionCheck struct {
	OK            bool
	ResolvedModel string
	Models        []ModelInfo
}

// CheckConnection verifies the server is reachable and resolves the
// configured model name against the server's list, matching by
// case-insensitive substring and falling back to the first listed
// model. The check never modifies the client; callers decide whether to
// adopt ResolvedModel via SetModel.
func (c *Client) CheckConnection(ctx context.Context) (*ConnectionCheck, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return &ConnectionCheck{}, err
	}

	check := &ConnectionCheck{OK: true, Models: models, ResolvedModel: c.model}
	if len(models) == 0 {
		return check, nil
	}

	want := strings.ToLower(c.model)
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.ID), want) {
			check.ResolvedModel = m.ID
			return check, nil
		}
	}
	check.ResolvedModel = models[0].ID
	return check, nil
}

// Models lists the models the server has available.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting model list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	return list.Data, nil
}

// LookupModel returns the served entry matching name by case-insensitive
// ID, falling back to the first served model when the name is not
// listed. Errors when the server has no models loaded.
func (c *Client) LookupModel(ctx context.Context, name string) (*ModelInfo, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, errors.New("no models loaded")
	}
	for _, m := range models {
		if strings.EqualFold(m.ID, name) {
			return &m, nil
		}
	}
	return &models[0], nil
}

// SetModel switches the model used for subsequent requests. Not safe to
// call concurrently with in-flight requests; intended for startup after
// CheckConnection.
func (c *Client) SetModel(name string) {
	c.model = name
}

// Model returns the model name used for requests.
func (c *Client) Model() string {
	return c.model
}

// EstimateTokens approximates the token count of a text. LM Studio
// exposes no tokenizer endpoint, so this uses the rough four-characters-
// per-token heuristic.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ValidateRequestSize reports whether the messages fit the model's
// context window, reserving 30% of it for the completion.
func ValidateRequestSize(messages []Message, contextWindow int) error {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	budget := contextWindow * 7 / 10
	if total > budget {
		return fmt.Errorf("prompt too large: ~%d tokens exceeds budget of %d (70%% of %d)", total, budget, contextWindow)
	}
	return nil
}
