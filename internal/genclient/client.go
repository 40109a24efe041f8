// Package genclient is the HTTP client for the AI question-generation
// backend. Calls are expensive and non-idempotent, so there is no retry
// here: a failed call surfaces the server's wording and the caller decides
// what to do.
package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prepdeck/prepdeck/internal/models"
)

const (
	pathTopic          = "/generate_questions"
	pathPaper          = "/generate_whole_paper"
	pathKeyword        = "/generate_from_keyword"
	pathCurrentAffairs = "/generate_current_affairs"
	pathAnswers        = "/generate_answers"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a backend client. The timeout is generous by design;
// generation calls take as long as the model does, and a timeout is treated
// like any other failed request.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// GenerateQuestions issues exactly one call for the mode's endpoint. The
// mode is the single discriminant for both the path and the payload.
func (c *Client) GenerateQuestions(ctx context.Context, token string, req models.GenerationRequest) (*models.GenerationResult, error) {
	path, payload := requestFor(req)

	var result models.GenerationResult
	if err := c.post(ctx, token, path, payload, &result); err != nil {
		return nil, err
	}
	if result.QuestionCount == 0 {
		result.QuestionCount = len(result.Questions)
	}
	return &result, nil
}

// GenerateAnswers requests model answers for a question batch. The response
// list aligns positionally with the request; the caller enforces that.
func (c *Client) GenerateAnswers(ctx context.Context, token string, questions []string) ([]models.Answer, error) {
	payload := map[string]any{"questions": questions}

	var result struct {
		Answers []models.Answer `json:"answers"`
	}
	if err := c.post(ctx, token, pathAnswers, payload, &result); err != nil {
		return nil, err
	}
	return result.Answers, nil
}

func requestFor(req models.GenerationRequest) (string, map[string]any) {
	switch req.Mode {
	case models.ModePaper:
		return pathPaper, map[string]any{
			"subject": req.Subject,
			"use_ca":  req.UseCurrentAffairs,
			"model":   req.ModelID,
		}
	case models.ModeKeyword:
		return pathKeyword, map[string]any{
			"keyword": req.Keyword,
			"model":   req.ModelID,
		}
	case models.ModeCurrentAffairs:
		return pathCurrentAffairs, map[string]any{
			"subject":     req.Subject,
			"topic":       req.Topic,
			"keyword":     req.Keyword,
			"news_source": req.NewsSource,
			"model":       req.ModelID,
		}
	default:
		return pathTopic, map[string]any{
			"topic":  req.Topic,
			"num":    req.QuestionCount,
			"use_ca": req.UseCurrentAffairs,
			"model":  req.ModelID,
		}
	}
}

func (c *Client) post(ctx context.Context, token, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.RequestError{
			Kind:    models.ErrRequestFailed,
			Message: fmt.Sprintf("generation service unreachable: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.RequestError{
			Kind:    models.ErrRequestFailed,
			Message: fmt.Sprintf("failed to decode response: %v", err),
			Status:  resp.StatusCode,
		}
	}
	return nil
}

// decodeError maps a non-2xx response onto the error taxonomy. 429 is the
// server's quota-exhaustion signal and gets its own kind; everything else
// carries the server's message verbatim where one exists.
func (c *Client) decodeError(resp *http.Response) error {
	kind := models.ErrRequestFailed
	if resp.StatusCode == http.StatusTooManyRequests {
		kind = models.ErrRateLimited
	}

	message := fmt.Sprintf("generation request failed with status %d", resp.StatusCode)
	var stats *models.UsageStats
	raw, err := io.ReadAll(resp.Body)
	if err == nil {
		if m, st := serverError(raw); m != "" {
			message = m
			stats = st
		}
	}

	c.logger.Error("Generation backend returned an error", "status", resp.StatusCode, "message", message)
	return &models.RequestError{Kind: kind, Message: message, Status: resp.StatusCode, Stats: stats}
}

// serverError extracts the human-readable message from an {error|detail}
// body, plus the usage stats a 429 detail carries. detail may itself be a
// string or an object carrying error and stats fields.
func serverError(raw []byte) (string, *models.UsageStats) {
	var body struct {
		Error  string          `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", nil
	}
	if body.Error != "" {
		return body.Error, nil
	}
	if len(body.Detail) == 0 {
		return "", nil
	}

	var detailStr string
	if err := json.Unmarshal(body.Detail, &detailStr); err == nil {
		return detailStr, nil
	}
	var detailObj struct {
		Error string             `json:"error"`
		Stats *models.UsageStats `json:"stats"`
	}
	if err := json.Unmarshal(body.Detail, &detailObj); err == nil {
		return detailObj.Error, detailObj.Stats
	}
	return "", nil
}
