// Package openai is an alternative llm.Client backed by the OpenAI chat
// completions endpoint. Search grounding requires a search-capable model
// (for example gpt-4o-search-preview); the provider passes the request
// through and classifies failures the same way the Gemini client does.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"issue-routing-pipeline/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type webSearchOptions struct{}

type chatRequest struct {
	Model            string            `json:"model"`
	Messages         []message         `json:"messages"`
	Temperature      float64           `json:"temperature"`
	ResponseFormat   *responseFormat   `json:"response_format,omitempty"`
	WebSearchOptions *webSearchOptions `json:"web_search_options,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a local server.
func NewClientWithBaseURL(apiKey, model, baseURL string) *Client {
	c := NewClient(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) SourceName() string {
	return "OpenAI"
}

func (c *Client) Complete(ctx context.Context, prompt string, useSearchGrounding bool) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	}
	if useSearchGrounding {
		reqBody.WebSearchOptions = &webSearchOptions{}
	} else {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &llm.ModelError{Kind: llm.ErrUnavailable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", &llm.ModelError{Kind: llm.ErrUnavailable, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &llm.ModelError{Kind: llm.ErrRateLimited, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return "", &llm.ModelError{Kind: llm.ErrUnavailable, Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, truncateBody(body))}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &llm.ModelError{Kind: llm.ErrBlocked, Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, truncateBody(body))}
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", &llm.ModelError{Kind: llm.ErrUnavailable, Err: fmt.Errorf("failed to parse response envelope: %w", err)}
	}
	if cr.Error != nil {
		return "", &llm.ModelError{Kind: llm.ErrUnavailable, Reason: cr.Error.Message}
	}
	if len(cr.Choices) == 0 {
		return "", &llm.ModelError{Kind: llm.ErrBlocked, Reason: "no choices in response"}
	}

	choice := cr.Choices[0]
	if choice.Message.Refusal != "" {
		return "", &llm.ModelError{Kind: llm.ErrBlocked, Reason: choice.Message.Refusal}
	}
	if choice.FinishReason == "length" {
		return "", &llm.ModelError{Kind: llm.ErrTruncated, Reason: "output cut off at token limit"}
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", &llm.ModelError{Kind: llm.ErrBlocked, Reason: "choice produced no text"}
	}
	return text, nil
}

func truncateBody(b []byte) string {
	const max = 256
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
