package gemini

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

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type googleSearch struct{}

type tool struct {
	GoogleSearch *googleSearch `json:"google_search,omitempty"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	Contents         []content        `json:"contents"`
	Tools            []tool           `json:"tools,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the Gemini generateContent endpoint. One prompt per call;
// search grounding is requested via the google_search tool.
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
	return "Gemini"
}

// Complete sends one prompt and returns the raw text of the first candidate.
// Failures are classified into llm.ModelError kinds so the gateway can decide
// what to retry.
func (c *Client) Complete(ctx context.Context, prompt string, useSearchGrounding bool) (string, error) {
	reqBody := geminiRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{Temperature: 0.2},
	}
	if useSearchGrounding {
		reqBody.Tools = []tool{{GoogleSearch: &googleSearch{}}}
	} else {
		// Grounded calls cannot force a JSON mime type; ungrounded ones can.
		reqBody.GenerationConfig.ResponseMimeType = "application/json"
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", &llm.ModelError{Kind: llm.ErrUnavailable, Err: fmt.Errorf("failed to parse response envelope: %w", err)}
	}
	if gr.Error != nil {
		return "", &llm.ModelError{Kind: llm.ErrUnavailable, Reason: gr.Error.Message}
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return "", &llm.ModelError{Kind: llm.ErrBlocked, Reason: gr.PromptFeedback.BlockReason}
	}
	if len(gr.Candidates) == 0 {
		return "", &llm.ModelError{Kind: llm.ErrBlocked, Reason: "no candidates in response"}
	}

	cand := gr.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())

	// MAX_TOKENS means the JSON we asked for never completed.
	if cand.FinishReason == "MAX_TOKENS" {
		return "", &llm.ModelError{Kind: llm.ErrTruncated, Reason: "output cut off at token limit"}
	}
	if text == "" {
		return "", &llm.ModelError{Kind: llm.ErrBlocked, Reason: "candidate produced no text"}
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
