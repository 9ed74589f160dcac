// Package stubllm is a deterministic, no-network llm.Client for CI and
// local end-to-end runs. It examines the prompt to decide which response
// schema is being requested and returns schema-valid JSON so the full
// pipeline (parsing, gating, composition) is exercised.
package stubllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

const (
	stubEmail  = "publicworks@cityofpaloalto.org"
	stubAgency = "Public Works Department"
)

func (c *Client) Complete(_ context.Context, prompt string, _ bool) (string, error) {
	var out map[string]any

	switch {
	case strings.Contains(prompt, "Reverse geocode"):
		out = map[string]any{"city": "Palo Alto", "state": "CA"}

	case strings.Contains(prompt, "clearly imply the city"):
		out = map[string]any{"found": false, "city": "", "state": ""}

	case strings.Contains(prompt, "short topic"):
		out = map[string]any{"topic": stubTopic(prompt)}

	case strings.Contains(prompt, "quoted_snippet"):
		out = map[string]any{
			"found":       true,
			"email":       stubEmail,
			"agency_name": stubAgency,
			"confidence":  0.9,
			"evidence": map[string]any{
				"source_title":   "City of Palo Alto - Report a Concern",
				"source_url":     "https://www.cityofpaloalto.org/report",
				"quoted_snippet": fmt.Sprintf("Contact Public Works at %s to report issues.", stubEmail),
			},
		}

	case strings.Contains(prompt, "best guess"):
		out = map[string]any{"email": "cityhall@cityofpaloalto.org", "agency_name": "City Hall"}

	case strings.Contains(prompt, "revising a draft email"):
		out = map[string]any{
			"to":      stubEmail,
			"subject": "Revised: civic issue report",
			"body":    "Revised draft body.\n\nA concerned resident",
		}

	default:
		// Draft composition.
		out = map[string]any{
			"subject": "Civic issue report",
			"body":    "Please see the attached report details.\n\nA concerned resident",
		}
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// stubTopic keys off a few common words so local runs look plausible. Only
// the report text after the "Report:" label is examined; the prompt preamble
// names example topics that must not match.
func stubTopic(prompt string) string {
	lower := strings.ToLower(prompt)
	if i := strings.LastIndex(lower, "report:"); i >= 0 {
		lower = lower[i:]
	}
	for _, t := range []string{"pothole", "graffiti", "streetlight", "flooding", "noise"} {
		if strings.Contains(lower, t) {
			return t
		}
	}
	return "general issue"
}
