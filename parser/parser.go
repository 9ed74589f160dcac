package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"issue-routing-pipeline/models"
)

// ExtractJSON pulls a single JSON object out of a raw model response. The
// response may be wrapped in markdown code fences or surrounded by prose;
// we strip fencing first, then take the first balanced {...} block.
func ExtractJSON(response string) string {
	cleaned := stripCodeFence(strings.TrimSpace(response))
	return firstBalancedObject(cleaned)
}

func stripCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	rest := s[start+3:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return s
	}
	content := rest[:end]

	// Drop a leading language identifier line (e.g. "json").
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	if len(lines) == 2 && strings.TrimSpace(lines[0]) == "json" {
		content = lines[1]
	}
	return strings.TrimSpace(content)
}

// firstBalancedObject returns the first top-level {...} block, tracking
// string literals so braces inside quoted snippets don't break the count.
func firstBalancedObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// Geocode is the reverse-geocoding schema: both fields required.
type Geocode struct {
	City  string `json:"city"`
	State string `json:"state"`
}

func ParseGeocode(raw json.RawMessage) (*Geocode, error) {
	var g Geocode
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}
	if strings.TrimSpace(g.City) == "" {
		return nil, errors.New("geocode: city is required")
	}
	if strings.TrimSpace(g.State) == "" {
		return nil, errors.New("geocode: state is required")
	}
	return &g, nil
}

// Topic is the topic-extraction schema.
type Topic struct {
	Topic string `json:"topic"`
}

func ParseTopic(raw json.RawMessage) (*Topic, error) {
	var t Topic
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("topic: %w", err)
	}
	if strings.TrimSpace(t.Topic) == "" {
		return nil, errors.New("topic: topic is required")
	}
	t.Topic = strings.ToLower(strings.TrimSpace(t.Topic))
	return &t, nil
}

// ImpliedLocation is the location-extraction schema used when no GPS was
// supplied. City/state are required only when found is true.
type ImpliedLocation struct {
	Found bool   `json:"found"`
	City  string `json:"city"`
	State string `json:"state"`
}

func ParseImpliedLocation(raw json.RawMessage) (*ImpliedLocation, error) {
	var l ImpliedLocation
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("implied location: %w", err)
	}
	if l.Found && (strings.TrimSpace(l.City) == "" || strings.TrimSpace(l.State) == "") {
		return nil, errors.New("implied location: found=true requires city and state")
	}
	return &l, nil
}

// ParseCandidate decodes the shared search-tier schema. When found is true,
// email and evidence are required and confidence must be within [0,1];
// mistyped or missing fields fail closed.
func ParseCandidate(raw json.RawMessage) (*models.CandidateAddress, error) {
	var c models.CandidateAddress
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("candidate: %w", err)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return nil, errors.New("candidate: confidence must be between 0 and 1")
	}
	if !c.Found {
		return &c, nil
	}
	if strings.TrimSpace(c.Email) == "" {
		return nil, errors.New("candidate: found=true requires email")
	}
	if c.Evidence != nil && strings.TrimSpace(c.Evidence.QuotedSnippet) == "" {
		return nil, errors.New("candidate: evidence requires quoted_snippet")
	}
	return &c, nil
}

// Guess is the last-resort ungrounded schema.
type Guess struct {
	Email      string `json:"email"`
	AgencyName string `json:"agency_name"`
}

func ParseGuess(raw json.RawMessage) (*Guess, error) {
	var g Guess
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("guess: %w", err)
	}
	if strings.TrimSpace(g.Email) == "" {
		return nil, errors.New("guess: email is required")
	}
	return &g, nil
}

// DraftText is the draft-composition schema.
type DraftText struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func ParseDraftText(raw json.RawMessage) (*DraftText, error) {
	var d DraftText
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("draft: %w", err)
	}
	if strings.TrimSpace(d.Subject) == "" {
		return nil, errors.New("draft: subject is required")
	}
	if strings.TrimSpace(d.Body) == "" {
		return nil, errors.New("draft: body is required")
	}
	return &d, nil
}

// Revision is the revision schema: a grounded single call that may change
// any of the three draft fields.
type Revision struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func ParseRevision(raw json.RawMessage) (*Revision, error) {
	var r Revision
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("revision: %w", err)
	}
	if strings.TrimSpace(r.To) == "" || strings.TrimSpace(r.Subject) == "" || strings.TrimSpace(r.Body) == "" {
		return nil, errors.New("revision: to, subject and body are all required")
	}
	return &r, nil
}
