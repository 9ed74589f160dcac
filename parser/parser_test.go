package parser

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{
			name:     "bare object",
			response: `{"city": "Palo Alto", "state": "CA"}`,
			expected: `{"city": "Palo Alto", "state": "CA"}`,
		},
		{
			name:     "json code fence",
			response: "```json\n{\"topic\": \"pothole\"}\n```",
			expected: `{"topic": "pothole"}`,
		},
		{
			name:     "plain code fence",
			response: "```\n{\"topic\": \"pothole\"}\n```",
			expected: `{"topic": "pothole"}`,
		},
		{
			name:     "leading and trailing prose",
			response: "Here is the result you asked for:\n{\"found\": true}\nLet me know if you need anything else.",
			expected: `{"found": true}`,
		},
		{
			name:     "braces inside quoted strings",
			response: `{"quoted_snippet": "email us at x@y.gov {office hours}"} trailing`,
			expected: `{"quoted_snippet": "email us at x@y.gov {office hours}"}`,
		},
		{
			name:     "nested objects",
			response: `prose {"found": true, "evidence": {"source_url": "https://x.gov"}} more prose`,
			expected: `{"found": true, "evidence": {"source_url": "https://x.gov"}}`,
		},
		{
			name:     "escaped quotes in strings",
			response: `{"body": "she said \"hello\" to us"}`,
			expected: `{"body": "she said \"hello\" to us"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.response)
			if got != tt.expected {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseGeocode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"city": "Palo Alto", "state": "CA"}`, false},
		{"missing city", `{"state": "CA"}`, true},
		{"missing state", `{"city": "Palo Alto"}`, true},
		{"whitespace city", `{"city": "  ", "state": "CA"}`, true},
		{"mistyped city", `{"city": 42, "state": "CA"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGeocode(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseGeocode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTopic(t *testing.T) {
	got, err := ParseTopic(json.RawMessage(`{"topic": "  Pothole "}`))
	if err != nil {
		t.Fatalf("ParseTopic() error = %v", err)
	}
	if got.Topic != "pothole" {
		t.Errorf("ParseTopic() normalized topic = %q, want %q", got.Topic, "pothole")
	}

	if _, err := ParseTopic(json.RawMessage(`{"topic": ""}`)); err == nil {
		t.Error("ParseTopic() with empty topic should fail")
	}
}

func TestParseImpliedLocation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"found with both fields", `{"found": true, "city": "Oakland", "state": "CA"}`, false},
		{"not found", `{"found": false, "city": "", "state": ""}`, false},
		{"found missing state", `{"found": true, "city": "Oakland", "state": ""}`, true},
		{"mistyped found", `{"found": "yes"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseImpliedLocation(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseImpliedLocation() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid found candidate",
			raw: `{"found": true, "email": "publicworks@city.gov", "agency_name": "Public Works",
				"confidence": 0.9,
				"evidence": {"source_title": "t", "source_url": "u", "quoted_snippet": "email publicworks@city.gov"}}`,
			wantErr: false,
		},
		{"not found", `{"found": false, "email": "", "agency_name": "", "confidence": 0}`, false},
		{"found without email", `{"found": true, "email": "", "confidence": 0.5}`, true},
		{"confidence above one", `{"found": true, "email": "a@b.gov", "confidence": 1.5}`, true},
		{"negative confidence", `{"found": false, "confidence": -0.1}`, true},
		{"evidence without snippet", `{"found": true, "email": "a@b.gov", "confidence": 0.5, "evidence": {"source_title": "t", "source_url": "u", "quoted_snippet": ""}}`, true},
		{"mistyped confidence", `{"found": true, "email": "a@b.gov", "confidence": "high"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCandidate(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCandidate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDraftText(t *testing.T) {
	if _, err := ParseDraftText(json.RawMessage(`{"subject": "s", "body": "b"}`)); err != nil {
		t.Errorf("ParseDraftText() valid draft error = %v", err)
	}
	if _, err := ParseDraftText(json.RawMessage(`{"subject": "s"}`)); err == nil {
		t.Error("ParseDraftText() missing body should fail")
	}
}

func TestParseRevision(t *testing.T) {
	if _, err := ParseRevision(json.RawMessage(`{"to": "a@b.gov", "subject": "s", "body": "b"}`)); err != nil {
		t.Errorf("ParseRevision() valid revision error = %v", err)
	}
	if _, err := ParseRevision(json.RawMessage(`{"to": "", "subject": "s", "body": "b"}`)); err == nil {
		t.Error("ParseRevision() empty to should fail")
	}
}
