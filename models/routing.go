package models

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/golang/geo/s2"
)

// IssueReport is the inbound payload describing a civic issue. Location is
// kept as raw JSON so a malformed shape degrades to "no GPS" instead of a
// request-level decode failure.
type IssueReport struct {
	Description string          `json:"description"`
	Location    json.RawMessage `json:"location,omitempty"`
	HasPhoto    bool            `json:"has_photo"`
}

// LatLng is a well-formed GPS coordinate pair in degrees.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HasLocation reports whether the report carries a location payload at all.
// A JSON null counts as absent.
func (r *IssueReport) HasLocation() bool {
	trimmed := strings.TrimSpace(string(r.Location))
	return trimmed != "" && trimmed != "null"
}

// LatLng returns the report's coordinates when they are present, numeric and
// within valid degree ranges. Anything else (absent, partial, wrong types,
// out-of-range values) reports false.
func (r *IssueReport) LatLng() (LatLng, bool) {
	if len(r.Location) == 0 {
		return LatLng{}, false
	}

	var loc struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(r.Location, &loc); err != nil {
		return LatLng{}, false
	}
	if loc.Latitude == nil || loc.Longitude == nil {
		return LatLng{}, false
	}

	ll := s2.LatLngFromDegrees(*loc.Latitude, *loc.Longitude)
	if !ll.IsValid() {
		return LatLng{}, false
	}

	return LatLng{Latitude: *loc.Latitude, Longitude: *loc.Longitude}, true
}

// Jurisdiction is the city/state government responsible for a report.
// Immutable once resolved for a request.
type Jurisdiction struct {
	City  string `json:"city"`
	State string `json:"state"`
}

func (j Jurisdiction) String() string {
	return j.City + ", " + j.State
}

// Evidence is provenance for a candidate address: a quoted snippet from a
// live source plus where it came from. Passed through untouched.
type Evidence struct {
	SourceTitle   string `json:"source_title"`
	SourceURL     string `json:"source_url"`
	QuotedSnippet string `json:"quoted_snippet"`
}

// CandidateAddress is the outcome of a single search tier.
type CandidateAddress struct {
	Found      bool      `json:"found"`
	Email      string    `json:"email"`
	AgencyName string    `json:"agency_name"`
	Evidence   *Evidence `json:"evidence,omitempty"`
	Confidence float64   `json:"confidence"`
}

// FallbackLevel records which tier produced the returned address. The four
// levels form a strict total order of trust; downstream presentation keys
// off this field.
type FallbackLevel string

const (
	FallbackTopicSpecific       FallbackLevel = "TOPIC_SPECIFIC"
	FallbackAgencyMain          FallbackLevel = "AGENCY_MAIN"
	FallbackJurisdictionGeneral FallbackLevel = "JURISDICTION_GENERAL"
	FallbackUnverifiedGuess     FallbackLevel = "UNVERIFIED_GUESS"
)

// trustRank orders levels from most trusted (0) downward.
func (f FallbackLevel) trustRank() int {
	switch f {
	case FallbackTopicSpecific:
		return 0
	case FallbackAgencyMain:
		return 1
	case FallbackJurisdictionGeneral:
		return 2
	case FallbackUnverifiedGuess:
		return 3
	}
	return 4
}

// Trusted reports whether a level is strong enough to present the address
// without a "verify before sending" affordance.
func (f FallbackLevel) Trusted() bool {
	return f.trustRank() <= 1
}

// DNSCheck is the advisory deliverability result for the chosen domain.
// Nil fields mean the lookup could not be completed ("unknown").
type DNSCheck struct {
	Exists         *bool `json:"exists"`
	HasMailRecords *bool `json:"has_mail_records"`
}

// RoutingResult is the terminal output of address resolution.
type RoutingResult struct {
	To            string        `json:"to"`
	Subject       string        `json:"subject"`
	Body          string        `json:"body"`
	Jurisdiction  Jurisdiction  `json:"jurisdiction"`
	AgencyName    string        `json:"agency_name"`
	Topic         string        `json:"topic"`
	Confidence    float64       `json:"confidence"`
	FallbackLevel FallbackLevel `json:"fallback_level"`
	Trusted       bool          `json:"trusted"`
	Evidence      *Evidence     `json:"evidence,omitempty"`
	DNSVerified   DNSCheck      `json:"dns_verified"`
}

// Draft is a composed or revised email draft.
type Draft struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RevisionRequest carries a free-text change request against an existing draft.
type RevisionRequest struct {
	CurrentTo      string `json:"current_to"`
	CurrentSubject string `json:"current_subject"`
	CurrentBody    string `json:"current_body"`
	Suggestion     string `json:"suggestion"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidEmailAddress reports whether s has the shape local@domain.tld.
func ValidEmailAddress(s string) bool {
	return emailRegex.MatchString(strings.TrimSpace(s))
}

// EmailDomain extracts the mail domain from an address.
func EmailDomain(email string) (string, bool) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	return strings.ToLower(email[at+1:]), true
}
