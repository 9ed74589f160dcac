package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"issue-routing-pipeline/compose"
	"issue-routing-pipeline/gateway"
	"issue-routing-pipeline/llm"
	"issue-routing-pipeline/models"
)

// stageMarkers map a distinctive prompt fragment to the pipeline stage that
// sent it, so the fake client can answer each stage independently.
var stageMarkers = []struct {
	marker string
	stage  string
}{
	{"Reverse geocode", "geocode"},
	{"clearly imply the city", "implied"},
	{"Classify this civic issue", "topic"},
	{"specifically handles", "tier1"},
	{"official main contact email", "tier2"},
	{"general citizen-services", "tier3"},
	{"best guess", "guess"},
	{"Write a concise, polite email", "draft"},
}

// fakeLLM answers each pipeline stage with a canned response and records
// which stages ran, in order, with their grounding flag.
type fakeLLM struct {
	responses map[string]string
	errs      map[string]error
	stages    []string
	grounded  map[string]bool
	prompts   map[string]string
}

func newFakeLLM(responses map[string]string) *fakeLLM {
	return &fakeLLM{
		responses: responses,
		errs:      map[string]error{},
		grounded:  map[string]bool{},
		prompts:   map[string]string{},
	}
}

func (f *fakeLLM) Complete(_ context.Context, prompt string, grounding bool) (string, error) {
	for _, m := range stageMarkers {
		if strings.Contains(prompt, m.marker) {
			f.stages = append(f.stages, m.stage)
			f.grounded[m.stage] = grounding
			f.prompts[m.stage] = prompt
			if err, ok := f.errs[m.stage]; ok {
				return "", err
			}
			if resp, ok := f.responses[m.stage]; ok {
				return resp, nil
			}
			return "", fmt.Errorf("no canned response for stage %s", m.stage)
		}
	}
	return "", fmt.Errorf("unrecognized prompt: %.80s", prompt)
}

func (f *fakeLLM) SourceName() string { return "Fake" }

func (f *fakeLLM) ran(stage string) bool {
	for _, s := range f.stages {
		if s == stage {
			return true
		}
	}
	return false
}

// fakeVerifier returns a fixed DNS answer and records the queried domain.
type fakeVerifier struct {
	result models.DNSCheck
	domain string
}

func (f *fakeVerifier) CheckDeliverable(_ context.Context, domain string) models.DNSCheck {
	f.domain = domain
	return f.result
}

func newTestPipeline(client llm.Client, verifier DomainVerifier) *Pipeline {
	gw := gateway.New(client,
		gateway.WithBaseDelay(time.Millisecond),
		gateway.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	return NewPipeline(gw, verifier, compose.NewComposer(gw),
		models.Jurisdiction{City: "Palo Alto", State: "CA"}, 0.1)
}

func candidateJSON(email, agency, snippet string, confidence float64) string {
	c := map[string]any{
		"found":       true,
		"email":       email,
		"agency_name": agency,
		"confidence":  confidence,
		"evidence": map[string]string{
			"source_title":   "Contact Us",
			"source_url":     "https://example.gov/contact",
			"quoted_snippet": snippet,
		},
	}
	b, _ := json.Marshal(c)
	return string(b)
}

const notFoundJSON = `{"found": false, "email": "", "agency_name": "", "confidence": 0}`

func gpsReport(description string) models.IssueReport {
	return models.IssueReport{
		Description: description,
		Location:    json.RawMessage(`{"latitude": 37.33, "longitude": -121.89}`),
	}
}

func TestResolveTierOneAccepted(t *testing.T) {
	email := "potholes@sanjoseca.gov"
	client := newFakeLLM(map[string]string{
		"geocode": `{"city": "San Jose", "state": "CA"}`,
		"topic":   `{"topic": "pothole"}`,
		"tier1": candidateJSON(email, "Department of Transportation",
			"Report potholes to potholes@sanjoseca.gov or call 311.", 0.9),
		"draft": `{"subject": "Pothole on Elm Street", "body": "Dear Department of Transportation, ..."}`,
	})
	verifier := &fakeVerifier{result: models.DNSCheck{Exists: boolPtr(true), HasMailRecords: boolPtr(true)}}

	result, err := newTestPipeline(client, verifier).Resolve(context.Background(), gpsReport("Huge pothole on Elm Street"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if result.To != email {
		t.Errorf("To = %q, want %q", result.To, email)
	}
	if result.FallbackLevel != models.FallbackTopicSpecific {
		t.Errorf("FallbackLevel = %q, want %q", result.FallbackLevel, models.FallbackTopicSpecific)
	}
	if result.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", result.Confidence)
	}
	if !result.Trusted {
		t.Error("a topic-specific result must be marked trusted")
	}
	if result.Evidence == nil || !strings.Contains(result.Evidence.QuotedSnippet, email) {
		t.Error("result must carry the evidence that justified acceptance")
	}
	if got := result.Jurisdiction.String(); got != "San Jose, CA" {
		t.Errorf("Jurisdiction = %q, want %q", got, "San Jose, CA")
	}
	if verifier.domain != "sanjoseca.gov" {
		t.Errorf("DNS check queried %q, want %q", verifier.domain, "sanjoseca.gov")
	}
	if result.DNSVerified.HasMailRecords == nil || !*result.DNSVerified.HasMailRecords {
		t.Error("DNS advisory result was not attached")
	}

	for _, stage := range []string{"tier2", "tier3", "guess", "implied"} {
		if client.ran(stage) {
			t.Errorf("stage %s must not run after an accepted tier-1 candidate", stage)
		}
	}
	if !client.grounded["tier1"] {
		t.Error("search tiers must use web-search grounding")
	}
	if client.grounded["geocode"] {
		t.Error("reverse geocoding must not use web-search grounding")
	}
}

func TestResolveFallsBackToUnverifiedGuess(t *testing.T) {
	client := newFakeLLM(map[string]string{
		"geocode": `{"city": "San Jose", "state": "CA"}`,
		"topic":   `{"topic": "pothole"}`,
		"tier1":   notFoundJSON,
		"tier2":   notFoundJSON,
		"tier3":   notFoundJSON,
		"guess":   `{"email": "cityhall@sanjoseca.gov", "agency_name": "City Hall"}`,
		"draft":   `{"subject": "Pothole report", "body": "..."}`,
	})
	verifier := &fakeVerifier{}

	result, err := newTestPipeline(client, verifier).Resolve(context.Background(), gpsReport("pothole"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if result.FallbackLevel != models.FallbackUnverifiedGuess {
		t.Errorf("FallbackLevel = %q, want %q", result.FallbackLevel, models.FallbackUnverifiedGuess)
	}
	if result.Confidence != 0.1 {
		t.Errorf("Confidence = %v, want the fixed guess confidence 0.1", result.Confidence)
	}
	if result.Evidence != nil {
		t.Error("a guess must not carry evidence")
	}
	if result.Trusted {
		t.Error("a guess must never be marked trusted")
	}
	for _, stage := range []string{"tier1", "tier2", "tier3"} {
		if !client.ran(stage) {
			t.Errorf("stage %s must run before guessing", stage)
		}
	}
	if client.grounded["guess"] {
		t.Error("the last-resort guess must not use web-search grounding")
	}
}

func TestResolveGuessSchemaFailureIsMalformed(t *testing.T) {
	client := newFakeLLM(map[string]string{
		"geocode": `{"city": "San Jose", "state": "CA"}`,
		"topic":   `{"topic": "pothole"}`,
		"tier1":   notFoundJSON,
		"tier2":   notFoundJSON,
		"tier3":   notFoundJSON,
		"guess":   `{"agency_name": "City Hall"}`,
	})

	_, err := newTestPipeline(client, &fakeVerifier{}).Resolve(context.Background(), gpsReport("pothole"))
	if err == nil {
		t.Fatal("expected an error when the guess omits the email")
	}
	if got := llm.KindOf(err); got != llm.ErrMalformed {
		t.Errorf("error kind = %q, want %q", got, llm.ErrMalformed)
	}
}

func TestResolveRejectsEvidenceWithoutEmail(t *testing.T) {
	good := "publicworks@sanjoseca.gov"
	client := newFakeLLM(map[string]string{
		"geocode": `{"city": "San Jose", "state": "CA"}`,
		"topic":   `{"topic": "pothole"}`,
		// Snippet never quotes the address, so the candidate is fabricated.
		"tier1": candidateJSON("potholes@sanjoseca.gov", "Department of Transportation",
			"Contact the department through our online portal.", 0.8),
		"tier2": candidateJSON(good, "Public Works Department",
			"Email publicworks@sanjoseca.gov with questions.", 0.7),
		"draft": `{"subject": "Pothole report", "body": "..."}`,
	})

	result, err := newTestPipeline(client, &fakeVerifier{}).Resolve(context.Background(), gpsReport("pothole"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.To != good {
		t.Errorf("To = %q, want the tier-2 candidate %q", result.To, good)
	}
	if result.FallbackLevel != models.FallbackAgencyMain {
		t.Errorf("FallbackLevel = %q, want %q", result.FallbackLevel, models.FallbackAgencyMain)
	}
}

func TestResolveRejectsIrrelevantAgency(t *testing.T) {
	good := "311@sanjoseca.gov"
	client := newFakeLLM(map[string]string{
		"geocode": `{"city": "San Jose", "state": "CA"}`,
		"topic":   `{"topic": "pothole"}`,
		"tier1": candidateJSON("graffiti@sanjoseca.gov", "Graffiti Abatement Program",
			"Report graffiti to graffiti@sanjoseca.gov.", 0.9),
		"tier2": notFoundJSON,
		"tier3": candidateJSON(good, "City of San Jose 311",
			"Reach 311 at 311@sanjoseca.gov.", 0.6),
		"draft": `{"subject": "Pothole report", "body": "..."}`,
	})

	result, err := newTestPipeline(client, &fakeVerifier{}).Resolve(context.Background(), gpsReport("pothole"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.To != good {
		t.Errorf("To = %q, want %q (graffiti desk is wrong for a pothole)", result.To, good)
	}
	if result.FallbackLevel != models.FallbackJurisdictionGeneral {
		t.Errorf("FallbackLevel = %q, want %q", result.FallbackLevel, models.FallbackJurisdictionGeneral)
	}
}

func TestResolveMalformedGPSUsesDefaultJurisdiction(t *testing.T) {
	client := newFakeLLM(map[string]string{
		"topic": `{"topic": "graffiti"}`,
		"tier1": candidateJSON("graffiti@cityofpaloalto.org", "Graffiti Abatement Program",
			"Email graffiti@cityofpaloalto.org to report graffiti.", 0.85),
		"draft": `{"subject": "Graffiti report", "body": "..."}`,
	})

	// The description names another city, but the supplied (broken)
	// coordinates take precedence: malformed is not the same as absent.
	report := models.IssueReport{
		Description: "Graffiti on the mural wall in downtown Oakland",
		Location:    json.RawMessage(`{"latitude": "abc", "longitude": -122.1}`),
	}
	result, err := newTestPipeline(client, &fakeVerifier{}).Resolve(context.Background(), report)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if client.ran("geocode") {
		t.Error("malformed coordinates must not reach the geocoder")
	}
	if client.ran("implied") {
		t.Error("malformed coordinates must not trigger implied-location extraction")
	}
	if got := result.Jurisdiction.String(); got != "Palo Alto, CA" {
		t.Errorf("Jurisdiction = %q, want the default %q", got, "Palo Alto, CA")
	}
}

func TestResolveImpliedLocationWhenNoGPS(t *testing.T) {
	client := newFakeLLM(map[string]string{
		"implied": `{"found": true, "city": "Oakland", "state": "CA"}`,
		"topic":   `{"topic": "graffiti"}`,
		"tier1": candidateJSON("graffiti@oaklandca.gov", "Graffiti Abatement Program",
			"Email graffiti@oaklandca.gov to report graffiti.", 0.85),
		"draft": `{"subject": "Graffiti report", "body": "..."}`,
	})

	report := models.IssueReport{Description: "Graffiti on the mural wall in downtown Oakland"}
	result, err := newTestPipeline(client, &fakeVerifier{}).Resolve(context.Background(), report)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if client.ran("geocode") {
		t.Error("a report without coordinates must not reach the geocoder")
	}
	if got := result.Jurisdiction.String(); got != "Oakland, CA" {
		t.Errorf("Jurisdiction = %q, want %q", got, "Oakland, CA")
	}
}

func TestResolveDefaultsWhenNothingIsKnown(t *testing.T) {
	client := newFakeLLM(map[string]string{
		"implied": `{"found": false, "city": "", "state": ""}`,
		"tier1": candidateJSON("cityhall@cityofpaloalto.org", "City Manager's Office",
			"Contact us at cityhall@cityofpaloalto.org.", 0.5),
		"draft": `{"subject": "Issue report", "body": "..."}`,
	})
	// Topic extraction fails hard; the pipeline must degrade, not error.
	client.errs["topic"] = &llm.ModelError{Kind: llm.ErrBlocked, Reason: "SAFETY"}

	report := models.IssueReport{Description: "something is wrong"}
	result, err := newTestPipeline(client, &fakeVerifier{}).Resolve(context.Background(), report)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := result.Jurisdiction.String(); got != "Palo Alto, CA" {
		t.Errorf("Jurisdiction = %q, want the default", got)
	}
	if result.Topic != "general issue" {
		t.Errorf("Topic = %q, want the default topic", result.Topic)
	}
	if !strings.Contains(client.prompts["tier1"], "general issue") {
		t.Error("search prompts must use the default topic when extraction fails")
	}
	if !strings.Contains(client.prompts["tier1"], "Palo Alto, CA") {
		t.Error("search prompts must use the default jurisdiction")
	}
}

func TestDepartmentFor(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"pothole", "Public Works or Transportation Department"},
		{"illegal dumping", "Sanitation or Environmental Services Department"},
		{"broken streetlight", "Public Works or Transportation Department"},
		{"noise", "Police non-emergency line or Code Enforcement"},
		{"alien invasion", "department that handles general citizen service requests"},
	}
	for _, tt := range tests {
		if got := departmentFor(tt.topic); got != tt.want {
			t.Errorf("departmentFor(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
