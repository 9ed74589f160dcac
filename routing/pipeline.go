// Package routing resolves a free-text civic issue report to a verified
// government email address through a cascade of evidence-gated search tiers,
// then composes the outgoing draft.
package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"

	"issue-routing-pipeline/compose"
	"issue-routing-pipeline/gateway"
	"issue-routing-pipeline/llm"
	"issue-routing-pipeline/metrics"
	"issue-routing-pipeline/models"
	"issue-routing-pipeline/parser"
	"issue-routing-pipeline/relevance"
)

const fallbackTopic = "general issue"

// tierDef is one ranked attempt in the cascading search: a prompt builder
// plus the trust level it confers. Tiers run strictly in order and stop at
// the first accepted candidate.
type tierDef struct {
	level  models.FallbackLevel
	prompt func(models.Jurisdiction, string) string
}

var searchTiers = []tierDef{
	{models.FallbackTopicSpecific, topicSpecificPrompt},
	{models.FallbackAgencyMain, agencyMainPrompt},
	{models.FallbackJurisdictionGeneral, jurisdictionGeneralPrompt},
}

// DomainVerifier reports advisory DNS deliverability for a mail domain.
type DomainVerifier interface {
	CheckDeliverable(ctx context.Context, domain string) models.DNSCheck
}

// Pipeline orchestrates jurisdiction detection, topic extraction, the tiered
// search and draft composition. Every Resolve call is self-contained; no
// state is shared across requests.
type Pipeline struct {
	gw              *gateway.Gateway
	verifier        DomainVerifier
	composer        *compose.Composer
	defaultJuris    models.Jurisdiction
	guessConfidence float64
}

func NewPipeline(gw *gateway.Gateway, verifier DomainVerifier, composer *compose.Composer, defaultJuris models.Jurisdiction, guessConfidence float64) *Pipeline {
	return &Pipeline{
		gw:              gw,
		verifier:        verifier,
		composer:        composer,
		defaultJuris:    defaultJuris,
		guessConfidence: guessConfidence,
	}
}

// Resolve routes a report to its best-available destination address. It only
// fails on terminal model-gateway errors; every other degraded condition is
// absorbed into a lower-confidence result.
func (p *Pipeline) Resolve(ctx context.Context, report models.IssueReport) (*models.RoutingResult, error) {
	jurisdiction := p.resolveJurisdiction(ctx, report)
	topic := p.extractTopic(ctx, report.Description)
	log.Infof("resolving report: jurisdiction=%s topic=%q", jurisdiction, topic)

	candidate, level, err := p.searchTiers(ctx, jurisdiction, topic)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		candidate, err = p.unverifiedGuess(ctx, jurisdiction, topic)
		if err != nil {
			return nil, err
		}
		level = models.FallbackUnverifiedGuess
	}

	// Advisory only: the DNS result is attached as metadata and never
	// reverses tier selection.
	var dns models.DNSCheck
	if domain, ok := models.EmailDomain(candidate.Email); ok {
		dns = p.verifier.CheckDeliverable(ctx, domain)
	}

	draft, err := p.composer.DraftWithPhoto(ctx, report.Description, jurisdiction, candidate.AgencyName, report.HasPhoto)
	if err != nil {
		return nil, err
	}

	metrics.ResolutionsTotal.WithLabelValues(string(level)).Inc()
	return &models.RoutingResult{
		To:            candidate.Email,
		Subject:       draft.Subject,
		Body:          draft.Body,
		Jurisdiction:  jurisdiction,
		AgencyName:    candidate.AgencyName,
		Topic:         topic,
		Confidence:    candidate.Confidence,
		FallbackLevel: level,
		Trusted:       level.Trusted(),
		Evidence:      candidate.Evidence,
		DNSVerified:   dns,
	}, nil
}

// resolveJurisdiction derives the governing city/state once per request.
// All failure paths land on the default jurisdiction, never an error.
func (p *Pipeline) resolveJurisdiction(ctx context.Context, report models.IssueReport) models.Jurisdiction {
	if report.HasLocation() {
		loc, ok := report.LatLng()
		if !ok {
			// Coordinates were supplied but unusable. That is distinct
			// from no location at all: the sender claimed a position, so
			// guessing a different city from the text would contradict it.
			log.Warn("report location is malformed, using default jurisdiction")
			return p.defaultJuris
		}
		raw, err := p.gw.Complete(ctx, geocodePrompt(loc), false)
		if err != nil {
			log.Warnf("reverse geocode failed: %v", err)
			return p.defaultJuris
		}
		geo, err := parser.ParseGeocode(raw)
		if err != nil {
			log.Warnf("reverse geocode returned incomplete result: %v", err)
			return p.defaultJuris
		}
		return models.Jurisdiction{City: geo.City, State: geo.State}
	}

	// No location supplied, so try to pull an implied location out of the
	// description text.
	raw, err := p.gw.Complete(ctx, impliedLocationPrompt(report.Description), false)
	if err != nil {
		log.Warnf("implied location extraction failed: %v", err)
		return p.defaultJuris
	}
	implied, err := parser.ParseImpliedLocation(raw)
	if err != nil || !implied.Found {
		return p.defaultJuris
	}
	return models.Jurisdiction{City: implied.City, State: implied.State}
}

// extractTopic maps the description to a short canonical topic, defaulting
// to a generic topic instead of failing the request.
func (p *Pipeline) extractTopic(ctx context.Context, description string) string {
	raw, err := p.gw.Complete(ctx, topicPrompt(description), false)
	if err != nil {
		log.Warnf("topic extraction failed: %v", err)
		return fallbackTopic
	}
	topic, err := parser.ParseTopic(raw)
	if err != nil {
		return fallbackTopic
	}
	return topic.Topic
}

// searchTiers walks the three grounded tiers in trust order and returns the
// first candidate that passes all acceptance gates. A nil candidate with nil
// error means exhaustion.
func (p *Pipeline) searchTiers(ctx context.Context, jurisdiction models.Jurisdiction, topic string) (*models.CandidateAddress, models.FallbackLevel, error) {
	for _, tier := range searchTiers {
		metrics.TierAttemptsTotal.WithLabelValues(string(tier.level)).Inc()

		raw, err := p.gw.Complete(ctx, tier.prompt(jurisdiction, topic), true)
		if err != nil {
			// Terminal gateway errors propagate; the pipeline has no better
			// answer than its caller for a blocked or exhausted prompt.
			return nil, "", err
		}

		candidate, err := parser.ParseCandidate(raw)
		if err != nil {
			log.Warnf("tier %s returned invalid candidate: %v", tier.level, err)
			metrics.TierRejectsTotal.WithLabelValues(string(tier.level), "invalid_schema").Inc()
			continue
		}

		if reason, ok := p.accept(topic, candidate); ok {
			log.Infof("tier %s accepted %s (%s)", tier.level, candidate.Email, candidate.AgencyName)
			return candidate, tier.level, nil
		} else {
			log.Infof("tier %s rejected candidate: %s", tier.level, reason)
			metrics.TierRejectsTotal.WithLabelValues(string(tier.level), reason).Inc()
		}
	}
	return nil, "", nil
}

// accept applies the four independent acceptance gates. All must hold.
func (p *Pipeline) accept(topic string, c *models.CandidateAddress) (string, bool) {
	if !c.Found {
		return "not_found", false
	}
	if !models.ValidEmailAddress(c.Email) {
		return "invalid_email", false
	}
	// Non-negotiable: the evidence snippet must literally contain the
	// candidate email, or the address is treated as fabricated.
	if c.Evidence == nil || !strings.Contains(c.Evidence.QuotedSnippet, c.Email) {
		return "unquoted_evidence", false
	}
	if !relevance.IsRelevant(topic, c.AgencyName, c.Email) {
		return "irrelevant", false
	}
	return "", true
}

// unverifiedGuess is the last-resort tier: one ungrounded prompt, fixed low
// confidence, never subjected to the relevance or evidence gates. The tier
// label marks it untrusted rather than silently presenting it as verified.
func (p *Pipeline) unverifiedGuess(ctx context.Context, jurisdiction models.Jurisdiction, topic string) (*models.CandidateAddress, error) {
	raw, err := p.gw.Complete(ctx, guessPrompt(jurisdiction, topic), false)
	if err != nil {
		return nil, fmt.Errorf("unverified guess: %w", err)
	}
	guess, err := parser.ParseGuess(raw)
	if err != nil {
		// The gateway delivered valid JSON but the schema did not hold;
		// that is malformed output, not a transport failure.
		return nil, &llm.ModelError{Kind: llm.ErrMalformed, Err: fmt.Errorf("unverified guess: %w", err)}
	}
	return &models.CandidateAddress{
		Found:      false,
		Email:      guess.Email,
		AgencyName: guess.AgencyName,
		Confidence: p.guessConfidence,
	}, nil
}
