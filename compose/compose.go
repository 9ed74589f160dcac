// Package compose renders the outgoing email draft once an address is
// settled, and applies free-text revision requests to an existing draft.
package compose

import (
	"context"
	"fmt"

	"github.com/apex/log"

	"issue-routing-pipeline/gateway"
	"issue-routing-pipeline/llm"
	"issue-routing-pipeline/metrics"
	"issue-routing-pipeline/models"
	"issue-routing-pipeline/parser"
)

const draftPromptFmt = `You are helping a resident of %s report a civic issue to their local government.

Write a concise, polite email to the "%s" about the following issue:

%s
%s
Respond with a single JSON object in exactly this shape:
{"subject": "<email subject line>", "body": "<email body, plain text, 2-4 short paragraphs, signed 'A concerned resident'>"}`

const revisePromptFmt = `You are revising a draft email that reports a civic issue to a local government department.

Current draft:
To: %s
Subject: %s
Body:
%s

The sender asks for this change: %q

Apply the change. If it requires a different department or jurisdiction, use web search to find the correct, real contact email address for it; keep the current address otherwise. Respond with a single JSON object in exactly this shape:
{"to": "<recipient email>", "subject": "<revised subject>", "body": "<revised body>"}`

// Composer is a thin client over the model gateway for draft text.
type Composer struct {
	gw *gateway.Gateway
}

func NewComposer(gw *gateway.Gateway) *Composer {
	return &Composer{gw: gw}
}

// Draft produces subject/body text for the report. Composition is
// independent of how the address was resolved; no search grounding needed.
func (c *Composer) Draft(ctx context.Context, description string, jurisdiction models.Jurisdiction, agencyName string) (*parser.DraftText, error) {
	return c.DraftWithPhoto(ctx, description, jurisdiction, agencyName, false)
}

// DraftWithPhoto notes an attached photo in the body without ever touching
// image bytes.
func (c *Composer) DraftWithPhoto(ctx context.Context, description string, jurisdiction models.Jurisdiction, agencyName string, hasPhoto bool) (*parser.DraftText, error) {
	photoNote := ""
	if hasPhoto {
		photoNote = "The resident has attached a photo of the issue; mention it in the body.\n"
	}
	return c.draft(ctx, description, jurisdiction, agencyName, photoNote)
}

func (c *Composer) draft(ctx context.Context, description string, jurisdiction models.Jurisdiction, agencyName, photoNote string) (*parser.DraftText, error) {
	prompt := fmt.Sprintf(draftPromptFmt, jurisdiction, agencyName, description, photoNote)
	raw, err := c.gw.Complete(ctx, prompt, false)
	if err != nil {
		return nil, fmt.Errorf("draft composition: %w", err)
	}
	d, err := parser.ParseDraftText(raw)
	if err != nil {
		return nil, &llm.ModelError{Kind: llm.ErrMalformed, Err: fmt.Errorf("draft composition: %w", err)}
	}
	return d, nil
}

// Revise applies a free-text suggestion to an existing draft. Search
// grounding is always enabled so a suggested department or location change
// can re-resolve to a verified address instead of a guess. The revised
// address is trusted as-is; it does not re-run the tier acceptance gates.
func (c *Composer) Revise(ctx context.Context, req models.RevisionRequest) (*models.Draft, error) {
	prompt := fmt.Sprintf(revisePromptFmt, req.CurrentTo, req.CurrentSubject, req.CurrentBody, req.Suggestion)
	raw, err := c.gw.Complete(ctx, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("draft revision: %w", err)
	}
	rev, err := parser.ParseRevision(raw)
	if err != nil {
		return nil, &llm.ModelError{Kind: llm.ErrMalformed, Err: fmt.Errorf("draft revision: %w", err)}
	}

	metrics.RevisionsTotal.Inc()
	if rev.To != req.CurrentTo {
		log.Infof("revision changed recipient from %s to %s", req.CurrentTo, rev.To)
	}
	return &models.Draft{To: rev.To, Subject: rev.Subject, Body: rev.Body}, nil
}
