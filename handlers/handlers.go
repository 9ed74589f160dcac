package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"issue-routing-pipeline/llm"
	"issue-routing-pipeline/models"
)

// Resolver resolves an issue report to a routed draft.
type Resolver interface {
	Resolve(ctx context.Context, report models.IssueReport) (*models.RoutingResult, error)
}

// Reviser applies a free-text revision to an existing draft.
type Reviser interface {
	Revise(ctx context.Context, req models.RevisionRequest) (*models.Draft, error)
}

// Publisher is the outbound seam for finished results; may be absent.
type Publisher interface {
	Publish(message interface{}) error
}

// Handlers represents the HTTP handlers.
type Handlers struct {
	resolver  Resolver
	reviser   Reviser
	publisher Publisher

	mu        sync.Mutex
	byLevel   map[models.FallbackLevel]int
	revisions int
}

// NewHandlers creates new HTTP handlers. publisher may be nil.
func NewHandlers(resolver Resolver, reviser Reviser, publisher Publisher) *Handlers {
	return &Handlers{
		resolver:  resolver,
		reviser:   reviser,
		publisher: publisher,
		byLevel:   make(map[models.FallbackLevel]int),
	}
}

// HealthCheck handles health check requests.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "issue-routing-pipeline",
	})
}

// Resolve routes a described issue to a destination address and draft.
func (h *Handlers) Resolve(c *gin.Context) {
	var report models.IssueReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(report.Description) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	result, err := h.resolver.Resolve(c.Request.Context(), report)
	if err != nil {
		h.writeModelError(c, err)
		return
	}

	h.mu.Lock()
	h.byLevel[result.FallbackLevel]++
	h.mu.Unlock()

	if h.publisher != nil {
		if err := h.publisher.Publish(result); err != nil {
			log.Warnf("failed to publish routing result: %v", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

// Revise applies a natural-language change request to an existing draft.
func (h *Handlers) Revise(c *gin.Context) {
	var req models.RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Suggestion) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "suggestion is required"})
		return
	}

	draft, err := h.reviser.Revise(c.Request.Context(), req)
	if err != nil {
		h.writeModelError(c, err)
		return
	}

	h.mu.Lock()
	h.revisions++
	h.mu.Unlock()

	c.JSON(http.StatusOK, draft)
}

// GetStats returns in-process routing counters.
func (h *Handlers) GetStats(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byLevel := make(map[string]int, len(h.byLevel))
	total := 0
	for level, n := range h.byLevel {
		byLevel[string(level)] = n
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"total_resolved":    total,
		"by_fallback_level": byLevel,
		"total_revisions":   h.revisions,
		"service":           "issue-routing-pipeline",
	})
}

// writeModelError maps the gateway error taxonomy to HTTP statuses: blocked
// prompts are the caller's problem, everything else is an upstream failure.
func (h *Handlers) writeModelError(c *gin.Context, err error) {
	kind := llm.KindOf(err)
	log.Errorf("model gateway error (%s): %v", kind, err)

	switch kind {
	case llm.ErrBlocked:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "request was refused by the model", "kind": string(kind)})
	case llm.ErrMalformed:
		c.JSON(http.StatusBadGateway, gin.H{"error": "model returned unusable output", "kind": string(kind)})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model backend unavailable", "kind": string(kind)})
	}
}
