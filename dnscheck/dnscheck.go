// Package dnscheck answers one advisory question: can this mail domain
// plausibly receive mail? It never blocks resolution and never returns an
// error; lookups that fail degrade to "unknown".
package dnscheck

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/apex/log"

	"issue-routing-pipeline/metrics"
	"issue-routing-pipeline/models"
)

// lookuper is the subset of net.Resolver the verifier uses.
type lookuper interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Verifier checks DNS records for a candidate mail domain.
type Verifier struct {
	resolver lookuper
	timeout  time.Duration
}

func NewVerifier(timeout time.Duration) *Verifier {
	return &Verifier{
		resolver: net.DefaultResolver,
		timeout:  timeout,
	}
}

// newVerifierWithResolver is used by tests.
func newVerifierWithResolver(r lookuper, timeout time.Duration) *Verifier {
	return &Verifier{resolver: r, timeout: timeout}
}

// CheckDeliverable looks up MX records for domain, falling back to an A/AAAA
// lookup only to decide whether the domain exists at all. A domain with a
// web presence but no mail records is not treated as deliverable.
func (v *Verifier) CheckDeliverable(ctx context.Context, domain string) models.DNSCheck {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	mx, err := v.resolver.LookupMX(ctx, domain)
	if err == nil && len(mx) > 0 {
		metrics.DNSChecksTotal.WithLabelValues("deliverable").Inc()
		return models.DNSCheck{Exists: boolPtr(true), HasMailRecords: boolPtr(true)}
	}
	if err != nil && !isNotFound(err) {
		// Timeout or resolver failure: unknown, not a rejection.
		log.Warnf("MX lookup for %s failed: %v", domain, err)
		metrics.DNSChecksTotal.WithLabelValues("unknown").Inc()
		return models.DNSCheck{}
	}

	// No MX records. Does the domain exist at all?
	hosts, err := v.resolver.LookupHost(ctx, domain)
	switch {
	case err == nil && len(hosts) > 0:
		metrics.DNSChecksTotal.WithLabelValues("no_mail_records").Inc()
		return models.DNSCheck{Exists: boolPtr(true), HasMailRecords: boolPtr(false)}
	case err != nil && isNotFound(err):
		metrics.DNSChecksTotal.WithLabelValues("no_domain").Inc()
		return models.DNSCheck{Exists: boolPtr(false), HasMailRecords: boolPtr(false)}
	default:
		if err != nil {
			log.Warnf("host lookup for %s failed: %v", domain, err)
		}
		metrics.DNSChecksTotal.WithLabelValues("unknown").Inc()
		return models.DNSCheck{}
	}
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound
	}
	return false
}

func boolPtr(b bool) *bool {
	return &b
}
