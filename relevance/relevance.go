// Package relevance rejects candidate department/email pairs that are
// topically wrong for a reported issue. Pure functions, no I/O.
package relevance

import "strings"

// disqualifiers are keyword groups that make an address inappropriate for
// issue reporting regardless of topic.
var disqualifiers = map[string][]string{
	"hr":       {"human resources", "hr department", "eeo", "equal employment", "employee relations"},
	"media":    {"press office", "media relations", "communications office", "public information officer", "press@", "media@", "communications@"},
	"tourism":  {"tourism", "visitor center", "visitors bureau", "visit "},
	"permits":  {"permit center", "permitting", "licensing", "business license", "permits@", "licensing@"},
}

// topicExclusions maps a keyword found in the agency name or email to the
// set of topics that keyword must never serve. Entries are independent
// domain facts; extend the table rather than adding conditionals.
var topicExclusions = map[string][]string{
	"graffiti":       {"pothole", "streetlight", "sidewalk", "trash", "noise", "flooding", "sewer", "water"},
	"environment":    {"pothole", "streetlight", "sidewalk", "graffiti"},
	"sustainability": {"pothole", "streetlight", "sidewalk", "graffiti"},
	"animal":         {"pothole", "streetlight", "sidewalk", "graffiti", "flooding"},
	"library":        {"pothole", "streetlight", "sidewalk", "graffiti", "trash", "flooding", "sewer"},
	"parking":        {"graffiti", "trash", "flooding", "sewer", "tree"},
}

// IsRelevant reports whether a candidate agency/email pair is a plausible
// recipient for the given topic.
func IsRelevant(topic, agencyName, email string) bool {
	combined := strings.ToLower(strings.TrimSpace(agencyName + " " + email))
	if strings.TrimSpace(combined) == "" {
		return false
	}
	topic = strings.ToLower(strings.TrimSpace(topic))

	for _, group := range disqualifiers {
		for _, kw := range group {
			if strings.Contains(combined, kw) {
				return false
			}
		}
	}

	for keyword, excludedTopics := range topicExclusions {
		if !strings.Contains(combined, keyword) {
			continue
		}
		for _, excluded := range excludedTopics {
			if strings.Contains(topic, excluded) {
				return false
			}
		}
	}

	return true
}
