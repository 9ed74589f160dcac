package routing

import (
	"fmt"
	"strings"

	"issue-routing-pipeline/models"
)

const geocodePromptFmt = `Reverse geocode the coordinates latitude=%f, longitude=%f to the city and US state (or country subdivision) that governs that point.

Respond with a single JSON object in exactly this shape:
{"city": "<city name>", "state": "<two-letter state or subdivision code>"}`

const impliedLocationPromptFmt = `A resident reported a civic issue with this description:

%q

Does the description itself name or clearly imply the city where the issue is located? Do not guess from issue type alone.

Respond with a single JSON object in exactly this shape:
{"found": <true|false>, "city": "<city name or empty>", "state": "<state code or empty>"}`

const topicPromptFmt = `Classify this civic issue report into a short topic of one or two lowercase words (examples: "pothole", "graffiti", "streetlight", "illegal dumping", "noise", "flooding", "sidewalk", "abandoned vehicle").

Report: %q

Respond with a single JSON object in exactly this shape:
{"topic": "<short topic>"}`

// candidateSchema is the shared response shape for all three search tiers.
const candidateSchema = `{"found": <true|false>, "email": "<address or empty>", "agency_name": "<department name or empty>", "confidence": <0.0-1.0>, "evidence": {"source_title": "<page title>", "source_url": "<page url>", "quoted_snippet": "<verbatim text from the page that contains the email address>"}}`

const candidateRules = `Rules:
- Use web search. Only report an email address you actually found on an official government page.
- The quoted_snippet MUST be verbatim text from the source page and MUST contain the email address itself.
- If you cannot find a qualifying address, respond with found=false and empty fields.
- Respond with a single JSON object in exactly this shape:
`

const guessPromptFmt = `Without searching, give your single best guess for an email address a resident of %s could use to report a %s issue to the city government. This is a guess of last resort; a plausible generic city address is acceptable.

Respond with a single JSON object in exactly this shape:
{"email": "<best-guess address>", "agency_name": "<department name>"}`

func geocodePrompt(loc models.LatLng) string {
	return fmt.Sprintf(geocodePromptFmt, loc.Latitude, loc.Longitude)
}

func impliedLocationPrompt(description string) string {
	return fmt.Sprintf(impliedLocationPromptFmt, description)
}

func topicPrompt(description string) string {
	return fmt.Sprintf(topicPromptFmt, description)
}

func topicSpecificPrompt(j models.Jurisdiction, topic string) string {
	return fmt.Sprintf(
		"Find the official email address of the department or program in %s that specifically handles %q reports from residents.\n\n%s%s",
		j, topic, candidateRules, candidateSchema)
}

func agencyMainPrompt(j models.Jurisdiction, topic string) string {
	return fmt.Sprintf(
		"Find the official main contact email address of the %s for %s. A %q issue would normally be handled there.\n\n%s%s",
		departmentFor(topic), j, topic, candidateRules, candidateSchema)
}

func jurisdictionGeneralPrompt(j models.Jurisdiction, topic string) string {
	return fmt.Sprintf(
		"Find any official general citizen-services contact email address for the city government of %s: the city manager's office, the city clerk, a 311 inbox, or a general public works line.\n\n%s%s",
		j, candidateRules, candidateSchema)
}

func guessPrompt(j models.Jurisdiction, topic string) string {
	return fmt.Sprintf(guessPromptFmt, j, topic)
}

// departmentHints maps topic keywords to the department that normally owns
// them. First match wins; the entries are independent domain facts.
var departmentHints = []struct {
	keywords   []string
	department string
}{
	{[]string{"pothole", "road", "street", "streetlight", "sidewalk", "traffic", "sign", "pavement"}, "Public Works or Transportation Department"},
	{[]string{"water", "sewer", "flood", "drain", "hydrant"}, "Utilities or Public Works Department"},
	{[]string{"noise", "vehicle", "safety", "speeding", "nuisance"}, "Police non-emergency line or Code Enforcement"},
	{[]string{"property", "building", "blight", "fence", "construction"}, "Code Enforcement or Building Department"},
	{[]string{"park", "tree", "playground", "trail"}, "Parks and Recreation Department"},
	{[]string{"trash", "dumping", "litter", "garbage", "debris"}, "Sanitation or Environmental Services Department"},
}

func departmentFor(topic string) string {
	topic = strings.ToLower(topic)
	for _, hint := range departmentHints {
		for _, kw := range hint.keywords {
			if strings.Contains(topic, kw) {
				return hint.department
			}
		}
	}
	return "department that handles general citizen service requests"
}
