package extraction

import "regexp"

// scrubPatterns removes common secret shapes from transcripts before they
// are sent to a hosted API. Transcripts are user-dictated free text and
// occasionally contain pasted credentials or phone-tree PINs.
var scrubPatterns = []struct {
	regex       *regexp.Regexp
	replacement string
}{
	{
		regexp.MustCompile(`sk-[a-zA-Z0-9-]{20,}`),
		"[REDACTED:API_KEY]",
	},
	{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|auth[_-]?token)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`),
		"$1=[REDACTED:TOKEN]",
	},
	{
		regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`),
		"[REDACTED:BEARER_TOKEN]",
	},
	{
		regexp.MustCompile(`(?i)(password|passwd|pwd|pin)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`),
		"$1=[REDACTED:PASSWORD]",
	},
}

// scrubSecrets applies the scrub patterns in order.
func scrubSecrets(content string) string {
	result := content
	for _, p := range scrubPatterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}
