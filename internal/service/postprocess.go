package service

import (
	"log"
	"regexp"
	"strings"
)

// metaCommentary matches known filler phrases that models prepend to
// responses; they carry no information and are stripped.
var metaCommentary = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^as an ai(?: language)? model,?\s*`),
	regexp.MustCompile(`(?i)^based on the (?:provided|available) context,?\s*`),
	regexp.MustCompile(`(?i)^according to my memory,?\s*`),
	regexp.MustCompile(`(?i)\bi (?:don't|do not) have access to real-time information\.?\s*`),
	regexp.MustCompile(`(?i)^(?:sure|certainly|of course)[,!]\s+`),
}

var terminalPunctuation = ".!?…\"')]}`"

// postProcess strips meta-commentary and flags apparent truncation. A
// truncated response is logged but returned unaltered.
func postProcess(response string) (string, bool) {
	cleaned := strings.TrimSpace(response)
	for _, re := range metaCommentary {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)

	truncated := looksTruncated(cleaned)
	if truncated {
		log.Printf("context pipeline: response appears truncated (%d chars, no terminal punctuation)", len(cleaned))
	}
	return cleaned, truncated
}

func looksTruncated(response string) bool {
	if len(response) <= 50 {
		return false
	}
	runes := []rune(response)
	last := runes[len(runes)-1]
	return !strings.ContainsRune(terminalPunctuation, last)
}

// estimateConfidence starts from a 0.5 base and adds boosts for candidate
// salience, response length, code fences, and digits, capped at 1.0.
func estimateConfidence(response string, avgSalience float64) float64 {
	confidence := 0.5
	confidence += 0.2 * avgSalience

	lengthBoost := float64(len(response)) / 2000
	if lengthBoost > 0.15 {
		lengthBoost = 0.15
	}
	confidence += lengthBoost

	if strings.Contains(response, "```") {
		confidence += 0.1
	}
	if strings.ContainsAny(response, "0123456789") {
		confidence += 0.05
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
