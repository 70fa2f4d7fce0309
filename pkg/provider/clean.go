package provider

import (
	"regexp"
	"strings"
)

// Web-grounded providers decorate answers with citation markers and
// source lines that read as noise when relayed into a chat. The patterns
// mirror what those surfaces actually emit.
var (
	citationMarkers   = regexp.MustCompile(`\[\d+\]`)
	sourceLines       = regexp.MustCompile(`(?m)Source: .*$`)
	superscriptDigits = regexp.MustCompile(`[¹²³⁴⁵⁶⁷⁸⁹⁰]`)
	whitespaceRuns    = regexp.MustCompile(`\s+`)
)

// CleanResponse strips citation markers, source attribution lines and
// superscript footnote digits from an extracted response, then collapses
// all whitespace runs to single spaces.
func CleanResponse(text string) string {
	cleaned := citationMarkers.ReplaceAllString(text, "")
	cleaned = sourceLines.ReplaceAllString(cleaned, "")
	cleaned = superscriptDigits.ReplaceAllString(cleaned, "")
	cleaned = whitespaceRuns.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
