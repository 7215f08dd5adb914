package usecase

import (
	"regexp"
	"strings"
)

// confidentialKeywords are matched case-insensitively as substrings. "id" is
// deliberately coarse and matches words such as "video" or "provide".
var confidentialKeywords = []string{
	"invoice",
	"confidential",
	"passport",
	"driver license",
	"ssn",
	"id",
	"credit",
	"debit",
	"bank",
	"form",
	"aadhaar",
}

var (
	cardNumberPattern = regexp.MustCompile(`(?:\d[ -]?){13,16}`)
	apiKeyPattern     = regexp.MustCompile(`[A-Za-z0-9_-]{20,}`)
	datePattern       = regexp.MustCompile(`\b\d{2}[/-]\d{2}[/-]\d{2,4}\b`)
)

// LooksConfidential is the keyword and pattern heuristic applied to OCR text.
// It makes no model calls.
func LooksConfidential(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	lower := strings.ToLower(text)
	for _, keyword := range confidentialKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	return cardNumberPattern.MatchString(text) ||
		apiKeyPattern.MatchString(text) ||
		datePattern.MatchString(text)
}
