package classify

import (
	"regexp"
	"strings"
)

// Type is the detected identifier type of a captured input.
type Type string

const (
	PMID Type = "pmid"
	DOI  Type = "doi"
	URL  Type = "url"
	Text Type = "text"
)

var (
	pmidRegexp = regexp.MustCompile(`^\d{1,8}$`)
	doiRegexp  = regexp.MustCompile(`^(?i)10\.\d{4,9}/\S+$`)
)

// Result is the outcome of classifying a raw capture.
type Result struct {
	DetectedType Type
	Normalized   string
}

// Classify maps raw capture text to a typed, normalized identifier.
// Precedence: PMID > DOI > URL > free text. Deterministic, no I/O.
// The classification is final: a misread identifier stays that type
// until the item is deleted and re-captured.
func Classify(raw string) Result {
	trimmed := strings.TrimSpace(raw)

	if pmidRegexp.MatchString(trimmed) {
		return Result{DetectedType: PMID, Normalized: trimmed}
	}
	if doiRegexp.MatchString(trimmed) {
		return Result{DetectedType: DOI, Normalized: strings.ToLower(trimmed)}
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return Result{DetectedType: URL, Normalized: trimmed}
	}
	return Result{DetectedType: Text, Normalized: trimmed}
}
