package scrape

import (
	"regexp"
	"strconv"
	"strings"
)

// compactCountPattern matches numbers as YouTube renders them: "1,234",
// "1.2K", "3M". The first match in a string wins.
var compactCountPattern = regexp.MustCompile(`\d+[,.]?\d*[KkMm]?`)

// ParseCompactCount extracts the first number from text like "1.2K likes" or
// "1,234 videos" and expands the K/M suffix. It reports false when the text
// contains no parseable number.
func ParseCompactCount(text string) (int, bool) {
	match := compactCountPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	match = strings.ToLower(strings.ReplaceAll(match, ",", ""))

	multiplier := 1
	switch {
	case strings.HasSuffix(match, "k"):
		multiplier = 1_000
		match = strings.TrimSuffix(match, "k")
	case strings.HasSuffix(match, "m"):
		multiplier = 1_000_000
		match = strings.TrimSuffix(match, "m")
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return int(value * float64(multiplier)), true
}

// containsFold reports whether needle occurs in haystack, case-insensitively.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
