package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeLabel lowercases a display label and drops all whitespace, so
// "Chipinge " and "chipinge" compare equal.
func NormalizeLabel(label string) string {
	label = strings.ToLower(label)
	return whitespaceRegex.ReplaceAllString(label, "")
}

// LabelsEqual compares two display labels after NormalizeLabel.
func LabelsEqual(a, b string) bool {
	return NormalizeLabel(a) == NormalizeLabel(b)
}
