package answer

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

const referencesMarker = "science papers:"

var (
	capitalizedWord = regexp.MustCompile(`^\s*[A-Z][\p{L}'’.-]*`)
	dateToken       = regexp.MustCompile(`\b(?:19|20)\d{2}\b|\b\d{4}[./-]\d{1,2}(?:[./-]\d{1,2})?\b|\b\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\b`)
	doiLike         = regexp.MustCompile(`(?i)\b10\.\d{4,9}/\S+|\bdoi:`)
	capsHeading     = regexp.MustCompile(`^\s*[A-Z]{2,}[A-Z&'.,:-]*(?:\s+[A-Z][A-Z&'.,:-]*)*\s*\d`)
)

// Clean drops the trailing references section of an answer. The section
// starts at the marker line and runs until a blank line is followed by text
// that does not look like a citation.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	marker := cases.Fold().String(referencesMarker)

	kept := make([]string, 0, len(lines))
	skipping := false

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if !skipping {
			if strings.Contains(cases.Fold().String(line), marker) {
				skipping = true
				continue
			}
			kept = append(kept, line)
			continue
		}

		if !isBlank(line) {
			continue
		}

		next := i + 1
		for next < len(lines) && isBlank(lines[next]) {
			next++
		}
		if next < len(lines) && !isCitation(lines[next]) {
			skipping = false
			i = next - 1
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isCitation(line string) bool {
	if loc := capitalizedWord.FindStringIndex(line); loc != nil && dateToken.MatchString(line[loc[1]:]) {
		return true
	}
	if doiLike.MatchString(line) {
		return true
	}
	return capsHeading.MatchString(line)
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
