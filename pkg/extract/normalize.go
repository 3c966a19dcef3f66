package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Minimum cleaned length for Normalize to consider the input worth keeping.
// Shorter results mean "nothing to extract", not an error.
const minNormalizedRunes = 30

// Boilerplate the institutional assignment sheets carry around the actual
// question table. The list is tuned to the layouts we have seen; unknown
// layouts simply keep their headers and rely on the segmenter's anchor scan.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bFACULTY OF ENGINEERING AND TECHNOLOGY\b`),
	regexp.MustCompile(`(?i)\bDepartment of Computer Engineering\b`),
	regexp.MustCompile(`(?i)\bIssue Date\b`),
	regexp.MustCompile(`(?i)\bDue Date\b`),
	regexp.MustCompile(`(?i)\bNote:`),
	regexp.MustCompile(`(?i)\bAssignment - \d+\b`),
	regexp.MustCompile(`(?i)\bWrite Assignment in the file pages\b`),
	regexp.MustCompile(`(?i)\bSubmit assignment in the file\b`),
	regexp.MustCompile(`(?i)\bAssignment will be checked in the respective lab sessions only\b`),
	regexp.MustCompile(`(?i)\bMandatory to submit your checked assignment in the Google Classroom\b`),
	regexp.MustCompile(`(?i)\bSubject Faculty\b`),
	regexp.MustCompile(`(?i)\bHead of Department\b`),
	regexp.MustCompile(`(?i)\bDept\. of Computer Engineering\b`),
	regexp.MustCompile(`\d{2}/\d{2}/\d{4}`),
	regexp.MustCompile(`(?i)\bCO\d+\b`),
}

var (
	dashRunPattern = regexp.MustCompile(`-{2,}`)
	bulletPattern  = regexp.MustCompile(`[_•●▪◦]`)
)

// Normalize strips known boilerplate and collapses all whitespace into
// single spaces. It is idempotent: normalizing already-normalized text
// returns the same text. Inputs whose cleaned form is shorter than the
// minimum threshold yield "".
func Normalize(raw string) string {
	text := strings.ReplaceAll(raw, "�", "")
	text = strings.ToValidUTF8(text, "")
	// Removing one phrase can butt two words together and expose another
	// match, so substitute until the text stops changing.
	for {
		next := substituteOnce(text)
		if next == text {
			break
		}
		text = next
	}
	if utf8.RuneCountInString(text) < minNormalizedRunes {
		return ""
	}
	return text
}

func substituteOnce(text string) string {
	for _, p := range boilerplatePatterns {
		text = p.ReplaceAllString(text, " ")
	}
	text = dashRunPattern.ReplaceAllString(text, " ")
	text = bulletPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
