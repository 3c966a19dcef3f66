package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"placeprep/pkg/domain"
)

// Segmenter splits normalized text into numbered question records. It is a
// best-effort heuristic parser; keeping it behind an interface lets callers
// swap in a stricter grammar later.
type Segmenter interface {
	Segment(text string) []domain.QuestionRecord
}

// Minimum cleaned question length. Shorter candidates are discarded
// silently.
const minQuestionRunes = 15

var (
	// Start of the tabular question list on the assignment sheets.
	tableAnchor = regexp.MustCompile(`(?i)\bSr\.\s*No\.|\bQuestion\b`)

	// A question starts at "<integer><optional dot><capital letter>". The
	// body runs until the next such start (or end of text), since Go's
	// regexp has no lookahead.
	questionStart = regexp.MustCompile(`\b(\d+)\s*(?:\.\s*)?([A-Z])`)

	trailingBoilerplate = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Assignment for.*$`),
		regexp.MustCompile(`(?i)Categorization Rule.*$`),
		regexp.MustCompile(`(?i)Faculty.*$`),
		regexp.MustCompile(`(?i)Subject.*$`),
		regexp.MustCompile(`(?i)Semester.*$`),
		regexp.MustCompile(`(?i)P\s*-\s*Premium.*$`),
		regexp.MustCompile(`(?i)A\s*-\s*Average.*$`),
		regexp.MustCompile(`(?i)C\s*-\s*Challenge.*$`),
		regexp.MustCompile(`(?i)Sr\. No\.`),
		regexp.MustCompile(`(?i)\bTaxonomy\b`),
	}
)

// Bloom's taxonomy verbs the sheets scatter into the category column. They
// are stripped only when they show up as a stray non-leading word, never
// when they open the question itself.
var bloomVerbs = map[string]struct{}{
	"APPLY": {}, "ANALYZE": {}, "EVALUATE": {}, "REMEMBER": {},
	"UNDERSTAND": {}, "CREATE": {}, "EXPLAIN": {}, "DESCRIBE": {},
	"DISCUSS": {}, "COMPARE": {}, "DEFINE": {}, "ILLUSTRATE": {},
	"SUMMARIZE": {}, "INTERPRET": {}, "JUSTIFY": {}, "LIST": {},
	"STATE": {}, "DISTINGUISH": {}, "IDENTIFY": {}, "CLASSIFY": {},
	"DEMONSTRATE": {}, "CONSTRUCT": {}, "DESIGN": {}, "EXAMINE": {},
}

// PatternSegmenter implements Segmenter with a position-anchored regex
// scan. Pure function of its input; malformed or non-monotonic numbering
// is emitted as found, not corrected.
type PatternSegmenter struct {
	Kind domain.SourceKind
}

// Segment extracts ordered question records from normalized text.
func (s PatternSegmenter) Segment(text string) []domain.QuestionRecord {
	if loc := tableAnchor.FindStringIndex(text); loc != nil {
		text = text[loc[0]:]
	}
	kind := s.Kind
	if kind == "" {
		kind = domain.SourceText
	}
	starts := questionStart.FindAllStringSubmatchIndex(text, -1)
	records := make([]domain.QuestionRecord, 0, len(starts))
	for i, m := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		number := text[m[2]:m[3]]
		body := cleanQuestion(text[m[4]:end])
		if utf8.RuneCountInString(body) <= minQuestionRunes {
			continue
		}
		records = append(records, domain.QuestionRecord{
			Number: number,
			Text:   body,
			Kind:   kind,
		})
	}
	return records
}

var wordPunct = regexp.MustCompile(`[.,;:!?]`)

func cleanQuestion(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	for i, word := range words {
		if i > 0 {
			bare := strings.ToUpper(wordPunct.ReplaceAllString(word, ""))
			if _, ok := bloomVerbs[bare]; ok {
				continue
			}
		}
		kept = append(kept, word)
	}
	text = strings.Join(kept, " ")
	for _, p := range trailingBoilerplate {
		text = p.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}
