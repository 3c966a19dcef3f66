package extract

import (
	"reflect"
	"testing"
	"unicode/utf8"

	"placeprep/pkg/domain"
)

func TestSegmentNumberedList(t *testing.T) {
	text := "Sr. No. Question 1. Explain OSI model layers. 2. Define TCP vs UDP protocols."
	records := PatternSegmenter{}.Segment(text)
	if len(records) != 2 {
		t.Fatalf("Segment() returned %d records, want 2: %+v", len(records), records)
	}
	if records[0].Number != "1" || records[1].Number != "2" {
		t.Fatalf("numbers = %q, %q, want 1, 2", records[0].Number, records[1].Number)
	}
	if want := "Explain OSI model layers."; records[0].Text != want {
		t.Fatalf("first text = %q, want %q", records[0].Text, want)
	}
	if want := "Define TCP vs UDP protocols."; records[1].Text != want {
		t.Fatalf("second text = %q, want %q", records[1].Text, want)
	}
	for _, r := range records {
		if utf8.RuneCountInString(r.Text) <= minQuestionRunes {
			t.Fatalf("record %q violates minimum length", r.Text)
		}
	}
}

func TestSegmentMinimumLengthInvariant(t *testing.T) {
	text := "1. Too short. 2. Explain the difference between processes and threads in operating systems."
	records := PatternSegmenter{}.Segment(text)
	for _, r := range records {
		if utf8.RuneCountInString(r.Text) <= minQuestionRunes {
			t.Fatalf("record %q violates minimum length", r.Text)
		}
	}
	if len(records) != 1 {
		t.Fatalf("short candidate not discarded: %+v", records)
	}
}

func TestSegmentDeterministic(t *testing.T) {
	text := Normalize("Sr. No. Question 1. Explain virtual memory and demand paging. " +
		"2. Describe the banker's algorithm for deadlock avoidance. " +
		"3. Compare paging and segmentation approaches.")
	first := PatternSegmenter{}.Segment(text)
	second := PatternSegmenter{}.Segment(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Segment not deterministic:\nfirst  = %+v\nsecond = %+v", first, second)
	}
	if len(first) == 0 {
		t.Fatalf("expected records from well-formed input")
	}
}

func TestSegmentStripsStrayBloomVerbs(t *testing.T) {
	text := "1. Explain the OSI model with a neat diagram Apply 2. Describe routing protocols in detail Analyze"
	records := PatternSegmenter{}.Segment(text)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	for _, r := range records {
		for _, stray := range []string{"Apply", "Analyze"} {
			if containsWord(r.Text, stray) {
				t.Fatalf("stray taxonomy verb %q kept in %q", stray, r.Text)
			}
		}
	}
	// The leading verb of a question is part of the question itself.
	if records[0].Text[:7] != "Explain" {
		t.Fatalf("leading verb stripped: %q", records[0].Text)
	}
}

func TestSegmentNoAnchorFallsBackToFullScan(t *testing.T) {
	text := "Some preamble without anchors 1. Explain two phase commit protocols in distributed systems."
	records := PatternSegmenter{}.Segment(text)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(records), records)
	}
}

func TestSegmentSourceKind(t *testing.T) {
	text := "1. Explain the characteristics of cloud computing platforms."
	records := PatternSegmenter{Kind: domain.SourcePDF}.Segment(text)
	if len(records) != 1 || records[0].Kind != domain.SourcePDF {
		t.Fatalf("source kind not propagated: %+v", records)
	}
}

func containsWord(s, word string) bool {
	for _, w := range splitWords(s) {
		if w == word {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}
