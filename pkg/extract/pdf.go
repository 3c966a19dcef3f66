package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxPDFBytes is rejected before any parse attempt.
	MaxPDFBytes = 10 << 20

	// PreviewPageLimit bounds the interactive extraction variant.
	PreviewPageLimit = 5

	// ContextCharBudget truncates full-document extraction used as LLM
	// context.
	ContextCharBudget = 8000

	// Anything below this is almost certainly a scanned/image PDF.
	minExtractedRunes = 100
)

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrInvalidPDF       = errors.New("not a readable pdf")
	ErrInsufficientText = errors.New("insufficient text extracted")
)

// PDFOptions bounds an extraction run. Zero values mean no limit.
type PDFOptions struct {
	MaxPages   int
	CharBudget int
}

// PreviewOptions is the interactive variant: first pages only, no budget.
func PreviewOptions() PDFOptions {
	return PDFOptions{MaxPages: PreviewPageLimit}
}

// ContextOptions is the LLM-context variant: whole document, capped size.
func ContextOptions() PDFOptions {
	return PDFOptions{CharBudget: ContextCharBudget}
}

// ExtractPDF returns per-page text concatenated in page order. Pages that
// fail to decode are skipped. The context is checked between pages so a
// timeout or cancellation stops the loop promptly.
func ExtractPDF(ctx context.Context, r io.ReaderAt, size int64, opts PDFOptions) (string, error) {
	if size > MaxPDFBytes {
		return "", ErrFileTooLarge
	}
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	total := reader.NumPage()
	if opts.MaxPages > 0 && total > opts.MaxPages {
		total = opts.MaxPages
	}
	var b strings.Builder
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.Join(strings.Fields(strings.ToValidUTF8(text, "")), " ")
		if utf8.RuneCountInString(text) > 10 {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	}
	out := strings.TrimSpace(b.String())
	if utf8.RuneCountInString(out) < minExtractedRunes {
		return "", ErrInsufficientText
	}
	return TruncateRunes(out, opts.CharBudget), nil
}

// TruncateRunes caps s at limit runes; limit <= 0 means no cap.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
