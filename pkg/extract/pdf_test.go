package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExtractPDFRejectsOversizedInput(t *testing.T) {
	r := bytes.NewReader([]byte("%PDF-1.4"))
	_, err := ExtractPDF(context.Background(), r, MaxPDFBytes+1, PreviewOptions())
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("ExtractPDF(oversized) err = %v, want ErrFileTooLarge", err)
	}
}

func TestExtractPDFInvalidData(t *testing.T) {
	data := []byte("definitely not a pdf")
	_, err := ExtractPDF(context.Background(), bytes.NewReader(data), int64(len(data)), PreviewOptions())
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("ExtractPDF(garbage) err = %v, want ErrInvalidPDF", err)
	}
}

// textlessPDF builds a valid single-page document with no content stream,
// the shape a scanned page comes out as after upload.
func textlessPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractPDFTextlessDocument(t *testing.T) {
	data := textlessPDF()
	_, err := ExtractPDF(context.Background(), bytes.NewReader(data), int64(len(data)), PreviewOptions())
	if !errors.Is(err, ErrInsufficientText) {
		t.Fatalf("ExtractPDF(textless) err = %v, want ErrInsufficientText", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	s := strings.Repeat("é", 10)
	if got := TruncateRunes(s, 4); got != strings.Repeat("é", 4) {
		t.Fatalf("TruncateRunes = %q", got)
	}
	if got := TruncateRunes(s, 0); got != s {
		t.Fatalf("TruncateRunes with no cap modified input")
	}
	if got := TruncateRunes(s, 100); got != s {
		t.Fatalf("TruncateRunes below cap modified input")
	}
}

func TestExtractHTMLDropsScriptAndStyle(t *testing.T) {
	doc := `<html><head><style>body{color:red}</style></head>` +
		`<body><p>First paragraph.</p><script>alert(1)</script><div>Second block.</div></body></html>`
	got, err := ExtractHTML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}
	if !strings.Contains(got, "First paragraph.") || !strings.Contains(got, "Second block.") {
		t.Fatalf("visible text lost: %q", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Fatalf("script/style text kept: %q", got)
	}
}
