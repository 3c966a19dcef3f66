package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"placeprep/internal/util"
	"placeprep/pkg/ai"
	"placeprep/pkg/domain"
	"placeprep/pkg/extract"
	"placeprep/pkg/httpretry"
)

// SentinelAnswer is returned when the model produces no usable candidate.
const SentinelAnswer = "No meaningful response generated."

// DetailedSuggestion builds the study-assistant instruction around the
// referenced material and relays the conversation to the model. Extraction
// problems never fail the request; the instruction degrades to referencing
// the material by URL only.
func (a *App) DetailedSuggestion(ctx context.Context, turns []domain.ConversationTurn, materialURL, subject string) (string, error) {
	materialURL = strings.TrimSpace(materialURL)
	if len(turns) == 0 || materialURL == "" {
		return "", fmt.Errorf("%w: both 'prompt' and 'materialUrl' are required", ErrValidation)
	}

	materialContext := a.fetchMaterialContext(ctx, materialURL)
	instruction := buildInstruction(materialURL, subject, materialContext)

	conversation := make([]domain.ConversationTurn, 0, len(turns)+1)
	conversation = append(conversation, domain.ConversationTurn{Role: "user", Content: instruction})
	conversation = append(conversation, turns...)

	answer, err := a.generator.GenerateChat(ctx, conversation)
	if err != nil {
		if errors.Is(err, ai.ErrEmptyCandidate) {
			return SentinelAnswer, nil
		}
		return "", fmt.Errorf("generate suggestion: %w", err)
	}
	return answer, nil
}

// fetchMaterialContext downloads and extracts the material text. Any
// failure returns "" and the caller degrades to URL-only context.
func (a *App) fetchMaterialContext(ctx context.Context, materialURL string) string {
	logger := util.LoggerFromContext(ctx)

	var kind string
	lower := strings.ToLower(materialURL)
	// Presigned URLs carry query parameters after the extension.
	if idx := strings.IndexByte(lower, '?'); idx >= 0 {
		lower = lower[:idx]
	}
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		kind = "pdf"
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		kind = "html"
	case strings.HasSuffix(lower, ".txt"):
		kind = "txt"
	default:
		return ""
	}

	resp, err := httpretry.Do(ctx, a.httpClient, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, materialURL, nil)
	}, a.retryPolicy)
	if err != nil {
		logger.Warn("material fetch failed, falling back to url-only context", "url", materialURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	body, err := readAllAt(resp.Body, extract.MaxPDFBytes)
	if err != nil {
		logger.Warn("material read failed", "url", materialURL, "error", err)
		return ""
	}

	var text string
	switch kind {
	case "pdf":
		parseCtx, cancel := context.WithTimeout(ctx, pdfParseTimeout)
		text, err = extract.ExtractPDF(parseCtx, bytes.NewReader(body), int64(len(body)), extract.ContextOptions())
		cancel()
	case "html":
		text, err = extract.ExtractHTML(bytes.NewReader(body))
		text = extract.TruncateRunes(text, extract.ContextCharBudget)
	case "txt":
		text = extract.TruncateRunes(string(body), extract.ContextCharBudget)
	}
	if err != nil {
		logger.Warn("material extraction failed", "url", materialURL, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func buildInstruction(materialURL, subject, materialContext string) string {
	var b strings.Builder
	b.WriteString("The user uploaded a study material at: ")
	b.WriteString(materialURL)
	b.WriteString("\nSubject: ")
	b.WriteString(subject)
	b.WriteString("\n")
	if materialContext != "" {
		b.WriteString("\nExtracted material content:\n")
		b.WriteString(materialContext)
		b.WriteString("\n")
	}
	b.WriteString(`
You are an AI study assistant. Follow these rules:
- Understand the user's prompt and respond accordingly.
- If the prompt is a question, answer based on the material content.
- If the prompt is to summarize, summarize the material content concisely.
- If the prompt is to generate MCQs, provide exactly 10 MCQs with 4 options each.
- For other instructions, follow them literally and contextually.
- Use a structured format only if the prompt requests it.
- Do NOT repeat generic headings unless requested.
- Keep the response clear, concise, and helpful.
- If the material content is not directly accessible, provide an accurate and relevant answer based on the subject.`)
	return b.String()
}
