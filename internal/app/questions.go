package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"placeprep/pkg/domain"
	"placeprep/pkg/extract"
)

// minBatchQuestionRunes is the length at least one question in a batch must
// exceed for the batch to be accepted.
const minBatchQuestionRunes = 15

// pdfParseTimeout bounds a single PDF text-extraction pass.
const pdfParseTimeout = 30 * time.Second

// QuestionBatch is a segmented batch submitted for persistence.
type QuestionBatch struct {
	UserID  string
	Subject string
	Records []domain.QuestionRecord
}

// UploadQuestion persists a single manually entered question.
func (a *App) UploadQuestion(userID, question, subject string) (domain.Question, error) {
	userID = strings.TrimSpace(userID)
	question = strings.TrimSpace(question)
	subject = strings.TrimSpace(subject)
	if userID == "" || question == "" || subject == "" {
		return domain.Question{}, fmt.Errorf("%w: userID, question, and subject are required", ErrValidation)
	}
	q := domain.Question{
		ID:        uuid.NewString(),
		UserID:    userID,
		Question:  question,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	}
	if err := a.store.SaveQuestion(q); err != nil {
		return domain.Question{}, fmt.Errorf("save question: %w", err)
	}
	return q, nil
}

// UploadQuestions validates and persists a batch in one write. Validation
// happens entirely before any storage call, so a rejected batch leaves no
// partial rows behind. Resubmitting the same batch stores new rows; there
// is no dedup.
func (a *App) UploadQuestions(batch QuestionBatch) ([]domain.Question, error) {
	batch.UserID = strings.TrimSpace(batch.UserID)
	batch.Subject = strings.TrimSpace(batch.Subject)
	if batch.UserID == "" || batch.Subject == "" {
		return nil, fmt.Errorf("%w: userId and subject are required", ErrValidation)
	}
	if len(batch.Records) == 0 {
		return nil, fmt.Errorf("%w: questions must be a non-empty array", ErrValidation)
	}
	hasSubstantive := false
	for _, rec := range batch.Records {
		if len([]rune(strings.TrimSpace(rec.Text))) > minBatchQuestionRunes {
			hasSubstantive = true
			break
		}
	}
	if !hasSubstantive {
		return nil, fmt.Errorf("%w: at least one question must be longer than %d characters", ErrValidation, minBatchQuestionRunes)
	}

	now := time.Now().UTC()
	questions := make([]domain.Question, 0, len(batch.Records))
	for _, rec := range batch.Records {
		text := strings.TrimSpace(rec.Text)
		if text == "" {
			continue
		}
		questions = append(questions, domain.Question{
			ID:       uuid.NewString(),
			UserID:   batch.UserID,
			Question: text,
			Subject:  batch.Subject,
			Source: domain.QuestionSource{
				Number: rec.Number,
				Kind:   rec.Kind,
			},
			Timestamp: now,
		})
	}
	if err := a.store.SaveQuestions(questions); err != nil {
		return nil, fmt.Errorf("save questions: %w", err)
	}
	return questions, nil
}

// ListQuestions returns all persisted questions, newest first.
func (a *App) ListQuestions() ([]domain.Question, error) {
	return a.store.ListQuestions()
}

// ListQuestionsByUser returns one user's questions, newest first.
func (a *App) ListQuestionsByUser(userID string) ([]domain.Question, error) {
	return a.store.ListQuestionsByUser(strings.TrimSpace(userID))
}

// ExtractQuestions runs the normalize-and-segment pipeline without
// persisting anything. Either raw text or a PDF is supplied; for PDFs only
// the preview pages are read.
func (a *App) ExtractQuestions(ctx context.Context, text string, pdf io.ReaderAt, pdfSize int64) ([]domain.QuestionRecord, error) {
	kind := domain.SourceText
	if pdf != nil {
		kind = domain.SourcePDF
		parseCtx, cancel := context.WithTimeout(ctx, pdfParseTimeout)
		defer cancel()
		extracted, err := extract.ExtractPDF(parseCtx, pdf, pdfSize, extract.PreviewOptions())
		if err != nil {
			return nil, err
		}
		text = extracted
	} else if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text or file is required", ErrValidation)
	}

	cleaned := extract.Normalize(text)
	if cleaned == "" {
		return []domain.QuestionRecord{}, nil
	}
	segmenter := extract.PatternSegmenter{Kind: kind}
	return segmenter.Segment(cleaned), nil
}

// readAllAt is a helper for buffering bounded PDF bodies.
func readAllAt(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, extract.ErrFileTooLarge
	}
	return data, nil
}
