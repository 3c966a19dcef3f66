package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"placeprep/internal/app"
	"placeprep/internal/ratelimit"
	"placeprep/internal/util"
	"placeprep/pkg/domain"
	"placeprep/pkg/extract"
	"placeprep/pkg/face"
	"placeprep/pkg/session"
	"placeprep/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App               *app.App
	SuggestionLimiter *ratelimit.FixedWindowLimiter
	TrustedProxies    *util.TrustedProxies
	MaxUploadBytes    int64
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	limiter        *ratelimit.FixedWindowLimiter
	trusted        *util.TrustedProxies
	sessions       *session.Manager
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = cfg.App.MaxUploadBytes()
	}
	s := &Server{
		app:            cfg.App,
		limiter:        cfg.SuggestionLimiter,
		trusted:        cfg.TrustedProxies,
		sessions:       cfg.App.Sessions(),
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// identity
	s.mux.HandleFunc("/user/userdata", s.handleRegister)
	s.mux.HandleFunc("/user/login", s.handleLogin)
	s.mux.HandleFunc("/user/verify-face", s.handleVerifyFace)

	// questions
	s.mux.HandleFunc("/api/questions/upload", s.handleUploadQuestion)
	s.mux.HandleFunc("/api/questions/upload-multiple", s.handleUploadQuestions)
	s.mux.HandleFunc("/api/questions/get-questions", s.handleListQuestions)
	s.mux.HandleFunc("/api/questions/extract", s.handleExtractQuestions)
	s.mux.HandleFunc("/api/questions/", s.handleQuestionsByUser)

	// study materials; mutations require the session token Login issues
	s.mux.HandleFunc("/api/study-materials", s.handleListMaterials)
	s.mux.HandleFunc("/api/study-materials/upload", s.requireSession(s.handleUploadMaterial))
	s.mux.HandleFunc("/api/study-materials/detailed-suggestion", s.handleDetailedSuggestion)
	s.mux.HandleFunc("/api/study-materials/my-materials/", s.handleMaterialsByUser)
	s.mux.HandleFunc("/api/study-materials/materials/", s.handleDownloadMaterial)
	s.mux.HandleFunc("/api/study-materials/deletematerial/", s.requireSession(s.handleDeleteMaterial))
}

// requireSession rejects requests without a valid bearer token.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := session.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if _, _, err := s.sessions.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Image           string `json:"image"`
	UserDesignation string `json:"userDesignation"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.app.RegisterUser(r.Context(), req.Image, domain.UserRole(strings.TrimSpace(req.UserDesignation)))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    user,
	})
}

type loginRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, token, err := s.app.Login(r.Context(), req.UserID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

type verifyFaceRequest struct {
	UserID string `json:"userId"`
	Image  string `json:"image"`
}

func (s *Server) handleVerifyFace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req verifyFaceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	distance, err := s.app.VerifyFace(r.Context(), req.UserID, req.Image)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"matched":  true,
		"distance": distance,
	})
}

type uploadQuestionRequest struct {
	UserID   string `json:"userID"`
	Question string `json:"question"`
	Subject  string `json:"subject"`
}

func (s *Server) handleUploadQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req uploadQuestionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	question, err := s.app.UploadQuestion(req.UserID, req.Question, req.Subject)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"question": question,
	})
}

type uploadQuestionsRequest struct {
	UserID    string                  `json:"userId"`
	Subject   string                  `json:"subject"`
	Questions []domain.QuestionRecord `json:"questions"`
}

func (s *Server) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req uploadQuestionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	questions, err := s.app.UploadQuestions(app.QuestionBatch{
		UserID:  req.UserID,
		Subject: req.Subject,
		Records: req.Questions,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("%d questions uploaded successfully", len(questions)),
		"questions": questions,
	})
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	questions, err := s.app.ListQuestions()
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"questions": questions,
	})
}

// /api/questions/{userID}
func (s *Server) handleQuestionsByUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/questions/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	questions, err := s.app.ListQuestionsByUser(userID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if len(questions) == 0 {
		writeError(w, http.StatusNotFound, "No questions found for this user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"questions": questions,
	})
}

type extractRequest struct {
	Text string `json:"text"`
}

// handleExtractQuestions runs the segmentation pipeline without persisting.
// Accepts either a JSON body {text} or a multipart form with a PDF file.
func (s *Server) handleExtractQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required (field: file)")
			return
		}
		defer file.Close()
		records, err := s.app.ExtractQuestions(r.Context(), "", file, header.Size)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeExtracted(w, records)
		return
	}

	var req extractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	records, err := s.app.ExtractQuestions(r.Context(), req.Text, nil, 0)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeExtracted(w, records)
}

func writeExtracted(w http.ResponseWriter, records []domain.QuestionRecord) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"questions": records,
	})
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	materials, err := s.app.ListMaterials(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"materials": materials,
	})
}

func (s *Server) handleUploadMaterial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()
	material, err := s.app.UploadMaterial(
		r.Context(),
		r.FormValue("userId"),
		r.FormValue("name"),
		r.FormValue("subject"),
		header.Filename,
		file,
		header.Size,
	)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"material": material,
	})
}

// /api/study-materials/my-materials/{userId}
func (s *Server) handleMaterialsByUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/study-materials/my-materials/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	materials, err := s.app.ListMaterialsByUser(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"materials": materials,
	})
}

// /api/study-materials/materials/{id}/download
func (s *Server) handleDownloadMaterial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/study-materials/materials/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "download" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	material, body, err := s.app.DownloadMaterial(r.Context(), parts[0])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	defer body.Close()

	ext := filepath.Ext(material.StorageKey)
	if ext == "" {
		ext = ".pdf"
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", material.Name+ext))
	_, _ = io.Copy(w, body)
}

// /api/study-materials/deletematerial/{id}/delete
func (s *Server) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/study-materials/deletematerial/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "delete" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.app.DeleteMaterial(r.Context(), parts[0]); err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Material deleted successfully",
	})
}

type suggestionRequest struct {
	Prompt      json.RawMessage `json:"prompt"`
	MaterialURL string          `json:"materialUrl"`
	Name        string          `json:"name"`
}

func (s *Server) handleDetailedSuggestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r, s.trusted)) {
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded, try again later"})
		return
	}
	var req suggestionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	turns, err := parsePrompt(req.Prompt)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	answer, err := s.app.DetailedSuggestion(r.Context(), turns, req.MaterialURL, req.Name)
	if err != nil {
		if errors.Is(err, app.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": trimValidation(err)})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to generate detailed suggestion."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// parsePrompt accepts either a plain string or an ordered turn array.
func parsePrompt(raw json.RawMessage) ([]domain.ConversationTurn, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		single = strings.TrimSpace(single)
		if single == "" {
			return nil, nil
		}
		return []domain.ConversationTurn{{Role: "user", Content: single}}, nil
	}
	var turns []domain.ConversationTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("prompt must be a string or an array of conversation turns")
	}
	return turns, nil
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, trimValidation(err))
	case errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Material not found")
	case errors.Is(err, face.ErrNoFace):
		writeError(w, http.StatusUnprocessableEntity, "No face detected in the image, please try again")
	case errors.Is(err, app.ErrFaceMismatch):
		writeError(w, http.StatusUnauthorized, "Face does not match the registered user")
	case errors.Is(err, extract.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the 10 MiB upload limit")
	case errors.Is(err, extract.ErrInvalidPDF):
		writeError(w, http.StatusBadRequest, "file is not a readable PDF")
	case errors.Is(err, extract.ErrInsufficientText):
		writeError(w, http.StatusUnprocessableEntity, "No text could be extracted from the PDF, it may be a scanned document. Please enter the questions manually")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// trimValidation strips the sentinel prefix so the client sees only the
// field-level message.
func trimValidation(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 && strings.HasPrefix(msg, app.ErrValidation.Error()) {
		return msg[idx+2:]
	}
	return msg
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
