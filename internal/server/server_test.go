package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"placeprep/internal/app"
	"placeprep/internal/ratelimit"
	"placeprep/pkg/domain"
	"placeprep/pkg/face"
	"placeprep/pkg/session"
	"placeprep/pkg/store"
)

type stubObjects struct {
	objects map[string][]byte
}

func (s *stubObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *stubObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *stubObjects) PublicURL(key string) string {
	return "https://cdn.test/placeprep/" + key
}

func (s *stubObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://cdn.test/placeprep/" + key + "?signed=1", nil
}

func (s *stubObjects) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

type stubGenerator struct {
	answer string
}

func (g *stubGenerator) GenerateChat(context.Context, []domain.ConversationTurn) (string, error) {
	return g.answer, nil
}

type stubEmbedder struct {
	embedding []float32
}

func (e *stubEmbedder) EmbedImage(context.Context, []byte) ([]float32, error) {
	return e.embedding, nil
}

func newTestServer(t *testing.T, limiter *ratelimit.FixedWindowLimiter) (*Server, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	sessions, err := session.NewManager(session.Options{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	a, err := app.New(app.Config{
		Store:     mem,
		Objects:   &stubObjects{objects: make(map[string][]byte)},
		Generator: &stubGenerator{answer: "Paging splits memory into frames."},
		Embedder:  &stubEmbedder{embedding: make([]float32, face.EmbeddingDim)},
		Sessions:  sessions,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return New(Config{App: a, SuggestionLimiter: limiter}), mem
}

// authHeader issues a token against the same secret newTestServer uses.
func authHeader(t *testing.T) string {
	t.Helper()
	sessions, err := session.NewManager(session.Options{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	token, err := sessions.Issue("1001", domain.RoleStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func doMultipartFile(t *testing.T, handler http.Handler, path, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestRegisterThenLogin(t *testing.T) {
	s, _ := newTestServer(t, nil)
	router := s.Router()

	image := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	rec := doJSON(t, router, http.MethodPost, "/user/userdata", map[string]string{
		"image":           image,
		"userDesignation": "student",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	user, _ := payload["user"].(map[string]any)
	if user["id"] != "1001" {
		t.Fatalf("user id = %v, want 1001", user["id"])
	}
	if user["userDesignation"] != "student" {
		t.Fatalf("designation = %v, want student", user["userDesignation"])
	}
	if !strings.HasPrefix(user["imageurl"].(string), "https://cdn.test/") {
		t.Fatalf("imageurl = %v", user["imageurl"])
	}

	rec = doJSON(t, router, http.MethodPost, "/user/login", map[string]string{"userId": "1001"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload = decodeResponse(t, rec)
	if payload["token"] == "" || payload["token"] == nil {
		t.Fatal("expected session token in login response")
	}
}

func TestLoginUnknownUserReturns404(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/user/login", map[string]string{"userId": "9999"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if payload["success"] != false {
		t.Fatal("expected success:false")
	}
	if payload["error"] != "User not found" {
		t.Fatalf("error = %v, want %q", payload["error"], "User not found")
	}
}

func TestLoginNonNumericReturns400(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/user/login", map[string]string{"userId": "abc"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadQuestionValidation(t *testing.T) {
	s, mem := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/questions/upload", map[string]string{
		"userID":   "1001",
		"question": "",
		"subject":  "networks",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	stored, _ := mem.ListQuestions()
	if len(stored) != 0 {
		t.Fatal("no question should be stored")
	}
}

func TestUploadMultipleEmptyArrayRejected(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/questions/upload-multiple", map[string]any{
		"userId":    "1001",
		"subject":   "networks",
		"questions": []any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadMultipleStoresBatch(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/questions/upload-multiple", map[string]any{
		"userId":  "1001",
		"subject": "networks",
		"questions": []map[string]string{
			{"number": "1", "text": "Explain the OSI model layers in detail."},
			{"number": "2", "text": "Define TCP versus UDP protocols."},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	questions, _ := payload["questions"].([]any)
	if len(questions) != 2 {
		t.Fatalf("stored = %d, want 2", len(questions))
	}
}

func TestQuestionsByUserEmptyReturns404(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/questions/1001", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestExtractQuestionsFromText(t *testing.T) {
	s, mem := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/questions/extract", map[string]string{
		"text": "Sr. No. Question 1. Explain the OSI model layers in detail for the examination. 2. Define TCP versus UDP protocols with examples.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	questions, _ := payload["questions"].([]any)
	if len(questions) != 2 {
		t.Fatalf("extracted = %d, want 2", len(questions))
	}
	stored, _ := mem.ListQuestions()
	if len(stored) != 0 {
		t.Fatal("extract must not persist anything")
	}
}

// textlessPDF is a valid single-page document with no content stream,
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

func TestExtractScannedPDFReturns422(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doMultipartFile(t, s.Router(), "/api/questions/extract", "scan.pdf", textlessPDF())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s, want 422", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["success"] != false {
		t.Fatal("expected success:false")
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "scanned") {
		t.Fatalf("error = %q, want manual-entry hint", msg)
	}
}

func TestExtractUnreadablePDFReturns400(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doMultipartFile(t, s.Router(), "/api/questions/extract", "broken.pdf", []byte("definitely not a pdf"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s, want 400", rec.Code, rec.Body.String())
	}
}

func TestDetailedSuggestionReturnsAnswer(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/study-materials/detailed-suggestion", map[string]any{
		"prompt":      "Summarize chapter 1",
		"materialUrl": "https://cdn.test/placeprep/materials/x.bin",
		"name":        "OS",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["answer"] == "" || payload["answer"] == nil {
		t.Fatal("expected non-empty answer")
	}
}

func TestDetailedSuggestionMissingFields(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/study-materials/detailed-suggestion", map[string]any{
		"prompt": "Summarize chapter 1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if payload["error"] == nil {
		t.Fatal("expected error message")
	}
}

func TestDetailedSuggestionRateLimited(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redis.Addr(), "", "test:suggest", 1, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	s, _ := newTestServer(t, limiter)
	router := s.Router()

	body := map[string]any{
		"prompt":      "Summarize chapter 1",
		"materialUrl": "https://cdn.test/placeprep/materials/x.bin",
		"name":        "OS",
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/study-materials/detailed-suggestion", body); rec.Code != http.StatusOK {
		t.Fatalf("first call status = %d", rec.Code)
	}
	rec := doJSON(t, router, http.MethodPost, "/api/study-materials/detailed-suggestion", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestDeleteMaterialUnknownReturns404(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodDelete, "/api/study-materials/deletematerial/missing/delete", nil)
	req.Header.Set("Authorization", authHeader(t))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteMaterialRequiresSession(t *testing.T) {
	s, _ := newTestServer(t, nil)
	router := s.Router()

	req := httptest.NewRequest(http.MethodDelete, "/api/study-materials/deletematerial/missing/delete", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/study-materials/deletematerial/missing/delete", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}
}

func TestSecurityAndRequestIDHeadersPresent(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers")
	}
}
