package face

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// EmbeddingDim is the descriptor length produced by the recognition model.
const EmbeddingDim = 128

// ErrNoFace is returned when the embedding service finds no face in the
// supplied image. Callers treat it as a recoverable input problem, not an
// outage.
var ErrNoFace = errors.New("no face detected in image")

// Embedder produces a face descriptor from raw image bytes.
type Embedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// HTTPEmbedder calls an external face-embedding service over HTTP.
type HTTPEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHTTPEmbedder constructs an embedder for the given service endpoint.
func NewHTTPEmbedder(baseURL, model string) (*HTTPEmbedder, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("face embedder base url required")
	}
	return &HTTPEmbedder{
		baseURL:    baseURL,
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// EmbedImage sends the image and returns its descriptor.
func (e *HTTPEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("image data required")
	}
	reqBody := embedImageRequest{
		Model: e.model,
		Image: base64.StdEncoding.EncodeToString(image),
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, ErrNoFace
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return nil, fmt.Errorf("face embedder error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("face embedder error: %s", resp.Status)
	}

	var out embedImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, ErrNoFace
	}
	if len(out.Embedding) != EmbeddingDim {
		return nil, fmt.Errorf("face embedder returned %d values, want %d", len(out.Embedding), EmbeddingDim)
	}
	return out.Embedding, nil
}

type embedImageRequest struct {
	Model string `json:"model,omitempty"`
	Image string `json:"image"`
}

type embedImageResponse struct {
	Embedding []float32 `json:"embedding"`
}
