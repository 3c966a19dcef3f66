package app

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"placeprep/internal/config"
	"placeprep/pkg/ai"
	"placeprep/pkg/face"
	"placeprep/pkg/httpretry"
	"placeprep/pkg/session"
	"placeprep/pkg/storage"
	"placeprep/pkg/store"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultPresignExpiry  = 15 * time.Minute
)

// Config holds runtime configuration for the core application. The Store,
// Objects, Generator, and Embedder fields let tests inject fakes; when nil
// they are built from the remaining settings.
type Config struct {
	Store   store.Store
	Objects storage.ObjectStore

	DatabaseURL string
	Minio       storage.MinioConfig

	Generator       ai.ChatGenerator
	GeminiAPIKey    string
	GenerationModel string

	Embedder            face.Embedder
	FaceEmbedderBaseURL string
	FaceEmbedderModel   string
	FaceMatchThreshold  float64

	Sessions      *session.Manager
	SessionSecret string
	SessionTTL    time.Duration

	MaxUploadBytes    int64
	AllowedExtensions []string
}

// App is the core application service wiring storage, AI, and identity.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	generator ai.ChatGenerator
	embedder  face.Embedder
	matcher   face.Matcher
	sessions  *session.Manager

	httpClient    *http.Client
	retryPolicy   httpretry.Policy
	presignExpiry time.Duration

	maxUploadBytes int64
	allowedExts    map[string]struct{}
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	generator := cfg.Generator
	if generator == nil {
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		generator = ai.NewGeminiGenerator(client, cfg.GenerationModel)
	}
	embedder := cfg.Embedder
	if embedder == nil && cfg.FaceEmbedderBaseURL != "" {
		var err error
		embedder, err = face.NewHTTPEmbedder(cfg.FaceEmbedderBaseURL, cfg.FaceEmbedderModel)
		if err != nil {
			return nil, err
		}
	}
	sessions := cfg.Sessions
	if sessions == nil {
		var err error
		sessions, err = session.NewManager(session.Options{
			Secret: cfg.SessionSecret,
			TTL:    cfg.SessionTTL,
		})
		if err != nil {
			return nil, err
		}
	}

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	return &App{
		store:          dataStore,
		objects:        objects,
		generator:      generator,
		embedder:       embedder,
		matcher:        face.NewMatcher(cfg.FaceMatchThreshold),
		sessions:       sessions,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		retryPolicy:    httpretry.DefaultPolicy(),
		presignExpiry:  defaultPresignExpiry,
		maxUploadBytes: maxUpload,
		allowedExts:    allowed,
	}, nil
}

// FromFileConfig builds an app Config from the loaded file configuration.
func FromFileConfig(fc config.FileConfig) (Config, error) {
	ttl, err := config.ParseSessionTTL(fc.SessionTTL)
	if err != nil {
		return Config{}, err
	}
	return Config{
		DatabaseURL: fc.DatabaseURL,
		Minio: storage.MinioConfig{
			Endpoint:      fc.MinioEndpoint,
			AccessKey:     fc.MinioAccessKey,
			SecretKey:     fc.MinioSecretKey,
			Bucket:        fc.MinioBucket,
			UseSSL:        fc.MinioUseSSL,
			PublicBaseURL: fc.MinioPublicBaseURL,
		},
		GeminiAPIKey:        fc.GeminiAPIKey,
		GenerationModel:     fc.GenerationModel,
		FaceEmbedderBaseURL: fc.FaceEmbedderBaseURL,
		FaceEmbedderModel:   fc.FaceEmbedderModel,
		FaceMatchThreshold:  fc.FaceMatchThreshold,
		SessionSecret:       fc.SessionSecret,
		SessionTTL:          ttl,
		MaxUploadBytes:      fc.MaxUploadBytes,
		AllowedExtensions:   fc.AllowedExtensions,
	}, nil
}

// MaxUploadBytes is the request body cap for file uploads.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// Sessions exposes the token manager so transport middleware can verify
// the tokens Login issues.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

func (a *App) extensionAllowed(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := a.allowedExts[ext]
	return ok
}
