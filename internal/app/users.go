package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"placeprep/internal/util"
	"placeprep/pkg/domain"
	"placeprep/pkg/face"
)

// RegisterUser stores the captured reference image, reserves a role-scoped
// numeric ID, and persists the user. The face descriptor is computed
// best-effort; a failing embedder does not block registration.
func (a *App) RegisterUser(ctx context.Context, imageBase64 string, role domain.UserRole) (domain.User, error) {
	switch role {
	case domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin:
	default:
		return domain.User{}, fmt.Errorf("%w: unknown designation %q", ErrValidation, role)
	}
	image, err := decodeImage(imageBase64)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	storageKey := "users/" + uuid.NewString() + ".jpg"
	if err := a.objects.Put(ctx, storageKey, bytes.NewReader(image), int64(len(image)), "image/jpeg"); err != nil {
		return domain.User{}, fmt.Errorf("save reference image: %w", err)
	}
	imageURL := a.objects.PublicURL(storageKey)

	id, err := a.store.NextUserID(role)
	if err != nil {
		_ = a.objects.Delete(ctx, storageKey)
		return domain.User{}, fmt.Errorf("reserve user id: %w", err)
	}
	user := domain.User{
		ID:        id,
		Role:      role,
		ImageURL:  imageURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		_ = a.objects.Delete(ctx, storageKey)
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}

	if a.embedder != nil {
		if embedding, err := a.embedder.EmbedImage(ctx, image); err != nil {
			util.LoggerFromContext(ctx).Warn("reference embedding failed", "user_id", id, "error", err)
		} else if err := a.store.SetUserEmbedding(id, embedding); err != nil {
			util.LoggerFromContext(ctx).Warn("store reference embedding failed", "user_id", id, "error", err)
		}
	}
	return user, nil
}

// Login resolves a user by numeric ID and issues a session token.
func (a *App) Login(ctx context.Context, userID string) (domain.User, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || !isNumeric(userID) {
		return domain.User{}, "", fmt.Errorf("%w: userId must be numeric", ErrValidation)
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrUserNotFound
	}
	token, err := a.sessions.Issue(user.ID, user.Role)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// VerifyFace compares a live frame against the user's stored reference
// descriptor and returns the Euclidean distance. face.ErrNoFace means the
// frame is unusable and the caller may retry with a new capture;
// ErrFaceMismatch means the frame belongs to someone else.
func (a *App) VerifyFace(ctx context.Context, userID, imageBase64 string) (float64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if a.embedder == nil {
		return 0, fmt.Errorf("face verification is not configured")
	}
	image, err := decodeImage(imageBase64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, ok, err := a.store.GetUserByID(userID); err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	} else if !ok {
		return 0, ErrUserNotFound
	}
	reference, ok, err := a.store.GetUserEmbedding(userID)
	if err != nil {
		return 0, fmt.Errorf("load reference descriptor: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("reference descriptor unavailable for user %s", userID)
	}

	live, err := a.embedder.EmbedImage(ctx, image)
	if err != nil {
		if errors.Is(err, face.ErrNoFace) {
			return 0, err
		}
		return 0, fmt.Errorf("embed live frame: %w", err)
	}
	matched, distance, err := a.matcher.Match(reference, live)
	if err != nil {
		return 0, fmt.Errorf("compare descriptors: %w", err)
	}
	if !matched {
		return distance, ErrFaceMismatch
	}
	return distance, nil
}

// decodeImage accepts raw base64 or a data URL and returns image bytes.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("image is required")
	}
	if idx := strings.Index(encoded, ","); idx >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %v", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	return data, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
