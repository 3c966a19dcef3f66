package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"placeprep/pkg/domain"
	"placeprep/pkg/store"
)

const presignConcurrency = 8

// UploadMaterial stores the file in object storage and then the metadata
// record. When the metadata insert fails, the already-uploaded object is
// deleted so no orphan remains.
func (a *App) UploadMaterial(ctx context.Context, userID, name, subject, filename string, r io.Reader, size int64) (domain.StudyMaterial, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	subject = strings.TrimSpace(subject)
	if userID == "" || name == "" || subject == "" {
		return domain.StudyMaterial{}, fmt.Errorf("%w: userId, name, and subject are required", ErrValidation)
	}
	if filename == "" {
		return domain.StudyMaterial{}, fmt.Errorf("%w: file is required", ErrValidation)
	}
	if !a.extensionAllowed(filename) {
		return domain.StudyMaterial{}, fmt.Errorf("%w: file type %q is not allowed", ErrValidation, filepath.Ext(filename))
	}
	if size > a.maxUploadBytes {
		return domain.StudyMaterial{}, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, a.maxUploadBytes)
	}

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(filename))
	storageKey := "materials/" + id + ext
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, storageKey, r, size, contentType); err != nil {
		return domain.StudyMaterial{}, fmt.Errorf("save file: %w", err)
	}
	material := domain.StudyMaterial{
		ID:         id,
		UserID:     userID,
		Name:       name,
		Subject:    subject,
		FileURL:    a.objects.PublicURL(storageKey),
		StorageKey: storageKey,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.store.SaveMaterial(material); err != nil {
		_ = a.objects.Delete(ctx, storageKey)
		return domain.StudyMaterial{}, fmt.Errorf("save material: %w", err)
	}
	return material, nil
}

// ListMaterials returns all materials, newest first, with fresh download
// URLs resolved concurrently.
func (a *App) ListMaterials(ctx context.Context) ([]domain.StudyMaterial, error) {
	materials, err := a.store.ListMaterials()
	if err != nil {
		return nil, err
	}
	return a.refreshURLs(ctx, materials)
}

// ListMaterialsByUser returns one user's materials, newest first.
func (a *App) ListMaterialsByUser(ctx context.Context, userID string) ([]domain.StudyMaterial, error) {
	materials, err := a.store.ListMaterialsByUser(strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return a.refreshURLs(ctx, materials)
}

func (a *App) refreshURLs(ctx context.Context, materials []domain.StudyMaterial) ([]domain.StudyMaterial, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(presignConcurrency)
	for i := range materials {
		g.Go(func() error {
			url, err := a.objects.PresignGet(ctx, materials[i].StorageKey, a.presignExpiry)
			if err != nil {
				return fmt.Errorf("presign %s: %w", materials[i].ID, err)
			}
			materials[i].FileURL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return materials, nil
}

// DownloadMaterial opens the stored object for streaming. The caller closes
// the reader.
func (a *App) DownloadMaterial(ctx context.Context, id string) (domain.StudyMaterial, io.ReadCloser, error) {
	material, ok, err := a.store.GetMaterial(strings.TrimSpace(id))
	if err != nil {
		return domain.StudyMaterial{}, nil, fmt.Errorf("lookup material: %w", err)
	}
	if !ok {
		return domain.StudyMaterial{}, nil, store.ErrNotFound
	}
	body, err := a.objects.Get(ctx, material.StorageKey)
	if err != nil {
		return domain.StudyMaterial{}, nil, fmt.Errorf("open object: %w", err)
	}
	return material, body, nil
}

// DeleteMaterial removes the metadata record and the stored object as one
// unit. The object delete runs inside the store transaction; its failure
// rolls the metadata delete back.
func (a *App) DeleteMaterial(ctx context.Context, id string) error {
	return a.store.DeleteMaterial(strings.TrimSpace(id), func(material domain.StudyMaterial) error {
		if err := a.objects.Delete(ctx, material.StorageKey); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
		return nil
	})
}
