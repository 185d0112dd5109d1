// Package service contains the business rules of the API.
//
// THE LAYERS:
//
//	Handler (HTTP)       → decodes the request, picks the status code
//	Service (this layer) → validates, checks ownership, orchestrates
//	Repository (data)    → reads and writes recipes and users
//
// A service method is a plain Go call: it takes a context, the caller as an
// access.Actor and typed input, and returns a model or an apperror. Nothing
// in here imports net/http, so the same rules run from a handler, a test or
// a CLI command.
//
// THE MUTATION PIPELINE:
// Every change to a recipe walks the same steps in the same order:
//
//	load → (404) → authorize → (403) → validate → (400) → apply → persist → invalidate
//
// Loading first means a missing recipe is a 404 for everyone, and a
// non-owner learns nothing about the payload they sent because the 403 comes
// before validation. Invalidation runs last and only after the store
// accepted the write, so a failed update never drops a good cache.
//
// DEPENDENCY INJECTION:
// Stores, cache, file storage, mailer and metrics arrive through the
// constructors as interfaces (or nil-safe concrete types). main wires the
// real SQLite/Redis/S3 implementations; the tests pass the in-memory store
// and small fakes from fakes_test.go.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/sakif/smilecook/internal/apperror"
	"github.com/sakif/smilecook/internal/metrics"
	"github.com/sakif/smilecook/internal/storage"
)

// saveImage processes an upload and stores it under folder.
//
// The upload goes through the shared image Processor first, so at most a
// fixed number of decodes run at once. A file that is not a supported image,
// or whose header declares too many pixels, becomes a validation error on
// field; anything else (disk, S3) is an internal error.
func saveImage(ctx context.Context, files storage.Storage, images *storage.Processor, m *metrics.Metrics, folder, field, filename string, r io.Reader) (string, error) {
	img, err := images.Process(ctx, r, filename)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return "", apperror.ValidationFailed(field, "File type not allowed")
		}
		if errors.Is(err, storage.ErrImageTooLarge) {
			return "", apperror.ValidationFailed(field, "Image dimensions are too large")
		}
		return "", err
	}

	ref, err := files.Save(ctx, folder, img.Name, img.Reader())
	if err != nil {
		return "", err
	}
	m.ImageUploaded(folder)
	return ref, nil
}

// removeImage deletes a replaced file. Failure only leaves an orphan on
// disk, so it is logged and not returned.
func removeImage(ctx context.Context, files storage.Storage, logger *slog.Logger, ref string) {
	if ref == "" {
		return
	}
	if err := files.Remove(ctx, ref); err != nil {
		logger.Warn("failed to remove old image", slog.String("ref", ref), slog.String("error", err.Error()))
	}
}
