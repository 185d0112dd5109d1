// Package storage keeps uploaded images: recipe covers and user avatars.
//
// A stored file is identified by its reference, "<folder>/<name>", which is
// what the database keeps. URL turns a reference into something a client
// can fetch. Two backends exist: the local filesystem, served by the API
// under /uploads/, and an S3-compatible bucket.
package storage

import (
	"context"
	"io"
	"strings"
)

const (
	FolderRecipes = "recipes"
	FolderAvatars = "avatars"
)

// Storage keeps uploaded images.
//
// A reference ("recipes/<uuid>-egg-salad.jpg") is what the database stores.
// It is backend-neutral: the same reference resolves to a local /uploads URL
// or an S3 URL depending on which Storage produced it, and URL turns it into
// the address clients download from.
type Storage interface {
	// Save writes r under folder/name and returns the reference.
	Save(ctx context.Context, folder, name string, r io.Reader) (string, error)
	// Remove deletes a reference. Removing something absent is not an error.
	Remove(ctx context.Context, ref string) error
	// URL is the public address of ref, or "" for an empty ref.
	URL(ref string) string
}

func joinRef(folder, name string) string {
	return strings.Trim(folder, "/") + "/" + name
}

func joinURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + ref
}
