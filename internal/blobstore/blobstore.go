// Package blobstore persists pipeline artifacts behind locators. A locator is
// a forward-slash path with a well-known prefix: "inbox/" for source objects
// awaiting processing, "texts/" for extracted text artifacts, "archive/" for
// source objects a terminal stage has moved out of the inbox.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"docpipe/internal/config"
	"docpipe/internal/fileutil"
	"docpipe/internal/services"
)

const (
	prefixInbox   = "inbox/"
	prefixTexts   = "texts/"
	prefixArchive = "archive/"
)

// Store resolves locators to bytes and persists stage artifacts.
type Store interface {
	WriteText(ctx context.Context, documentID string, text string) (string, error)
	Read(ctx context.Context, locator string) ([]byte, error)
	Resolve(locator string) (string, error)
	Archive(ctx context.Context, locator string) (string, error)
	Restore(ctx context.Context, locator string) (string, error)
}

// FS is the filesystem-backed artifact store.
type FS struct {
	inboxDir   string
	textsDir   string
	archiveDir string
}

// NewFS builds an FS store over the configured directories.
func NewFS(cfg *config.Config) *FS {
	return &FS{
		inboxDir:   cfg.Paths.InboxDir,
		textsDir:   cfg.TextsDir(),
		archiveDir: filepath.Join(cfg.Paths.ProcessedDir, "archive"),
	}
}

// SourceLocator converts an inbox file name into its locator.
func SourceLocator(fileName string) string {
	return prefixInbox + path.Clean(fileName)
}

// TextLocator returns the locator WriteText will assign for a document.
func TextLocator(documentID string) string {
	return prefixTexts + documentID + ".txt"
}

// WriteText atomically persists the extracted text artifact for a document
// and returns its locator.
func (f *FS) WriteText(ctx context.Context, documentID string, text string) (string, error) {
	if documentID == "" {
		return "", services.Wrap(services.ErrValidation, "blobstore", "write text", "document id is required", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrTimeout, "blobstore", "write text", documentID, err)
	}
	if err := os.MkdirAll(f.textsDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "blobstore", "write text", "create texts dir", err)
	}
	locator := TextLocator(documentID)
	dest := filepath.Join(f.textsDir, documentID+".txt")
	if err := fileutil.WriteFileAtomic(dest, []byte(text), 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "blobstore", "write text", locator, err)
	}
	return locator, nil
}

// Read loads the bytes a locator points at. A missing object yields
// services.ErrNotFound.
func (f *FS) Read(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTimeout, "blobstore", "read", locator, err)
	}
	resolved, err := f.Resolve(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if os.IsNotExist(err) {
		return nil, services.Wrap(services.ErrNotFound, "blobstore", "read", locator, nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "blobstore", "read", locator, err)
	}
	return data, nil
}

// Resolve maps a locator to its filesystem path without touching the disk.
func (f *FS) Resolve(locator string) (string, error) {
	prefix, rest, err := splitLocator(locator)
	if err != nil {
		return "", err
	}
	var root string
	switch prefix {
	case prefixInbox:
		root = f.inboxDir
	case prefixTexts:
		root = f.textsDir
	case prefixArchive:
		root = f.archiveDir
	default:
		return "", services.Wrap(services.ErrValidation, "blobstore", "resolve",
			fmt.Sprintf("unknown locator prefix in %q", locator), nil)
	}
	return filepath.Join(root, filepath.FromSlash(rest)), nil
}

// Archive moves a source object out of the inbox and returns its new locator.
// Re-archiving an already archived locator is a no-op.
func (f *FS) Archive(ctx context.Context, locator string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrTimeout, "blobstore", "archive", locator, err)
	}
	prefix, rest, err := splitLocator(locator)
	if err != nil {
		return "", err
	}
	if prefix == prefixArchive {
		return locator, nil
	}
	if prefix != prefixInbox {
		return "", services.Wrap(services.ErrValidation, "blobstore", "archive",
			fmt.Sprintf("only inbox objects can be archived, got %q", locator), nil)
	}

	src := filepath.Join(f.inboxDir, filepath.FromSlash(rest))
	dst := filepath.Join(f.archiveDir, filepath.FromSlash(rest))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "blobstore", "archive", "create archive dir", err)
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Already moved by an earlier delivery.
			if _, statErr := os.Stat(dst); statErr == nil {
				return prefixArchive + rest, nil
			}
			return "", services.Wrap(services.ErrNotFound, "blobstore", "archive", locator, nil)
		}
		return "", services.Wrap(services.ErrTransient, "blobstore", "archive", locator, err)
	}
	return prefixArchive + rest, nil
}

// Restore moves an archived source object back into the inbox so a replayed
// record can be re-processed from its original bytes. It accepts either the
// inbox or the archive form of the locator; if the object already sits in the
// inbox it is left alone.
func (f *FS) Restore(ctx context.Context, locator string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrTimeout, "blobstore", "restore", locator, err)
	}
	prefix, rest, err := splitLocator(locator)
	if err != nil {
		return "", err
	}
	if prefix != prefixInbox && prefix != prefixArchive {
		return "", services.Wrap(services.ErrValidation, "blobstore", "restore",
			fmt.Sprintf("only source objects can be restored, got %q", locator), nil)
	}

	src := filepath.Join(f.archiveDir, filepath.FromSlash(rest))
	dst := filepath.Join(f.inboxDir, filepath.FromSlash(rest))
	if _, err := os.Stat(dst); err == nil {
		return prefixInbox + rest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "blobstore", "restore", "create inbox dir", err)
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "blobstore", "restore", locator, nil)
		}
		return "", services.Wrap(services.ErrTransient, "blobstore", "restore", locator, err)
	}
	return prefixInbox + rest, nil
}

func splitLocator(locator string) (prefix, rest string, err error) {
	cleaned := path.Clean(strings.TrimSpace(locator))
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") || path.IsAbs(cleaned) {
		return "", "", services.Wrap(services.ErrValidation, "blobstore", "resolve",
			fmt.Sprintf("invalid locator %q", locator), nil)
	}
	for _, p := range []string{prefixInbox, prefixTexts, prefixArchive} {
		if strings.HasPrefix(cleaned, p) {
			rest = strings.TrimPrefix(cleaned, p)
			if rest == "" {
				break
			}
			return p, rest, nil
		}
	}
	return "", "", services.Wrap(services.ErrValidation, "blobstore", "resolve",
		fmt.Sprintf("unknown locator prefix in %q", locator), nil)
}
