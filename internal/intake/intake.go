// Package intake turns object-created notifications into document records.
// Record ids are derived deterministically from the source locator, so
// duplicate notifications for the same object collapse onto one record no
// matter how many times the storage layer re-delivers them.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"docpipe/internal/blobstore"
	"docpipe/internal/docstore"
	"docpipe/internal/logging"
	"docpipe/internal/services"
)

// ReasonUnsupportedFileType is persisted on records rejected for their type.
const ReasonUnsupportedFileType = "unsupported file type"

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docpipe/documents"))

var supportedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
}

// ObjectCreated describes a new object in the inbox.
type ObjectCreated struct {
	Locator     string
	ContentType string
	SizeBytes   int64
}

// DocumentID derives the deterministic record id for a source locator.
func DocumentID(locator string) string {
	return uuid.NewSHA1(documentNamespace, []byte(locator)).String()
}

// Executor admits source objects into the pipeline.
type Executor struct {
	store  *docstore.Store
	blobs  blobstore.Store
	logger *slog.Logger
}

// NewExecutor builds the intake executor.
func NewExecutor(store *docstore.Store, blobs blobstore.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:  store,
		blobs:  blobs,
		logger: logging.NewComponentLogger(logger, "intake"),
	}
}

// Handle admits the object, creating its record if absent. It returns the
// record and whether this call created it; a duplicate notification is a
// no-op and never re-triggers downstream work.
func (e *Executor) Handle(ctx context.Context, obj ObjectCreated) (*docstore.Document, bool, error) {
	locator := strings.TrimSpace(obj.Locator)
	if locator == "" {
		return nil, false, services.Wrap(services.ErrValidation, "intake", "admit", "empty locator", nil)
	}

	id := DocumentID(locator)
	fileName := path.Base(locator)
	doc := &docstore.Document{
		ID:               id,
		SourceLocator:    locator,
		OriginalFileName: fileName,
		ContentType:      obj.ContentType,
		SizeBytes:        obj.SizeBytes,
	}

	if reason := e.rejectReason(ctx, locator, obj.ContentType); reason != "" {
		doc.Status = docstore.StatusFailed
		doc.FailureReason = reason
		doc.FailedStage = "intake"
	}

	created, err := e.store.CreateIfAbsent(ctx, doc)
	if err != nil {
		return nil, false, services.Wrap(services.ErrTransient, "intake", "create record", id, err)
	}
	if !created {
		existing, err := e.store.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		e.logger.Debug("duplicate object notification ignored",
			logging.String(logging.FieldDocumentID, id),
			logging.String("locator", locator))
		return existing, false, nil
	}

	if doc.Status == docstore.StatusFailed {
		e.logger.Warn("object rejected at intake",
			logging.String(logging.FieldDocumentID, id),
			logging.String("locator", locator),
			logging.String("reason", doc.FailureReason))
	} else {
		e.logger.Info("document admitted",
			logging.String(logging.FieldDocumentID, id),
			logging.String("locator", locator),
			logging.Int64("size_bytes", obj.SizeBytes))
	}
	return doc, true, nil
}

// rejectReason returns a non-empty failure reason when the object cannot
// enter the pipeline. Rejections are permanent: the record is created
// directly in the failed status and never retried.
func (e *Executor) rejectReason(ctx context.Context, locator, contentType string) string {
	ext := strings.ToLower(path.Ext(locator))
	expected, ok := supportedExtensions[ext]
	if !ok {
		return ReasonUnsupportedFileType
	}
	if contentType != "" && contentType != expected {
		return fmt.Sprintf("%s: %s does not match %s", ReasonUnsupportedFileType, contentType, ext)
	}
	if ext == ".pdf" {
		if reason := e.validatePDF(ctx, locator); reason != "" {
			return reason
		}
	}
	return ""
}

func (e *Executor) validatePDF(ctx context.Context, locator string) string {
	resolved, err := e.blobs.Resolve(locator)
	if err != nil {
		return "unresolvable locator"
	}
	if err := ctx.Err(); err != nil {
		return ""
	}
	if err := api.ValidateFile(resolved, nil); err != nil {
		return fmt.Sprintf("corrupt pdf: %v", err)
	}
	return ""
}
