// Package api defines the read models served over the status query boundary.
// Views are derived from document records; nothing here mutates pipeline
// state.
package api

import (
	"time"

	"docpipe/internal/docstore"
)

// DocumentView is the external representation of a document record.
type DocumentView struct {
	ID               string     `json:"id"`
	SourceLocator    string     `json:"sourceLocator"`
	OriginalFileName string     `json:"originalFileName,omitempty"`
	ContentType      string     `json:"contentType,omitempty"`
	SizeBytes        int64      `json:"sizeBytes,omitempty"`
	Status           string     `json:"status"`
	Category         string     `json:"category,omitempty"`
	FailureReason    string     `json:"failureReason,omitempty"`
	FailedStage      string     `json:"failedStage,omitempty"`
	NotifiedAt       *time.Time `json:"notifiedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// HealthView summarizes pipeline state for operators.
type HealthView struct {
	Total      int            `json:"total"`
	Received   int            `json:"received"`
	Processing int            `json:"processing"`
	Classified int            `json:"classified"`
	Failed     int            `json:"failed"`
	Isolated   int            `json:"isolated"`
	ByStatus   map[string]int `json:"byStatus"`
	LastError  string         `json:"lastError,omitempty"`
}

// NewDocumentView converts a record into its view.
func NewDocumentView(doc *docstore.Document) DocumentView {
	return DocumentView{
		ID:               doc.ID,
		SourceLocator:    doc.SourceLocator,
		OriginalFileName: doc.OriginalFileName,
		ContentType:      doc.ContentType,
		SizeBytes:        doc.SizeBytes,
		Status:           string(doc.Status),
		Category:         doc.Category,
		FailureReason:    doc.FailureReason,
		FailedStage:      doc.FailedStage,
		NotifiedAt:       doc.NotifiedAt,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

// NewDocumentViews converts a record list.
func NewDocumentViews(docs []*docstore.Document) []DocumentView {
	views := make([]DocumentView, len(docs))
	for i, doc := range docs {
		views[i] = NewDocumentView(doc)
	}
	return views
}
