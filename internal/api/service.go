package api

import (
	"context"

	"docpipe/internal/docstore"
	"docpipe/internal/sink"
)

// DocumentService serves read-only document views from the record stores.
type DocumentService struct {
	store    *docstore.Store
	isolated *sink.Store
}

// NewDocumentService builds the query service. The sink store may be nil
// when isolation counts are not needed.
func NewDocumentService(store *docstore.Store, isolated *sink.Store) *DocumentService {
	return &DocumentService{store: store, isolated: isolated}
}

// Get returns the view for one document.
func (s *DocumentService) Get(ctx context.Context, id string) (DocumentView, error) {
	doc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return DocumentView{}, err
	}
	return NewDocumentView(doc), nil
}

// List returns views for all documents, optionally filtered by status.
func (s *DocumentService) List(ctx context.Context, statuses ...docstore.Status) ([]DocumentView, error) {
	docs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return NewDocumentViews(docs), nil
}

// Health aggregates record and sink counts.
func (s *DocumentService) Health(ctx context.Context) (HealthView, error) {
	summary, err := s.store.Health(ctx)
	if err != nil {
		return HealthView{}, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return HealthView{}, err
	}

	view := HealthView{
		Total:      summary.Total,
		Received:   summary.Received,
		Processing: summary.Processing,
		Classified: summary.Classified,
		Failed:     summary.Failed,
		ByStatus:   make(map[string]int, len(stats)),
	}
	for status, count := range stats {
		view.ByStatus[string(status)] = count
	}
	if s.isolated != nil {
		if count, err := s.isolated.Count(ctx); err == nil {
			view.Isolated = count
		}
	}
	return view, nil
}
