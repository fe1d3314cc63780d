package events

import (
	"encoding/json"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event types carried on the internal bus. Every delivery is at-least-once;
// consumers treat redelivery as routine and rely on the record store's
// conditional updates for exactly-once effects.
const (
	TypeDocumentReceived   = "com.docpipe.document.received"
	TypeDocumentExtracted  = "com.docpipe.document.extracted"
	TypeDocumentClassified = "com.docpipe.document.classified"

	eventSource = "docpipe/pipeline"
)

// DocumentPayload is the data section shared by all document events. Fields
// that a given stage has not produced yet are simply empty.
type DocumentPayload struct {
	DocumentID       string `json:"document_id"`
	SourceLocator    string `json:"source_locator"`
	OriginalFileName string `json:"original_file_name,omitempty"`
	TextLocator      string `json:"text_locator,omitempty"`
	Category         string `json:"category,omitempty"`
}

// New builds a CloudEvent of the given type around a document payload.
func New(eventType string, payload DocumentPayload) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(eventSource)
	e.SetType(eventType)
	e.SetSubject(payload.DocumentID)
	if err := e.SetData(cloudevents.ApplicationJSON, payload); err != nil {
		return e, fmt.Errorf("set event data: %w", err)
	}
	return e, nil
}

// Payload decodes the document payload from an event, validating that the
// document id is present.
func Payload(e cloudevents.Event) (DocumentPayload, error) {
	var payload DocumentPayload
	if err := json.Unmarshal(e.Data(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", e.Type(), err)
	}
	if payload.DocumentID == "" {
		return payload, fmt.Errorf("%s event missing document id", e.Type())
	}
	return payload, nil
}
