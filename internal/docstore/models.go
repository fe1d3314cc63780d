package docstore

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a document record.
type Status string

const (
	StatusReceived    Status = "received"
	StatusExtracting  Status = "extracting"
	StatusExtracted   Status = "extracted"
	StatusClassifying Status = "classifying"
	StatusClassified  Status = "classified"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusReceived,
	StatusExtracting,
	StatusExtracted,
	StatusClassifying,
	StatusClassified,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// statusRank orders statuses by pipeline progression. StatusFailed carries no
// rank; it is reachable from any non-terminal status.
var statusRank = map[Status]int{
	StatusReceived:    0,
	StatusExtracting:  1,
	StatusExtracted:   2,
	StatusClassifying: 3,
	StatusClassified:  4,
}

var processingStatuses = map[Status]struct{}{
	StatusExtracting:  {},
	StatusClassifying: {},
}

type statusTransition struct {
	from Status
	to   Status
}

// staleRollbackTransitions map an abandoned processing status back to its
// stage's entry status so the next delivery can re-claim the record.
var staleRollbackTransitions = []statusTransition{
	{from: StatusExtracting, to: StatusReceived},
	{from: StatusClassifying, to: StatusExtracted},
}

// Document represents a document record persisted in SQLite.
type Document struct {
	ID                   string
	SourceLocator        string
	OriginalFileName     string
	ContentType          string
	SizeBytes            int64
	Status               Status
	ExtractedTextLocator string
	Category             string
	FailureReason        string
	FailedStage          string
	ExtractAttempts      int
	ClassifyAttempts     int
	NotifyAttempts       int
	NotifiedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HealthSummary describes aggregated record counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Received   int
	Processing int
	Classified int
	Failed     int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing reports whether the record reflects an in-flight stage.
func (d Document) IsProcessing() bool {
	_, ok := processingStatuses[d.Status]
	return ok
}

// IsTerminal reports whether no further stage may act on the record.
func (d Document) IsTerminal() bool {
	return d.Status == StatusClassified || d.Status == StatusFailed
}

// AtOrPast reports whether the record has already reached target in pipeline
// order. Re-delivered triggers use this as their idempotent-skip guard.
func (d Document) AtOrPast(target Status) bool {
	if d.Status == StatusFailed {
		return true
	}
	current, ok := statusRank[d.Status]
	if !ok {
		return false
	}
	want, ok := statusRank[target]
	if !ok {
		return false
	}
	return current >= want
}

// CanTransition reports whether moving from the record's current status to
// next respects monotonic pipeline order. Failure is allowed from any
// non-terminal status.
func (d Document) CanTransition(next Status) bool {
	if d.Status == StatusFailed || d.Status == StatusClassified {
		return false
	}
	if next == StatusFailed {
		return true
	}
	current, ok := statusRank[d.Status]
	if !ok {
		return false
	}
	want, ok := statusRank[next]
	if !ok {
		return false
	}
	return want == current+1
}
