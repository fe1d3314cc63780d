package services_test

import (
	"errors"
	"testing"

	"docpipe/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("socket closed")
	err := services.Wrap(services.ErrTransient, "extraction", "invoke ocr", "engine unavailable", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
	if !services.IsTransient(err) {
		t.Fatal("IsTransient should report true")
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "classify", "read artifact", "", nil)
	if !services.IsTransient(err) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestClassificationHelpers(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
		permanent bool
		conflict  bool
	}{
		{"validation", services.Wrap(services.ErrValidation, "intake", "", "unsupported file type", nil), false, true, false},
		{"timeout", services.Wrap(services.ErrTimeout, "extraction", "", "", nil), true, false, false},
		{"conflict", services.ErrConflict, false, false, true},
		{"not_found", services.Wrap(services.ErrNotFound, "classify", "", "missing artifact", nil), false, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsTransient(tc.err); got != tc.transient {
				t.Errorf("IsTransient = %v, want %v", got, tc.transient)
			}
			if got := services.IsPermanent(tc.err); got != tc.permanent {
				t.Errorf("IsPermanent = %v, want %v", got, tc.permanent)
			}
			if got := services.IsConflict(tc.err); got != tc.conflict {
				t.Errorf("IsConflict = %v, want %v", got, tc.conflict)
			}
		})
	}
}

func TestFailureReasonStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "intake", "validate source", "unsupported file type", nil)
	got := services.FailureReason(err)
	want := "intake: validate source: unsupported file type"
	if got != want {
		t.Fatalf("FailureReason = %q, want %q", got, want)
	}
}
