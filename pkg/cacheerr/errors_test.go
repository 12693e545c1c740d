package cacheerr

import (
	"errors"
	"testing"
)

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("sha256:abc123")

	if err.Code != NotFound {
		t.Errorf("Code = %v, want %v", err.Code, NotFound)
	}
	if err.Message != "not found" {
		t.Errorf("Message = %q, want %q", err.Message, "not found")
	}
	if err.Context != "sha256:abc123" {
		t.Errorf("Context = %q, want %q", err.Context, "sha256:abc123")
	}
}

func TestNewPreconditionFailedError(t *testing.T) {
	err := NewPreconditionFailedError("leases/master.json")

	if err.Code != PreconditionFailed {
		t.Errorf("Code = %v, want %v", err.Code, PreconditionFailed)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := NewTransientError("upload failed", "container/blob", cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped error to satisfy errors.Is against cause")
	}
	if got := err.Error(); got == "" {
		t.Errorf("Error() returned empty string")
	}
}

func TestContentHashMismatch(t *testing.T) {
	err := NewContentHashMismatchError("sha256:aaa", "sha256:bbb")

	if err.Code != ContentHashMismatch {
		t.Errorf("Code = %v, want %v", err.Code, ContentHashMismatch)
	}
}

func TestCodeOf(t *testing.T) {
	err := NewTerminalError("bad request", "", errors.New("400"))

	code, ok := CodeOf(err)
	if !ok {
		t.Fatalf("CodeOf returned ok=false for *Error")
	}
	if code != Terminal {
		t.Errorf("code = %v, want %v", code, Terminal)
	}

	if _, ok := CodeOf(errors.New("plain error")); ok {
		t.Errorf("CodeOf should return ok=false for a non-cacheerr error")
	}
}

func TestIsRetryable(t *testing.T) {
	transient := NewTransientError("throttled", "", errors.New("429"))
	terminal := NewTerminalError("bad request", "", errors.New("400"))

	if !IsRetryable(transient) {
		t.Errorf("expected Transient error to be retryable")
	}
	if IsRetryable(terminal) {
		t.Errorf("expected Terminal error to not be retryable")
	}
}

func TestIsPreconditionFailed(t *testing.T) {
	err := NewPreconditionFailedError("blob")
	if !IsPreconditionFailed(err) {
		t.Errorf("expected PreconditionFailed classification")
	}
	if IsPreconditionFailed(NewNotFoundError("blob")) {
		t.Errorf("NotFound must not be classified as PreconditionFailed")
	}
}

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		NotFound:            "not_found",
		AlreadyExists:       "already_exists",
		PreconditionFailed:  "precondition_failed",
		Transient:           "transient",
		Terminal:            "terminal",
		BandwidthTimeout:    "bandwidth_timeout",
		ContentHashMismatch: "content_hash_mismatch",
		Cancelled:           "cancelled",
	}

	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}
