package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := New(ProviderUnavailable, "embed note n1", errors.New("429 too many requests"))
	wrapped := fmt.Errorf("extract: %w", err)

	if !errors.Is(wrapped, ErrProviderUnavailable) {
		t.Error("expected wrapped error to match ProviderUnavailable sentinel")
	}
	if errors.Is(wrapped, ErrInvalidInput) {
		t.Error("must not match a different kind")
	}
	if KindOf(wrapped) != ProviderUnavailable {
		t.Errorf("KindOf = %q", KindOf(wrapped))
	}
	if !Is(wrapped, ProviderUnavailable) {
		t.Error("Is should report the kind")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := New(StorageUnavailable, "commit", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause in chain")
	}
	if got := err.Error(); got != "storage_unavailable: commit: disk I/O error" {
		t.Errorf("Error() = %q", got)
	}
}

func TestKindOf_Plain(t *testing.T) {
	if KindOf(errors.New("x")) != "" {
		t.Error("plain errors have no kind")
	}
	if Is(nil, NotFound) {
		t.Error("nil is not NotFound")
	}
}
