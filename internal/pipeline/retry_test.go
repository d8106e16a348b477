package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// TestRetryPolicy_DelayDoublesAndCaps verifies the backoff schedule.
// Params: testing.T for assertions.
// Returns: none.
func TestRetryPolicy_DelayDoublesAndCaps(t *testing.T) {
	policy := DefaultRetryPolicy()
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for idx, expected := range want {
		if got := policy.Delay(idx + 1); got != expected {
			t.Fatalf("Delay(%d)=%v, want=%v", idx+1, got, expected)
		}
	}
	if got := policy.Delay(200); got != 30*time.Second {
		t.Fatalf("Delay(200)=%v, want cap", got)
	}
}

// TestRetryPolicy_NormalizedFillsDefaults verifies zero-value policy becomes usable.
// Params: testing.T for assertions.
// Returns: none.
func TestRetryPolicy_NormalizedFillsDefaults(t *testing.T) {
	got := RetryPolicy{}.normalized()
	if got != DefaultRetryPolicy() {
		t.Fatalf("normalized=%+v, want defaults", got)
	}

	custom := RetryPolicy{MaxAttempts: 2, InitialDelay: 5 * time.Second, MaxDelay: time.Second}.normalized()
	if custom.MaxDelay != 5*time.Second {
		t.Fatalf("max delay must be raised to initial delay, got %v", custom.MaxDelay)
	}
}

// TestClassifyFailure verifies explicit and default classification.
// Params: testing.T for assertions.
// Returns: none.
func TestClassifyFailure(t *testing.T) {
	cause := errors.New("boom")

	if got := ClassifyFailure(Fatal(cause)); got != FailureFatal {
		t.Fatalf("Fatal classified as %v", got)
	}
	if got := ClassifyFailure(Transient(cause)); got != FailureTransient {
		t.Fatalf("Transient classified as %v", got)
	}
	if got := ClassifyFailure(fmt.Errorf("wrapped: %w", Fatal(cause))); got != FailureFatal {
		t.Fatalf("wrapped Fatal classified as %v", got)
	}
	if got := ClassifyFailure(cause); got != FailureTransient {
		t.Fatalf("unclassified error must be transient, got %v", got)
	}
	if Transient(nil) != nil || Fatal(nil) != nil {
		t.Fatalf("nil cause must stay nil")
	}
	if !errors.Is(Fatal(cause), cause) {
		t.Fatalf("SendError must unwrap to cause")
	}
}

// TestDeliveryError_MatchesSentinels verifies errors.Is and Unwrap behavior.
// Params: testing.T for assertions.
// Returns: none.
func TestDeliveryError_MatchesSentinels(t *testing.T) {
	cause := Transient(errors.New("503"))

	exhausted := error(&DeliveryError{Kind: DeliveryRetriesExhausted, Attempts: 5, Cause: cause})
	if !errors.Is(exhausted, ErrRetriesExhausted) || errors.Is(exhausted, ErrFatalDelivery) {
		t.Fatalf("exhausted error sentinel mismatch")
	}
	if !errors.Is(exhausted, cause) {
		t.Fatalf("exhausted error must unwrap to cause")
	}
	if !strings.Contains(exhausted.Error(), "after 5 attempt(s)") {
		t.Fatalf("unexpected message: %q", exhausted.Error())
	}

	fatal := error(&DeliveryError{Kind: DeliveryFatal, Attempts: 1, Cause: Fatal(errors.New("401"))})
	if !errors.Is(fatal, ErrFatalDelivery) || errors.Is(fatal, ErrRetriesExhausted) {
		t.Fatalf("fatal error sentinel mismatch")
	}
	var deliveryErr *DeliveryError
	if !errors.As(fmt.Errorf("flush: %w", fatal), &deliveryErr) || deliveryErr.Attempts != 1 {
		t.Fatalf("errors.As must find DeliveryError")
	}
}
