package pipeline

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts bounds sink invocations per upload.
	DefaultMaxAttempts = 5
	// DefaultInitialDelay is the wait after the first failed attempt.
	DefaultInitialDelay = time.Second
	// DefaultMaxDelay caps the doubling backoff.
	DefaultMaxDelay = 30 * time.Second
)

// FailureKind classifies one failed sink call.
type FailureKind uint8

const (
	// FailureTransient marks failures expected to succeed on retry (network, 5xx, throttling).
	FailureTransient FailureKind = iota
	// FailureFatal marks failures retrying cannot fix (auth, malformed payload, 4xx).
	FailureFatal
)

// String returns lower-case kind name.
func (k FailureKind) String() string {
	switch k {
	case FailureFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// SendError is a classified sink failure.
// Params: failure kind and underlying cause.
// Returns: error value understood by the uploader.
type SendError struct {
	Kind FailureKind
	Err  error
}

// Error returns kind-prefixed cause text.
func (e *SendError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " send failure"
	}
	return e.Kind.String() + " send failure: " + e.Err.Error()
}

// Unwrap returns underlying cause.
func (e *SendError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
// Params: err sink failure cause.
// Returns: classified error or nil for nil input.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{Kind: FailureTransient, Err: err}
}

// Fatal marks err as non-retryable.
// Params: err sink failure cause.
// Returns: classified error or nil for nil input.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{Kind: FailureFatal, Err: err}
}

// ClassifyFailure resolves failure kind for a non-nil sink error.
// Params: err sink error.
// Returns: classified kind; unclassified errors count as transient.
func ClassifyFailure(err error) FailureKind {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Kind
	}
	return FailureTransient
}

var (
	// ErrFatalDelivery matches uploads aborted on a fatal sink failure.
	ErrFatalDelivery = errors.New("fatal delivery failure")
	// ErrRetriesExhausted matches uploads that ran out of attempts on transient failures.
	ErrRetriesExhausted = errors.New("delivery retries exhausted")
)

// DeliveryKind identifies terminal upload failure.
type DeliveryKind uint8

const (
	// DeliveryFatal means the upload aborted without retrying.
	DeliveryFatal DeliveryKind = iota
	// DeliveryRetriesExhausted means every attempt failed transiently.
	DeliveryRetriesExhausted
)

// DeliveryError is the terminal outcome of a failed upload.
// Params: kind, attempts made, and last sink error.
// Returns: error matching ErrFatalDelivery or ErrRetriesExhausted via errors.Is.
type DeliveryError struct {
	Kind     DeliveryKind
	Attempts int
	Cause    error
}

// Error describes terminal failure with attempt count.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.sentinel().Error(), e.Attempts, e.Cause)
}

// Unwrap returns last sink error.
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinel.
func (e *DeliveryError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *DeliveryError) sentinel() error {
	if e.Kind == DeliveryRetriesExhausted {
		return ErrRetriesExhausted
	}
	return ErrFatalDelivery
}

// RetryPolicy bounds upload attempts and backoff.
// Params: max attempts, first delay, and delay cap.
// Returns: retry policy value.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns 5 attempts with 1s doubling delay capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
	}
}

// normalized fills unset fields with defaults.
// Params: none.
// Returns: usable policy.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p
}

// Delay returns the wait after failed attempt n (1-based).
// Params: attempt number that just failed.
// Returns: InitialDelay*2^(n-1) capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		if delay >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
