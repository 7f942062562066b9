package crm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
		notFound  bool
	}{
		{"transient", &TransientError{StatusCode: 503, Message: "unavailable"}, true, false, false},
		{"rate limit", &RateLimitError{RetryAfter: time.Second}, true, false, false},
		{"auth", &AuthError{StatusCode: 401, Message: "bad token"}, false, true, false},
		{"validation", &ValidationError{StatusCode: 400, Message: "bad payload"}, false, true, false},
		{"not found", &NotFoundError{ID: "123"}, false, false, true},
		{"conflict", &ForwardReferenceError{CanonicalID: "456"}, false, false, false},
		{"plain", errors.New("boom"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient = %v, want %v", got, tt.transient)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tt.fatal)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
		})
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("merging 2 into 1: %w", &ForwardReferenceError{CanonicalID: "99"})
	fr, ok := AsForwardReference(wrapped)
	if !ok {
		t.Fatal("expected wrapped forward-reference error to be recognized")
	}
	if fr.CanonicalID != "99" {
		t.Errorf("CanonicalID = %q, want %q", fr.CanonicalID, "99")
	}

	if !IsTransient(fmt.Errorf("call failed: %w", &TransientError{StatusCode: 500})) {
		t.Error("wrapped transient error should classify as transient")
	}
	if !IsFatal(fmt.Errorf("call failed: %w", &AuthError{StatusCode: 403})) {
		t.Error("wrapped auth error should classify as fatal")
	}
}

func TestIsRateLimit(t *testing.T) {
	wait, ok := IsRateLimit(&RateLimitError{RetryAfter: 7 * time.Second})
	if !ok || wait != 7*time.Second {
		t.Errorf("IsRateLimit = (%v, %v), want (7s, true)", wait, ok)
	}
	if _, ok := IsRateLimit(errors.New("boom")); ok {
		t.Error("plain error should not classify as rate limit")
	}
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !Canceled(ctx.Err()) {
		t.Error("context.Canceled should classify as canceled")
	}
	if Canceled(&TransientError{StatusCode: 500}) {
		t.Error("transient error should not classify as canceled")
	}
}
