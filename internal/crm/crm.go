// Package crm defines the collaborator interfaces the engine consumes (the
// remote record store and the contact index) together with the error
// taxonomy every adapter must map into. The engine never sees HTTP; it sees
// these interfaces and these errors.
package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/halvari/crmdedup/internal/types"
)

// RecordStore is the remote CRM store. Implementations must be safe for
// concurrent use: the resolver and executor call them from multiple
// goroutines.
type RecordStore interface {
	// FetchAll streams every company page by page, calling fn for each page.
	// Returning a non-nil error from fn stops the iteration and is returned
	// unchanged. There is no mid-stream resume: a failed fetch restarts from
	// the beginning.
	FetchAll(ctx context.Context, fn func(records []types.Record) error) error

	// ResolveAlias reports whether id is live, merged into another record,
	// or unknown to the store.
	ResolveAlias(ctx context.Context, id string) (AliasResolution, error)

	// Merge absorbs mergeeID into primaryID. A nil return means the store
	// accepted the merge; failures come back as the typed errors below.
	Merge(ctx context.Context, primaryID, mergeeID string) error
}

// ContactIndex supplies the email domains of the contacts associated with a
// company, for the contact-email-domain match strategy.
type ContactIndex interface {
	DomainsFor(ctx context.Context, recordID string) ([]string, error)
}

// AliasState classifies a single alias lookup
type AliasState string

const (
	// AliasLive means the ID is the live record itself
	AliasLive AliasState = "live"
	// AliasRedirects means the ID has been merged into RedirectsTo
	AliasRedirects AliasState = "redirects"
	// AliasNotFound means the store does not know the ID
	AliasNotFound AliasState = "not-found"
)

// AliasResolution is the result of one ResolveAlias call
type AliasResolution struct {
	State       AliasState
	RedirectsTo string // set when State == AliasRedirects
}

// ForwardReferenceError is the store refusing a merge because the chain has
// shifted: one side of the pair is no longer canonical. CanonicalID carries
// the ID the store names as currently canonical when it can be parsed from
// the response, otherwise "".
type ForwardReferenceError struct {
	CanonicalID string
	Message     string
}

func (e *ForwardReferenceError) Error() string {
	if e.CanonicalID != "" {
		return fmt.Sprintf("merge conflict: forward reference to %s", e.CanonicalID)
	}
	return fmt.Sprintf("merge conflict: %s", e.Message)
}

// NotFoundError means the store does not know the requested ID
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s not found", e.ID)
}

// RateLimitError means the store asked us to slow down. RetryAfter is the
// server-provided wait when present, zero otherwise.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// TransientError covers infrastructure failures worth retrying: timeouts,
// connection resets, 5xx-equivalent responses.
type TransientError struct {
	StatusCode int
	Message    string
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient store error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transient store error: %s", e.Message)
}

// AuthError means the token is missing, expired, or lacks scopes. Never
// retried: it aborts the run.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// ValidationError is a non-conflict 4xx: the request itself is wrong. Never
// retried: it aborts the run.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store rejected request (status %d): %s", e.StatusCode, e.Message)
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	var rl *RateLimitError
	return errors.As(err, &te) || errors.As(err, &rl)
}

// IsRateLimit reports whether err is a rate-limit response, and the
// server-requested wait when there is one.
func IsRateLimit(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var ae *AuthError
	var ve *ValidationError
	return errors.As(err, &ae) || errors.As(err, &ve)
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// AsForwardReference extracts a chain-conflict error when err is one.
func AsForwardReference(err error) (*ForwardReferenceError, bool) {
	var fr *ForwardReferenceError
	if errors.As(err, &fr) {
		return fr, true
	}
	return nil, false
}

// Canceled reports context cancellation, which is never retried and never
// fatal: it is the caller stopping the run.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
