// Package hubspot adapts the HubSpot CRM v3 API to the crm.RecordStore and
// crm.ContactIndex interfaces the engine consumes.
//
// # Error mapping
//
// Every non-2xx response becomes one of the typed errors in internal/crm:
// 401/403 map to AuthError, 404 on a record lookup to NotFoundError, 429 to
// RateLimitError carrying any Retry-After hint, 5xx to TransientError, and
// remaining 4xx to ValidationError. A rejected merge whose body names the
// currently canonical record maps to ForwardReferenceError so the executor
// can re-resolve the chain and retry.
//
// # Retry split
//
// Read calls (company pages, alias lookups, contact associations) retry
// transient failures internally up to Config.MaxRetries, honoring Retry-After
// when the server sends one. The merge POST is never retried here: safe merge
// retry interleaves a chain re-resolution between attempts, and that loop
// lives in the executor.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halvari/crmdedup/internal/crm"
	"github.com/halvari/crmdedup/internal/types"
)

const (
	companiesPath = "/crm/v3/objects/companies"
	mergePath     = "/crm/v3/objects/companies/merge"
	batchReadPath = "/crm/v3/objects/contacts/batch/read"

	pageLimit         = 100
	associationsLimit = 500
	batchReadLimit    = 100

	fetchProperties   = "name,domain,createdate,business_id"
	canonicalProperty = "hs_canonical_object_id"

	maxBodyBytes      = 4 << 20
	maxErrorBodyBytes = 512
)

// forwardRefPattern matches the store's merge-conflict message naming the
// record that is currently canonical for one side of the pair.
var forwardRefPattern = regexp.MustCompile(`forward reference to (\d+)`)

// Client talks to one HubSpot portal. Safe for concurrent use; all goroutines
// share the client's rate limiter.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var (
	_ crm.RecordStore  = (*Client)(nil)
	_ crm.ContactIndex = (*Client)(nil)
)

// New returns a Client for the portal cfg points at. logger may be nil.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("hubspot config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		logger:  logger,
	}, nil
}

// FetchAll implements crm.RecordStore. Companies are fetched with cursor
// pagination and handed to fn page by page as they arrive; there is no
// mid-stream resume.
func (c *Client) FetchAll(ctx context.Context, fn func(records []types.Record) error) error {
	after := ""
	pages, total := 0, 0
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(pageLimit))
		q.Set("archived", "false")
		q.Set("properties", fetchProperties)
		if after != "" {
			q.Set("after", after)
		}
		var page companyPage
		if err := c.getJSON(ctx, companiesPath, q, &page, ""); err != nil {
			return fmt.Errorf("fetching companies after cursor %q: %w", after, err)
		}
		pages++
		records := make([]types.Record, 0, len(page.Results))
		for _, obj := range page.Results {
			records = append(records, obj.record())
		}
		total += len(records)
		if len(records) > 0 {
			if err := fn(records); err != nil {
				return err
			}
		}
		if page.Paging == nil || page.Paging.Next == nil || page.Paging.Next.After == "" {
			c.logger.Debug("company fetch complete",
				zap.Int("pages", pages),
				zap.Int("records", total))
			return nil
		}
		after = page.Paging.Next.After
	}
}

// ResolveAlias implements crm.RecordStore. A 404 is a normal outcome here
// (the chain walker treats it as a broken link), so it maps to the not-found
// state rather than an error.
func (c *Client) ResolveAlias(ctx context.Context, id string) (crm.AliasResolution, error) {
	q := url.Values{}
	q.Set("properties", canonicalProperty)
	var obj companyObject
	if err := c.getJSON(ctx, companiesPath+"/"+url.PathEscape(id), q, &obj, id); err != nil {
		if crm.IsNotFound(err) {
			return crm.AliasResolution{State: crm.AliasNotFound}, nil
		}
		return crm.AliasResolution{}, err
	}
	if target := strings.TrimSpace(obj.Properties.Canonical); target != "" && target != id {
		return crm.AliasResolution{State: crm.AliasRedirects, RedirectsTo: target}, nil
	}
	return crm.AliasResolution{State: crm.AliasLive}, nil
}

// Merge implements crm.RecordStore. The call is made exactly once: a 4xx
// naming a forward reference comes back as ForwardReferenceError, every other
// 4xx (including 404, which means the pair diverged from anything we can
// reason about) as a fatal ValidationError.
func (c *Client) Merge(ctx context.Context, primaryID, mergeeID string) error {
	body := mergeRequest{PrimaryObjectID: primaryID, ObjectIDToMerge: mergeeID}
	resp, raw, err := c.roundTrip(ctx, http.MethodPost, mergePath, nil, body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if isPlainClientError(resp.StatusCode) {
		if m := forwardRefPattern.FindSubmatch(raw); m != nil {
			return &crm.ForwardReferenceError{CanonicalID: string(m[1]), Message: errorBody(raw)}
		}
		return &crm.ValidationError{StatusCode: resp.StatusCode, Message: errorBody(raw)}
	}
	return c.apiError(resp, raw, "")
}

// DomainsFor implements crm.ContactIndex: the email domains of every contact
// associated with the company, lower-cased. Duplicates are preserved so
// callers can count dominance.
func (c *Client) DomainsFor(ctx context.Context, recordID string) ([]string, error) {
	ids, err := c.contactIDs(ctx, recordID)
	if err != nil {
		return nil, err
	}
	var domains []string
	for start := 0; start < len(ids); start += batchReadLimit {
		end := start + batchReadLimit
		if end > len(ids) {
			end = len(ids)
		}
		emails, err := c.contactEmails(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, email := range emails {
			if at := strings.LastIndex(email, "@"); at >= 0 && at+1 < len(email) {
				domains = append(domains, strings.ToLower(email[at+1:]))
			}
		}
	}
	return domains, nil
}

// contactIDs pages through the company-to-contact association list.
func (c *Client) contactIDs(ctx context.Context, companyID string) ([]string, error) {
	path := companiesPath + "/" + url.PathEscape(companyID) + "/associations/contacts"
	var ids []string
	after := ""
	for {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(associationsLimit))
		if after != "" {
			q.Set("after", after)
		}
		var page associationPage
		if err := c.getJSON(ctx, path, q, &page, companyID); err != nil {
			return nil, fmt.Errorf("listing contacts for company %s: %w", companyID, err)
		}
		for _, r := range page.Results {
			if r.ID != "" {
				ids = append(ids, r.ID)
			}
		}
		if page.Paging == nil || page.Paging.Next == nil || page.Paging.Next.After == "" {
			return ids, nil
		}
		after = page.Paging.Next.After
	}
}

// contactEmails reads the email property for up to batchReadLimit contacts.
// Contacts without an email are skipped.
func (c *Client) contactEmails(ctx context.Context, contactIDs []string) ([]string, error) {
	if len(contactIDs) == 0 {
		return nil, nil
	}
	req := batchReadRequest{Properties: []string{"email"}}
	for _, id := range contactIDs {
		req.Inputs = append(req.Inputs, batchReadInput{ID: id})
	}
	var page contactPage
	if err := c.readJSON(ctx, http.MethodPost, batchReadPath, nil, req, &page, ""); err != nil {
		return nil, fmt.Errorf("reading contact emails: %w", err)
	}
	emails := make([]string, 0, len(page.Results))
	for _, contact := range page.Results {
		if contact.Properties.Email != "" {
			emails = append(emails, contact.Properties.Email)
		}
	}
	return emails, nil
}

// getJSON performs a GET with the client's transient-retry policy, decoding a
// 2xx body into out. notFoundID names the record a 404 would refer to; leave
// it empty on collection endpoints, where a 404 is a request bug rather than
// a missing record.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any, notFoundID string) error {
	return c.readJSON(ctx, http.MethodGet, path, query, nil, out, notFoundID)
}

// readJSON is the shared retrying read path: GETs plus the contact batch-read
// POST, which is a read despite its verb.
func (c *Client) readJSON(ctx context.Context, method, path string, query url.Values, in, out any, notFoundID string) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, raw, err := c.roundTrip(ctx, method, path, query, in)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("decoding %s response: %w", path, err)
			}
			return nil
		}
		if err == nil {
			err = c.apiError(resp, raw, notFoundID)
		}
		if crm.Canceled(err) || !crm.IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == c.cfg.MaxRetries {
			break
		}
		wait := readBackoff(attempt + 1)
		if retryAfter, ok := crm.IsRateLimit(err); ok && retryAfter > 0 {
			wait = retryAfter
		}
		c.logger.Warn("read failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// roundTrip performs one rate-limited exchange and returns the response with
// its body already read. Network failures map to TransientError unless the
// caller's context was the cause.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, in any) (*http.Response, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &crm.TransientError{Message: err.Error()}
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &crm.TransientError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &crm.TransientError{Message: fmt.Sprintf("reading response: %v", err)}
	}
	return resp, raw, nil
}

// apiError maps a non-2xx response onto the engine's error taxonomy.
func (c *Client) apiError(resp *http.Response, body []byte, notFoundID string) error {
	msg := errorBody(body)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &crm.AuthError{StatusCode: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusNotFound && notFoundID != "":
		return &crm.NotFoundError{ID: notFoundID}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &crm.RateLimitError{RetryAfter: retryAfterHint(resp)}
	case resp.StatusCode >= 500:
		return &crm.TransientError{StatusCode: resp.StatusCode, Message: msg}
	default:
		return &crm.ValidationError{StatusCode: resp.StatusCode, Message: msg}
	}
}

// isPlainClientError reports a 4xx that is neither an auth failure nor a
// rate-limit response. That is the band where a merge rejection can carry
// a forward-reference message.
func isPlainClientError(status int) bool {
	return status >= 400 && status < 500 &&
		status != http.StatusUnauthorized &&
		status != http.StatusForbidden &&
		status != http.StatusTooManyRequests
}

// retryAfterHint parses a Retry-After header, delta-seconds or HTTP-date
// form. Zero means the server gave no usable hint.
func retryAfterHint(resp *http.Response) time.Duration {
	h := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// readBackoff is the wait before read retry n when the server gave no hint:
// 1.5s, 3s, 4.5s, capped at 10s.
func readBackoff(n int) time.Duration {
	wait := time.Duration(n) * 1500 * time.Millisecond
	if wait > 10*time.Second {
		wait = 10 * time.Second
	}
	return wait
}

// errorBody flattens a response body into a single bounded line safe for
// error messages and logs.
func errorBody(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > maxErrorBodyBytes {
		s = s[:maxErrorBodyBytes] + "..."
	}
	return s
}
