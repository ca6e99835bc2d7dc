// =============================================================================
// QBO Sales Receipt Extractor - Receipt Fetcher
// =============================================================================
//
// This module retrieves every SalesReceipt whose TxnDate falls inside the
// query window, one bounded page at a time.
//
// PAGINATION:
//   The query endpoint does not report a total count. Pages are requested
//   with STARTPOSITION/MAXRESULTS until a page comes back shorter than the
//   page size. Pages are concatenated in request order; nothing is re-sorted.
//
// FAILURES:
//   - Transport errors, timeouts, 5xx and 429 are retried with exponential
//     backoff, MaxRetries times per page.
//   - A 401 triggers one re-authorization and one retry of the same page.
//   - Anything else (other 4xx, a Fault body, a body without QueryResponse)
//     is a FetchError.
//   A FetchError aborts the whole fetch; no partial result is returned.
//
// =============================================================================

package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/session"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// Authorizer supplies grants for API calls. *session.Manager implements it.
type Authorizer interface {
	EnsureAuthorized(ctx context.Context) (session.Grant, error)
	Reauthorize(ctx context.Context) (session.Grant, error)
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Fetcher.
type Options struct {
	// BaseURL is the API host, e.g. config.SandboxBaseURL. Required.
	BaseURL string

	// RealmID is the company id. Required.
	RealmID string

	// PageSize is the MAXRESULTS of each page. Default: 100
	PageSize int

	// MaxRetries is the number of retries after a transient failure.
	// Negative disables retries. Default: 3
	MaxRetries int

	// Backoff is the first retry delay, doubled for each further retry.
	// Default: 500ms
	Backoff time.Duration

	// MinorVersion is the API minor version. Default: 65
	MinorVersion int

	// HTTPClient performs the requests. Default: client with a 30s timeout.
	HTTPClient *http.Client

	// Logger receives page level messages.
	Logger logrus.FieldLogger

	// Sleep waits between retries. Default: a context aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Stats describes the last FetchReceipts call.
type Stats struct {
	Pages      int
	Requests   int
	Retries    int
	Duplicates int
}

// Fetcher issues windowed SalesReceipt queries.
type Fetcher struct {
	opts  Options
	stats Stats
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff == 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.MinorVersion == 0 {
		opts.MinorVersion = 65
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Fetcher{opts: opts}
}

// Stats returns the counters of the last FetchReceipts call.
func (f *Fetcher) Stats() Stats {
	return f.stats
}

// =============================================================================
// FETCHING
// =============================================================================

// FetchReceipts returns every receipt in the window, in remote order.
//
// Errors are either a *FetchError or the *session.AuthError of a failed
// (re-)authorization.
func (f *Fetcher) FetchReceipts(ctx context.Context, window types.QueryWindow, auth Authorizer) ([]types.SalesReceipt, error) {
	f.stats = Stats{}

	var receipts []types.SalesReceipt
	seen := make(map[string]bool)

	for start := 1; ; start += f.opts.PageSize {
		page, err := f.fetchPage(ctx, window, start, auth)
		if err != nil {
			return nil, err
		}
		f.stats.Pages++

		for _, r := range page {
			if r.ID != "" && seen[r.ID] {
				f.stats.Duplicates++
				f.opts.Logger.WithField("receipt_id", r.ID).Warn("receipt returned on more than one page, keeping the first")
				continue
			}
			seen[r.ID] = true
			receipts = append(receipts, r)
		}

		f.opts.Logger.WithFields(logrus.Fields{
			"start": start,
			"count": len(page),
		}).Debug("fetched receipt page")

		if len(page) < f.opts.PageSize {
			break
		}
	}

	return receipts, nil
}

// fetchPage retrieves one page, applying the retry and re-authorization
// policy.
func (f *Fetcher) fetchPage(ctx context.Context, window types.QueryWindow, start int, auth Authorizer) ([]types.SalesReceipt, error) {
	query := BuildQuery(window, start, f.opts.PageSize)
	reauthorized := false
	retries := 0
	attempts := 0

	for {
		grant, err := auth.EnsureAuthorized(ctx)
		if err != nil {
			return nil, err
		}

		attempts++
		f.stats.Requests++
		status, body, err := f.do(ctx, query, grant)

		var transient error
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, &FetchError{StartPosition: start, Attempts: attempts, Cause: ctx.Err()}
			}
			transient = err

		case status == http.StatusUnauthorized:
			if reauthorized {
				return nil, &FetchError{StartPosition: start, StatusCode: status, Attempts: attempts, Detail: faultDetail(body), Cause: ErrUnauthorized}
			}
			f.opts.Logger.WithField("start", start).Info("access token rejected, re-authorizing")
			if _, err := auth.Reauthorize(ctx); err != nil {
				return nil, err
			}
			reauthorized = true
			continue

		case status >= 500 || status == http.StatusTooManyRequests:
			transient = fmt.Errorf("server returned status %d", status)

		case status != http.StatusOK:
			return nil, &FetchError{StartPosition: start, StatusCode: status, Attempts: attempts, Detail: faultDetail(body)}

		default:
			page, err := parsePage(body)
			if err != nil {
				return nil, &FetchError{StartPosition: start, StatusCode: status, Attempts: attempts, Detail: faultDetail(body), Cause: err}
			}
			return page, nil
		}

		if retries >= f.opts.MaxRetries {
			return nil, &FetchError{StartPosition: start, StatusCode: status, Attempts: attempts, Cause: transient}
		}
		delay := f.opts.Backoff << retries
		retries++
		f.stats.Retries++
		f.opts.Logger.WithFields(logrus.Fields{
			"start": start,
			"retry": retries,
			"delay": delay.String(),
			"error": transient.Error(),
		}).Warn("transient fetch failure, retrying")
		if err := f.opts.Sleep(ctx, delay); err != nil {
			return nil, &FetchError{StartPosition: start, StatusCode: status, Attempts: attempts, Cause: err}
		}
	}
}

// do performs one query request. A non-nil error means no response was read.
func (f *Fetcher) do(ctx context.Context, query string, grant session.Grant) (int, []byte, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("minorversion", strconv.Itoa(f.opts.MinorVersion))
	endpoint := fmt.Sprintf("%s/v3/company/%s/query?%s", f.opts.BaseURL, url.PathEscape(f.opts.RealmID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create query request: %w", err)
	}
	grant.Apply(req)
	req.Header.Set("Accept", "application/json")

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("query request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			f.opts.Logger.WithError(err).Debug("failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read query response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// =============================================================================
// QUERY AND RESPONSE SHAPE
// =============================================================================

// BuildQuery returns the query statement for one page of the window.
func BuildQuery(window types.QueryWindow, start, pageSize int) string {
	return fmt.Sprintf(
		"select * from SalesReceipt where TxnDate >= '%s' and TxnDate <= '%s' ORDERBY TxnDate STARTPOSITION %d MAXRESULTS %d",
		window.StartDate(), window.EndDate(), start, pageSize,
	)
}

// parsePage decodes the receipts of a 200 response.
func parsePage(body []byte) ([]types.SalesReceipt, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrUnexpectedResponse)
	}
	if gjson.GetBytes(body, "Fault").Exists() {
		return nil, fmt.Errorf("%w: fault in response", ErrUnexpectedResponse)
	}

	qr := gjson.GetBytes(body, "QueryResponse")
	if !qr.IsObject() {
		return nil, fmt.Errorf("%w: missing QueryResponse", ErrUnexpectedResponse)
	}

	items := qr.Get("SalesReceipt")
	if !items.Exists() {
		// An empty result omits the entity key.
		return nil, nil
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: SalesReceipt is not an array", ErrUnexpectedResponse)
	}

	var receipts []types.SalesReceipt
	var decodeErr error
	items.ForEach(func(_, item gjson.Result) bool {
		var r types.SalesReceipt
		if err := json.Unmarshal([]byte(item.Raw), &r); err != nil {
			decodeErr = fmt.Errorf("%w: receipt %s: %v", ErrUnexpectedResponse, item.Get("Id").String(), err)
			return false
		}
		r.Raw = json.RawMessage(item.Raw)
		receipts = append(receipts, r)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return receipts, nil
}

// faultDetail extracts a readable message from a Fault body.
func faultDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	fault := gjson.GetBytes(body, "Fault.Error.0")
	if !fault.Exists() {
		return ""
	}
	parts := []string{}
	for _, key := range []string{"Message", "Detail"} {
		if v := fault.Get(key).String(); v != "" {
			parts = append(parts, v)
		}
	}
	if code := fault.Get("code").String(); code != "" {
		parts = append(parts, "code "+code)
	}
	return strings.Join(parts, "; ")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
