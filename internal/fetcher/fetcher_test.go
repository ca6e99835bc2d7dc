package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/qbo-sales-receipts/internal/session"
	"github.com/ginjaninja78/qbo-sales-receipts/internal/types"
)

// fakeAuth counts authorization calls.
type fakeAuth struct {
	ensured     int
	reauthed    int
	reauthError error
}

func (a *fakeAuth) EnsureAuthorized(context.Context) (session.Grant, error) {
	a.ensured++
	return session.Grant{}, nil
}

func (a *fakeAuth) Reauthorize(context.Context) (session.Grant, error) {
	a.reauthed++
	if a.reauthError != nil {
		return session.Grant{}, a.reauthError
	}
	return session.Grant{}, nil
}

var pageRe = regexp.MustCompile(`STARTPOSITION (\d+) MAXRESULTS (\d+)`)

// queryServer serves ids in pages. handle may override the reply of the
// n-th request (1-based) by returning true.
type queryServer struct {
	*httptest.Server
	hits   atomic.Int32
	starts []int
}

func newQueryServer(t *testing.T, ids []string, handle func(n int, w http.ResponseWriter) bool) *queryServer {
	t.Helper()
	qs := &queryServer{}
	qs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(qs.hits.Add(1))
		if r.URL.Path != "/v3/company/123/query" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("minorversion"); got != "65" {
			t.Errorf("minorversion = %q, want 65", got)
		}
		if handle != nil && handle(n, w) {
			return
		}

		m := pageRe.FindStringSubmatch(r.URL.Query().Get("query"))
		if m == nil {
			t.Errorf("query without paging: %q", r.URL.Query().Get("query"))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		start, _ := strconv.Atoi(m[1])
		size, _ := strconv.Atoi(m[2])
		qs.starts = append(qs.starts, start)

		var page []map[string]any
		for i := start - 1; i < len(ids) && i < start-1+size; i++ {
			page = append(page, map[string]any{
				"Id":       ids[i],
				"TxnDate":  "2024-06-01",
				"TotalAmt": 10.5,
			})
		}
		resp := map[string]any{"QueryResponse": map[string]any{}, "time": "2024-06-02T10:00:00-07:00"}
		if len(page) > 0 {
			resp["QueryResponse"] = map[string]any{"SalesReceipt": page, "startPosition": start, "maxResults": len(page)}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(qs.Close)
	return qs
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testWindow() types.QueryWindow {
	w, _ := types.NewQueryWindow(time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC), 30)
	return w
}

func newTestFetcher(qs *queryServer, pageSize int, delays *[]time.Duration) *Fetcher {
	return New(Options{
		BaseURL:    qs.URL,
		RealmID:    "123",
		PageSize:   pageSize,
		MaxRetries: 2,
		Backoff:    10 * time.Millisecond,
		HTTPClient: qs.Client(),
		Logger:     quietLogger(),
		Sleep: func(_ context.Context, d time.Duration) error {
			if delays != nil {
				*delays = append(*delays, d)
			}
			return nil
		},
	})
}

func receiptIDs(rs []types.SalesReceipt) []string {
	var ids []string
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("r%d", i+1)
	}
	return ids
}

func TestFetchReceiptsPagination(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		pageSize   int
		wantStarts []int
	}{
		{name: "PartialLastPage", total: 5, pageSize: 2, wantStarts: []int{1, 3, 5}},
		{name: "ExactMultiple", total: 4, pageSize: 2, wantStarts: []int{1, 3, 5}},
		{name: "SinglePage", total: 3, pageSize: 100, wantStarts: []int{1}},
		{name: "Empty", total: 0, pageSize: 100, wantStarts: []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := makeIDs(tt.total)
			qs := newQueryServer(t, ids, nil)
			f := newTestFetcher(qs, tt.pageSize, nil)
			auth := &fakeAuth{}

			got, err := f.FetchReceipts(context.Background(), testWindow(), auth)
			if err != nil {
				t.Fatalf("FetchReceipts() error = %v", err)
			}
			if diff := cmp.Diff(ids, receiptIDs(got), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("receipt ids mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantStarts, qs.starts); diff != "" {
				t.Errorf("start positions mismatch (-want +got):\n%s", diff)
			}
			if f.Stats().Pages != len(tt.wantStarts) {
				t.Errorf("Stats().Pages = %d, want %d", f.Stats().Pages, len(tt.wantStarts))
			}
			if auth.ensured != len(tt.wantStarts) {
				t.Errorf("EnsureAuthorized calls = %d, want one per page", auth.ensured)
			}
		})
	}
}

func TestFetchReceiptsKeepsRawAndAmounts(t *testing.T) {
	qs := newQueryServer(t, []string{"42"}, nil)
	f := newTestFetcher(qs, 10, nil)

	got, err := f.FetchReceipts(context.Background(), testWindow(), &fakeAuth{})
	if err != nil {
		t.Fatalf("FetchReceipts() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d receipts, want 1", len(got))
	}
	if got[0].TotalAmt.String() != "10.5" {
		t.Errorf("TotalAmt = %s, want 10.5", got[0].TotalAmt)
	}
	var raw map[string]any
	if err := json.Unmarshal(got[0].Raw, &raw); err != nil || raw["Id"] != "42" {
		t.Errorf("Raw = %s, want original entity", got[0].Raw)
	}
}

func TestFetchReceiptsDropsDuplicateIDs(t *testing.T) {
	// r2 shifts onto the second page between requests.
	qs := newQueryServer(t, []string{"r1", "r2", "r2", "r3"}, nil)
	f := newTestFetcher(qs, 2, nil)

	got, err := f.FetchReceipts(context.Background(), testWindow(), &fakeAuth{})
	if err != nil {
		t.Fatalf("FetchReceipts() error = %v", err)
	}
	if diff := cmp.Diff([]string{"r1", "r2", "r3"}, receiptIDs(got)); diff != "" {
		t.Errorf("receipt ids mismatch (-want +got):\n%s", diff)
	}
	if f.Stats().Duplicates != 1 {
		t.Errorf("Stats().Duplicates = %d, want 1", f.Stats().Duplicates)
	}
}

func TestFetchReceiptsRetriesTransientFailures(t *testing.T) {
	qs := newQueryServer(t, makeIDs(1), func(n int, w http.ResponseWriter) bool {
		switch n {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
			return true
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
			return true
		}
		return false
	})
	var delays []time.Duration
	f := newTestFetcher(qs, 10, &delays)

	got, err := f.FetchReceipts(context.Background(), testWindow(), &fakeAuth{})
	if err != nil {
		t.Fatalf("FetchReceipts() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d receipts, want 1", len(got))
	}
	if diff := cmp.Diff([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays); diff != "" {
		t.Errorf("backoff delays mismatch (-want +got):\n%s", diff)
	}
	if f.Stats().Retries != 2 {
		t.Errorf("Stats().Retries = %d, want 2", f.Stats().Retries)
	}
}

func TestFetchReceiptsFailsAfterRetries(t *testing.T) {
	// The first page succeeds; the second fails on every attempt.
	qs := newQueryServer(t, makeIDs(4), func(n int, w http.ResponseWriter) bool {
		if n == 1 {
			return false
		}
		w.WriteHeader(http.StatusBadGateway)
		return true
	})
	f := newTestFetcher(qs, 2, nil)

	got, err := f.FetchReceipts(context.Background(), testWindow(), &fakeAuth{})
	if got != nil {
		t.Errorf("got %d receipts, want none on failure", len(got))
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fetchErr.StartPosition != 3 || fetchErr.Attempts != 3 || fetchErr.StatusCode != http.StatusBadGateway {
		t.Errorf("FetchError = %+v, want start 3, 3 attempts, status 502", fetchErr)
	}
	if got := qs.hits.Load(); got != 4 {
		t.Errorf("requests = %d, want 4", got)
	}
}

func TestFetchReceiptsReauthorizesOnce(t *testing.T) {
	t.Run("RecoversAfterReauth", func(t *testing.T) {
		qs := newQueryServer(t, makeIDs(1), func(n int, w http.ResponseWriter) bool {
			if n == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return true
			}
			return false
		})
		auth := &fakeAuth{}
		f := newTestFetcher(qs, 10, nil)

		if _, err := f.FetchReceipts(context.Background(), testWindow(), auth); err != nil {
			t.Fatalf("FetchReceipts() error = %v", err)
		}
		if auth.reauthed != 1 {
			t.Errorf("Reauthorize calls = %d, want 1", auth.reauthed)
		}
	})

	t.Run("EscalatesSecondRejection", func(t *testing.T) {
		qs := newQueryServer(t, makeIDs(1), func(n int, w http.ResponseWriter) bool {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"Fault":{"Error":[{"Message":"message=AuthenticationFailed","Detail":"Token expired","code":"3200"}],"type":"AUTHENTICATION"}}`))
			return true
		})
		auth := &fakeAuth{}
		f := newTestFetcher(qs, 10, nil)

		_, err := f.FetchReceipts(context.Background(), testWindow(), auth)
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("error = %v, want ErrUnauthorized", err)
		}
		if auth.reauthed != 1 {
			t.Errorf("Reauthorize calls = %d, want 1", auth.reauthed)
		}
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.Detail != "message=AuthenticationFailed; Token expired; code 3200" {
			t.Errorf("Detail = %q", fetchErr.Detail)
		}
	})

	t.Run("ReauthFailurePropagates", func(t *testing.T) {
		qs := newQueryServer(t, makeIDs(1), func(n int, w http.ResponseWriter) bool {
			w.WriteHeader(http.StatusUnauthorized)
			return true
		})
		authErr := &session.AuthError{StatusCode: 400, Code: "invalid_grant"}
		f := newTestFetcher(qs, 10, nil)

		_, err := f.FetchReceipts(context.Background(), testWindow(), &fakeAuth{reauthError: authErr})
		if !session.IsAuthError(err) {
			t.Fatalf("error = %v, want *session.AuthError", err)
		}
	})
}

func TestFetchReceiptsRejectsUnexpectedShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "MissingQueryResponse", status: 200, body: `{"time":"now"}`},
		{name: "NotJSON", status: 200, body: `<html>maintenance</html>`},
		{name: "FaultOn200", status: 200, body: `{"Fault":{"Error":[{"Message":"bad"}]}}`},
		{name: "EntityNotArray", status: 200, body: `{"QueryResponse":{"SalesReceipt":{"Id":"1"}}}`},
		{name: "BadRequest", status: 400, body: `{"Fault":{"Error":[{"Message":"Error parsing query","code":"4000"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs := newQueryServer(t, nil, func(n int, w http.ResponseWriter) bool {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
				return true
			})
			f := newTestFetcher(qs, 10, nil)

			_, err := f.FetchReceipts(context.Background(), testWindow(), &fakeAuth{})
			if !IsFetchError(err) {
				t.Fatalf("error = %v, want *FetchError", err)
			}
			if got := qs.hits.Load(); got != 1 {
				t.Errorf("requests = %d, want 1 (no retry)", got)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	got := BuildQuery(testWindow(), 101, 100)
	want := "select * from SalesReceipt where TxnDate >= '2024-05-31' and TxnDate <= '2024-06-30' ORDERBY TxnDate STARTPOSITION 101 MAXRESULTS 100"
	if got != want {
		t.Errorf("BuildQuery() = %q, want %q", got, want)
	}
}
