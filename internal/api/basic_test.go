package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"whoami-api/internal/introspect"
	"whoami-api/internal/metrics"
	"whoami-api/internal/store"
)

func newTestMux(t *testing.T, d Deps) *http.ServeMux {
	t.Helper()
	return BuildRoutes(d)
}

func do(t *testing.T, h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func proxiedRequest(path string) *http.Request {
	r := httptest.NewRequest("GET", "http://svc.test"+path, nil)
	r.RemoteAddr = "198.51.100.9:40000"
	r.Header.Set("User-Agent", "curl/8.5.0")
	r.Header.Set("Accept", "application/json")
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Set("X-Api-Key", "k")
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	r.Header.Set("Cf-Ipcountry", "JP")
	r.Header.Set("Cookie", "session=abc; theme=dark")
	return r
}

func TestWhoami(t *testing.T) {
	mux := newTestMux(t, Deps{})
	rec := do(t, mux, proxiedRequest("/whoami"))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var got struct {
		IP      string            `json:"ip"`
		Country *string           `json:"country"`
		Cookies map[string]string `json:"cookies"`
		Headers map[string]string `json:"headers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.IP != "198.51.100.9" {
		t.Errorf("ip = %q", got.IP)
	}
	if got.Country == nil || *got.Country != "JP" {
		t.Errorf("country = %v", got.Country)
	}
	if diff := cmp.Diff(map[string]string{"session": "abc", "theme": "dark"}, got.Cookies); diff != "" {
		t.Errorf("cookies mismatch (-want +got):\n%s", diff)
	}
	wantHeaders := map[string]string{
		"host":            "svc.test",
		"user-agent":      "curl/8.5.0",
		"accept":          "application/json",
		"x-forwarded-for": "1.2.3.4, 5.6.7.8",
	}
	if diff := cmp.Diff(wantHeaders, got.Headers); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
}

func TestIP(t *testing.T) {
	mux := newTestMux(t, Deps{})
	tests := []struct {
		name   string
		mutate func(*http.Request)
		want   string
	}{
		{"socket wins over forwarded-for", func(r *http.Request) {}, "198.51.100.9"},
		{"x-real-ip first", func(r *http.Request) { r.Header.Set("X-Real-Ip", "203.0.113.5") }, "203.0.113.5"},
		{"malformed x-real-ip skipped", func(r *http.Request) { r.Header.Set("X-Real-Ip", "not-an-ip") }, "198.51.100.9"},
		{"forwarded-for without socket", func(r *http.Request) { r.RemoteAddr = "" }, "1.2.3.4"},
		{"default", func(r *http.Request) { r.RemoteAddr = ""; r.Header.Del("X-Forwarded-For") }, "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := proxiedRequest("/ip")
			tt.mutate(r)
			rec := do(t, mux, r)
			if rec.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.want)
			}
			if ct := rec.Header().Get("content-type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("content-type = %q", ct)
			}
		})
	}
}

func TestIPUsesConfiguredPrecedence(t *testing.T) {
	res, err := introspect.ParsePrecedence("x-forwarded-for,remote")
	if err != nil {
		t.Fatal(err)
	}
	mux := newTestMux(t, Deps{Builder: introspect.NewBuilder(res)})
	for _, path := range []string{"/ip", "/whoami", "/ip-info"} {
		rec := do(t, mux, proxiedRequest(path))
		if !strings.Contains(rec.Body.String(), "1.2.3.4") {
			t.Errorf("%s body = %q, want forwarded-for address", path, rec.Body.String())
		}
	}
}

func TestHeadersGeneralMode(t *testing.T) {
	mux := newTestMux(t, Deps{})
	before := testutil.ToFloat64(metrics.HeadersDroppedTotal.WithLabelValues("sensitive", "general"))
	rec := do(t, mux, proxiedRequest("/headers"))
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"host":       "svc.test",
		"user-agent": "curl/8.5.0",
		"accept":     "application/json",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	after := testutil.ToFloat64(metrics.HeadersDroppedTotal.WithLabelValues("sensitive", "general"))
	if after-before != 3 {
		t.Errorf("dropped sensitive headers counted %v, want 3", after-before)
	}
}

func TestUserAgent(t *testing.T) {
	mux := newTestMux(t, Deps{})
	if got := do(t, mux, proxiedRequest("/user-agent")).Body.String(); got != "curl/8.5.0" {
		t.Errorf("user-agent = %q", got)
	}
	r := proxiedRequest("/user-agent")
	r.Header.Del("User-Agent")
	if got := do(t, mux, r).Body.String(); got != "Unknown" {
		t.Errorf("missing user-agent = %q", got)
	}
}

func TestEcho(t *testing.T) {
	mux := newTestMux(t, Deps{})
	rec := do(t, mux, proxiedRequest("/echo?a=1"))
	var got echoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := echoResponse{
		Method:  "GET",
		Query:   map[string]string{},
		Headers: map[string]string{"host": "svc.test", "user-agent": "curl/8.5.0", "accept": "application/json"},
		Body:    "",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("echo mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(rec.Body.String(), `"query":{}`) {
		t.Errorf("query not serialized as empty object: %s", rec.Body.String())
	}
}

func TestNonGetRejected(t *testing.T) {
	mux := newTestMux(t, Deps{})
	for _, path := range []string{"/whoami", "/ip", "/headers", "/user-agent", "/echo"} {
		rec := do(t, mux, httptest.NewRequest("POST", path, strings.NewReader("x")))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s code = %d", path, rec.Code)
		}
	}
}

func TestIPInfoUnknownWithoutProviders(t *testing.T) {
	mux := newTestMux(t, Deps{})
	rec := do(t, mux, proxiedRequest("/ip-info"))
	var got ipInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := ipInfoResponse{IP: "198.51.100.9", City: "Unknown", Region: "Unknown", Country: "Unknown", ASN: "Unknown", Org: "Unknown"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ip-info mismatch (-want +got):\n%s", diff)
	}
}

type stubStats struct {
	seen    chan string
	release chan struct{}
	totals  *store.Totals
	err     error
}

func newStubStats(totals *store.Totals) *stubStats {
	return &stubStats{seen: make(chan string, 16), totals: totals}
}

func (s *stubStats) IncrStats(ctx context.Context, route string) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.seen <- route
	return nil
}

func (s *stubStats) GetTotals(context.Context) (*store.Totals, error) {
	return s.totals, s.err
}

// recorded：等待后台计数写入 n 条，按路由排序返回
func (s *stubStats) recorded(t *testing.T, n int) []string {
	t.Helper()
	var out []string
	for len(out) < n {
		select {
		case route := <-s.seen:
			out = append(out, route)
		case <-time.After(2 * time.Second):
			t.Fatalf("recorded %v, want %d routes", out, n)
		}
	}
	sort.Strings(out)
	return out
}

func TestStats(t *testing.T) {
	st := newStubStats(&store.Totals{Total: 10, Today: 2, Routes: map[string]int64{"/ip": 2}})
	mux := newTestMux(t, Deps{Stats: st})
	do(t, mux, proxiedRequest("/ip"))
	rec := do(t, mux, proxiedRequest("/stats"))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if diff := cmp.Diff([]string{"/ip", "/stats"}, st.recorded(t, 2)); diff != "" {
		t.Errorf("recorded routes mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(rec.Body.String(), `"total":10`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	st.err = errors.New("down")
	if rec := do(t, mux, proxiedRequest("/stats")); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failing store code = %d", rec.Code)
	}
	if rec := do(t, newTestMux(t, Deps{}), proxiedRequest("/stats")); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured store code = %d", rec.Code)
	}
}

func TestStatsWriteDoesNotDelayResponse(t *testing.T) {
	st := newStubStats(nil)
	st.release = make(chan struct{})
	mux := newTestMux(t, Deps{Stats: st})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- do(t, mux, proxiedRequest("/ip")) }()
	select {
	case rec := <-done:
		if rec.Body.String() != "198.51.100.9" {
			t.Errorf("body = %q", rec.Body.String())
		}
	case <-time.After(time.Second):
		t.Fatal("response waited for the stats store")
	}

	close(st.release)
	if diff := cmp.Diff([]string{"/ip"}, st.recorded(t, 1)); diff != "" {
		t.Errorf("recorded routes mismatch (-want +got):\n%s", diff)
	}
}
