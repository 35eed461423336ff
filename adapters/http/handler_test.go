package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/tokengate/adapters/clock"
	tghttp "github.com/artpar/tokengate/adapters/http"
	"github.com/artpar/tokengate/adapters/idgen"
	"github.com/artpar/tokengate/adapters/memory"
	"github.com/artpar/tokengate/app"
	"github.com/artpar/tokengate/domain/quota"
	"github.com/artpar/tokengate/domain/usage"
	"github.com/artpar/tokengate/ports"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// stubCaller returns a fixed completion result.
type stubCaller struct {
	result ports.CompletionResult
	err    error
}

func (c *stubCaller) Complete(ctx context.Context, req ports.CompletionRequest) (ports.CompletionResult, error) {
	if c.err != nil {
		return ports.CompletionResult{}, c.err
	}
	return c.result, nil
}

// syncRecorder writes straight to the ledger so tests see usage
// immediately instead of waiting on batch flushes.
type syncRecorder struct {
	ledger ports.LedgerStore
}

func (r *syncRecorder) Record(rec usage.Record) {
	r.ledger.Append(context.Background(), rec)
}
func (r *syncRecorder) Flush(ctx context.Context) error { return nil }
func (r *syncRecorder) Close() error                    { return nil }

type testServer struct {
	srv    *httptest.Server
	ledger *memory.LedgerStore
	clk    *clock.Fake
	caller *stubCaller
}

func newTestServer(t *testing.T, ledger ports.LedgerStore) *testServer {
	t.Helper()

	memLedger, _ := ledger.(*memory.LedgerStore)
	clk := clock.NewFake(baseTime)
	caller := &stubCaller{result: ports.CompletionResult{
		Content:    "hello",
		Model:      "gpt-4o-mini",
		TokensUsed: 412,
		LatencyMs:  10,
	}}

	svc, err := app.NewAdmissionService(
		app.AdmissionDeps{Ledger: ledger, Clock: clk},
		app.AdmissionConfig{Policy: quota.Policy{Limit: 10000, Window: time.Hour}},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("new admission service: %v", err)
	}

	h := tghttp.NewHandler(tghttp.HandlerDeps{
		Admission: svc,
		Caller:    caller,
		Recorder:  &syncRecorder{ledger: ledger},
		IDs:       idgen.NewSequential("req"),
		Clock:     clk,
	}, zerolog.Nop())

	srv := httptest.NewServer(tghttp.NewRouter(h, zerolog.Nop(), tghttp.RouterConfig{}))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, ledger: memLedger, clk: clk, caller: caller}
}

func seedLedger(t *testing.T, ledger *memory.LedgerStore, identity string, tokens int64, at time.Time) {
	t.Helper()
	rec, err := usage.New("seed-"+at.Format("150405"), identity, tokens, "gpt-4o-mini", "/v1/complete", at)
	if err != nil {
		t.Fatalf("build record: %v", err)
	}
	if err := ledger.Append(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func postCompletion(t *testing.T, ts *testServer, identity, prompt string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"prompt": prompt})
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/v1/complete", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set("X-Forwarded-For", identity)
	}
	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestComplete_AllowedAndRecorded(t *testing.T) {
	ts := newTestServer(t, memory.NewLedgerStore())

	resp := postCompletion(t, ts, "203.0.113.7", "hello")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body tghttp.CompletionResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Content != "hello" || body.TokensUsed != 412 {
		t.Errorf("body = %+v", body)
	}

	if got := ts.ledger.Count("203.0.113.7"); got != 1 {
		t.Errorf("ledger records = %d, want 1", got)
	}

	// The recorded consumption shows up in the usage readout.
	usageResp, err := ts.srv.Client().Get(ts.srv.URL + "/v1/usage/203.0.113.7")
	if err != nil {
		t.Fatalf("usage request: %v", err)
	}
	defer usageResp.Body.Close()
	var u tghttp.UsageResponse
	if err := json.NewDecoder(usageResp.Body).Decode(&u); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if u.TokensUsed != 412 || u.Remaining != 10000-412 || !u.Allowed {
		t.Errorf("usage = %+v", u)
	}
}

func TestComplete_RateLimitedPayload(t *testing.T) {
	ledger := memory.NewLedgerStore()
	seedLedger(t, ledger, "203.0.113.7", 4000, baseTime.Add(-3000*time.Second))
	seedLedger(t, ledger, "203.0.113.7", 4000, baseTime.Add(-1000*time.Second))
	seedLedger(t, ledger, "203.0.113.7", 3000, baseTime.Add(-time.Second))
	ts := newTestServer(t, ledger)

	resp := postCompletion(t, ts, "203.0.113.7", "hello")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}

	var body tghttp.RateLimitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "Rate limit exceeded" {
		t.Errorf("error = %q", body.Error)
	}
	wantMsg := "You have used 11000 tokens in the last hour. Limit is 10000 tokens per hour."
	if body.Message != wantMsg {
		t.Errorf("message = %q, want %q", body.Message, wantMsg)
	}
	if body.TokensUsed != 11000 || body.Limit != 10000 {
		t.Errorf("tokens_used/limit = %d/%d", body.TokensUsed, body.Limit)
	}
	wantReset := baseTime.Add(-3000 * time.Second).Add(time.Hour).Format(time.RFC3339)
	if body.ResetTime != wantReset {
		t.Errorf("reset_time = %q, want %q", body.ResetTime, wantReset)
	}
	if body.RetryAfterSeconds != 600 {
		t.Errorf("retry_after_seconds = %d, want 600", body.RetryAfterSeconds)
	}
	if got := resp.Header.Get("Retry-After"); got != "600" {
		t.Errorf("Retry-After header = %q, want 600", got)
	}

	// Denial consumed nothing.
	if got := ts.ledger.Count("203.0.113.7"); got != 3 {
		t.Errorf("ledger records = %d after denial, want 3", got)
	}
}

func TestComplete_IdentitiesSeparate(t *testing.T) {
	ledger := memory.NewLedgerStore()
	seedLedger(t, ledger, "203.0.113.7", 10000, baseTime.Add(-time.Minute))
	ts := newTestServer(t, ledger)

	denied := postCompletion(t, ts, "203.0.113.7", "hello")
	denied.Body.Close()
	if denied.StatusCode != http.StatusTooManyRequests {
		t.Errorf("saturated identity: status = %d, want 429", denied.StatusCode)
	}

	allowed := postCompletion(t, ts, "198.51.100.1", "hello")
	allowed.Body.Close()
	if allowed.StatusCode != http.StatusOK {
		t.Errorf("fresh identity: status = %d, want 200", allowed.StatusCode)
	}
}

func TestComplete_UpstreamErrorNotRecorded(t *testing.T) {
	ts := newTestServer(t, memory.NewLedgerStore())
	ts.caller.err = errors.New("provider down")

	resp := postCompletion(t, ts, "203.0.113.7", "hello")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if got := ts.ledger.Count("203.0.113.7"); got != 0 {
		t.Errorf("ledger records = %d after failed call, want 0", got)
	}
}

func TestComplete_MissingPrompt(t *testing.T) {
	ts := newTestServer(t, memory.NewLedgerStore())

	resp := postCompletion(t, ts, "203.0.113.7", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestComplete_StorageUnavailable(t *testing.T) {
	ts := newTestServer(t, failingLedger{})

	resp := postCompletion(t, ts, "203.0.113.7", "hello")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var body tghttp.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "storage_unavailable" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestUsage_UnknownIdentity(t *testing.T) {
	ts := newTestServer(t, memory.NewLedgerStore())

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/v1/usage/198.51.100.9")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var u tghttp.UsageResponse
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.TokensUsed != 0 || u.Remaining != 10000 || !u.Allowed {
		t.Errorf("usage = %+v", u)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, memory.NewLedgerStore())

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// failingLedger simulates a storage outage.
type failingLedger struct{}

func (failingLedger) Append(context.Context, usage.Record) error { return ports.ErrStorageUnavailable }
func (failingLedger) SumSince(context.Context, string, time.Time) (int64, error) {
	return 0, ports.ErrStorageUnavailable
}
func (failingLedger) OldestSince(context.Context, string, time.Time) (time.Time, bool, error) {
	return time.Time{}, false, ports.ErrStorageUnavailable
}
func (failingLedger) PurgeOlderThan(context.Context, time.Time) (int64, error) {
	return 0, ports.ErrStorageUnavailable
}
