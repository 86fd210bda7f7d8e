package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/promptbandit/promptbandit/internal/bandit"
	"github.com/promptbandit/promptbandit/internal/observer"
	"github.com/promptbandit/promptbandit/internal/segment"
	"github.com/promptbandit/promptbandit/internal/server"
	"github.com/promptbandit/promptbandit/internal/stats"
	"github.com/promptbandit/promptbandit/internal/store"
	"github.com/promptbandit/promptbandit/internal/testutil"
)

func newTestServer(t *testing.T) (*server.Server, *store.SQLiteStore) {
	t.Helper()
	s := testutil.SetupStore(t)
	logger := testutil.Logger()
	agg := segment.New(s, logger)
	sel := bandit.NewSelector(s, logger, time.Hour)
	obs := observer.New(s, agg, logger)
	return server.New(s, sel, agg, obs, logger, 0), s
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleSelect(t *testing.T) {
	srv, s := newTestServer(t)
	v := testutil.InsertVariant(t, s, "only", 1, 1)

	w := postJSON(t, srv.Handler(), "/api/select", server.SelectRequest{
		SubjectID: "subj-1",
		SessionID: "sess-1",
		Cohort:    &segment.Cohort{Domain: "tech", Tier: "executive", Behavior: "daily", Style: "storyteller"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var resp server.SelectResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.VariantID != v.ID || resp.VariantKey != "only" {
		t.Errorf("response %+v, want the pool's single variant", resp)
	}
	if resp.SelectionID == "" {
		t.Error("selection id missing from response")
	}
	if time.Until(resp.WindowEnd) <= 0 {
		t.Errorf("window end %v not in the future", resp.WindowEnd)
	}
}

func TestHandleSelect_Validation(t *testing.T) {
	srv, s := newTestServer(t)
	testutil.InsertVariant(t, s, "only", 1, 1)

	w := postJSON(t, srv.Handler(), "/api/select", server.SelectRequest{SubjectID: "subj-1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing session_id: status %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/select", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET select: status %d, want 405", rec.Code)
	}
}

func TestHandleSelect_EmptyPool(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/select", server.SelectRequest{
		SubjectID: "subj-1",
		SessionID: "sess-1",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("empty pool: status %d, want 503", w.Code)
	}
}

func TestHandleConvert(t *testing.T) {
	srv, s := newTestServer(t)
	v := testutil.InsertVariant(t, s, "only", 1, 1)

	w := postJSON(t, srv.Handler(), "/api/select", server.SelectRequest{
		SubjectID: "subj-1",
		SessionID: "sess-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("select: status %d", w.Code)
	}

	w = postJSON(t, srv.Handler(), "/api/convert", server.ConvertRequest{
		SubjectID: "subj-1",
		Event:     "replied",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("convert: status %d, want 204", w.Code)
	}

	got, err := s.GetVariant(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Alpha != 2.0 {
		t.Errorf("alpha = %g after conversion, want 2.0", got.Alpha)
	}

	// A conversion with no open window is still a 204.
	w = postJSON(t, srv.Handler(), "/api/convert", server.ConvertRequest{
		SubjectID: "stranger",
		Event:     "replied",
	})
	if w.Code != http.StatusNoContent {
		t.Errorf("unattributed convert: status %d, want 204", w.Code)
	}
}

func TestHandleConvert_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	w := postJSON(t, srv.Handler(), "/api/convert", server.ConvertRequest{SubjectID: "subj-1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing event: status %d, want 400", w.Code)
	}
}

func TestHandleVariants(t *testing.T) {
	srv, s := newTestServer(t)
	testutil.InsertVariant(t, s, "strong", 80, 22)
	testutil.InsertVariant(t, s, "weak", 20, 82)

	req := httptest.NewRequest(http.MethodGet, "/api/variants", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var result stats.Result
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Variants) != 2 {
		t.Fatalf("got %d variants", len(result.Variants))
	}
	if result.Variants[0].Key != "strong" {
		t.Errorf("ranking lost over the wire: %+v", result.Variants)
	}
}

func TestHandleHealth(t *testing.T) {
	srv, s := newTestServer(t)
	testutil.InsertVariant(t, s, "only", 1, 1)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var health server.HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || health.VariantCount != 1 {
		t.Errorf("health %+v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("metrics: status %d", w.Code)
	}
}
