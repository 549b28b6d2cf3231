package httptransport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/repository/postgresql"
	"tag-bridge/internal/setup"
	httptransport "tag-bridge/internal/transport/http"
	"tag-bridge/internal/worker"
)

// ---- fakes ----

type healthStub struct {
	report setup.Report
}

func (h healthStub) Run(ctx context.Context) setup.Report { return h.report }

type statsStub struct {
	stats worker.Stats
}

func (s statsStub) Stats() worker.Stats { return s.stats }

type outcomeStub struct {
	byID      map[string]*entity.Outcome
	recent    []entity.Outcome
	lastLimit int
	err       error
}

func (o *outcomeStub) GetByItemID(ctx context.Context, itemID string) (*entity.Outcome, error) {
	if o.err != nil {
		return nil, o.err
	}
	out, ok := o.byID[itemID]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return out, nil
}

func (o *outcomeStub) ListRecent(ctx context.Context, limit int) ([]entity.Outcome, error) {
	o.lastLimit = limit
	if o.err != nil {
		return nil, o.err
	}
	return o.recent, nil
}

type profileStub struct {
	p *entity.PreferenceProfile
}

func (s *profileStub) Profile() *entity.PreferenceProfile { return s.p }

// ---- helpers ----

func newTestRouter(opts httptransport.HandlerOptions) http.Handler {
	return httptransport.Routes(httptransport.NewHandler(opts), nil)
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func sampleOutcome(id string) entity.Outcome {
	return entity.Outcome{
		ItemID: id,
		JobID:  "job-" + id,
		Record: entity.ResultRecord{
			Tags:           []string{"silk"},
			AestheticScore: 8,
		},
		Decision:    entity.PriorityDecision{Score: 0.82, Disposition: entity.DispositionArchive},
		Reported:    true,
		ProcessedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// ---- tests ----

func TestHTTP_Health_200_WhenHealthy(t *testing.T) {
	router := newTestRouter(httptransport.HandlerOptions{
		Health: healthStub{report: setup.Report{Results: []setup.Result{
			{Name: "engine", OK: true, Critical: true},
			{Name: "profile", OK: false},
		}}},
	})

	rr := get(t, router, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var rep setup.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("invalid json: %v, body=%s", err, rr.Body.String())
	}
	if len(rep.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(rep.Results))
	}
}

func TestHTTP_Health_503_WhenCriticalFails(t *testing.T) {
	router := newTestRouter(httptransport.HandlerOptions{
		Health: healthStub{report: setup.Report{Results: []setup.Result{
			{Name: "engine", OK: false, Critical: true},
		}}},
	})

	rr := get(t, router, "/health")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHTTP_Health_OkWithoutChecker(t *testing.T) {
	rr := get(t, newTestRouter(httptransport.HandlerOptions{}), "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHTTP_Status(t *testing.T) {
	router := newTestRouter(httptransport.HandlerOptions{
		Stats: statsStub{stats: worker.Stats{
			Batches:      3,
			Reported:     7,
			Dispositions: map[entity.Disposition]int{entity.DispositionArchive: 2},
		}},
	})

	rr := get(t, router, "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["reported"] != float64(7) {
		t.Fatalf("expected reported=7, got %v", got["reported"])
	}
	disp, _ := got["dispositions"].(map[string]any)
	if disp["archive"] != float64(2) {
		t.Fatalf("expected archive=2, got %v", got["dispositions"])
	}
}

func TestHTTP_Status_503_WithoutOrchestrator(t *testing.T) {
	rr := get(t, newTestRouter(httptransport.HandlerOptions{}), "/status")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHTTP_GetOutcome(t *testing.T) {
	o := sampleOutcome("pin-1")
	store := &outcomeStub{byID: map[string]*entity.Outcome{"pin-1": &o}}
	router := newTestRouter(httptransport.HandlerOptions{Outcomes: store})

	rr := get(t, router, "/outcomes/pin-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var got entity.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.JobID != "job-pin-1" || got.Decision.Disposition != entity.DispositionArchive {
		t.Fatalf("unexpected outcome: %+v", got)
	}

	rr = get(t, router, "/outcomes/missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHTTP_GetOutcome_500_OnStoreError(t *testing.T) {
	router := newTestRouter(httptransport.HandlerOptions{Outcomes: &outcomeStub{err: errors.New("db down")}})

	rr := get(t, router, "/outcomes/pin-1")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestHTTP_ListOutcomes(t *testing.T) {
	store := &outcomeStub{recent: []entity.Outcome{sampleOutcome("a"), sampleOutcome("b")}}
	router := newTestRouter(httptransport.HandlerOptions{Outcomes: store})

	rr := get(t, router, "/outcomes?limit=2")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if store.lastLimit != 2 {
		t.Fatalf("expected limit=2, got %d", store.lastLimit)
	}
	var got []entity.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(got))
	}

	rr = get(t, router, "/outcomes?limit=abc")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHTTP_Outcomes_503_WhenLedgerDisabled(t *testing.T) {
	router := newTestRouter(httptransport.HandlerOptions{})

	for _, path := range []string{"/outcomes", "/outcomes/x"} {
		rr := get(t, router, path)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rr.Code)
		}
	}
}

func TestHTTP_Profile(t *testing.T) {
	src := &profileStub{p: &entity.PreferenceProfile{LikedTags: []string{"silk"}, TotalLiked: 1}}
	router := newTestRouter(httptransport.HandlerOptions{Profile: src})
	rr := get(t, router, "/profile")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got entity.PreferenceProfile
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.TotalLiked != 1 || len(got.LikedTags) != 1 {
		t.Fatalf("unexpected profile: %+v", got)
	}

	// a reload is visible without rebuilding the handler
	src.p = &entity.PreferenceProfile{LikedTags: []string{"denim", "wool"}, TotalLiked: 3}
	rr = get(t, router, "/profile")
	got = entity.PreferenceProfile{}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got.TotalLiked != 3 || len(got.LikedTags) != 2 {
		t.Fatalf("profile not refreshed: %+v", got)
	}

	rr = get(t, newTestRouter(httptransport.HandlerOptions{Profile: &profileStub{}}), "/profile")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = get(t, newTestRouter(httptransport.HandlerOptions{}), "/profile")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
