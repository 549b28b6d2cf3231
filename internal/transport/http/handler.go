package httptransport

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/repository/postgresql"
	"tag-bridge/internal/setup"
	"tag-bridge/internal/worker"
)

type HealthChecker interface {
	Run(ctx context.Context) setup.Report
}

type StatsProvider interface {
	Stats() worker.Stats
}

// ProfileProvider returns the profile currently used for scoring, or nil.
type ProfileProvider interface {
	Profile() *entity.PreferenceProfile
}

type OutcomeStore interface {
	GetByItemID(ctx context.Context, itemID string) (*entity.Outcome, error)
	ListRecent(ctx context.Context, limit int) ([]entity.Outcome, error)
}

// Handler serves the bridge's status API. Every dependency is optional;
// endpoints whose dependency is missing answer 503.
type Handler struct {
	health   HealthChecker
	stats    StatsProvider
	outcomes OutcomeStore
	profile  ProfileProvider
}

type HandlerOptions struct {
	Health   HealthChecker
	Stats    StatsProvider
	Outcomes OutcomeStore
	Profile  ProfileProvider
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		health:   opts.Health,
		stats:    opts.Stats,
		outcomes: opts.Outcomes,
		profile:  opts.Profile,
	}
}

const maxOutcomeLimit = 500

// Health godoc
// @Summary Setup health
// @Description Runs the setup checks. 503 when a critical check fails.
// @Tags status
// @Produce json
// @Success 200 {object} setup.Report
// @Failure 503 {object} setup.Report
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	rep := h.health.Run(r.Context())
	code := http.StatusOK
	if !rep.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Status godoc
// @Summary Orchestrator counters
// @Tags status
// @Produce json
// @Success 200 {object} worker.Stats
// @Failure 503 {object} apiError
// @Router /status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeErr(w, http.StatusServiceUnavailable, "orchestrator not running")
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Stats())
}

// ListOutcomes godoc
// @Summary Recently processed items
// @Tags outcomes
// @Produce json
// @Param limit query int false "max rows (1..500, default 50)"
// @Success 200 {array} entity.Outcome
// @Failure 400 {object} apiError
// @Failure 503 {object} apiError
// @Router /outcomes [get]
func (h *Handler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeErr(w, http.StatusServiceUnavailable, "outcome ledger disabled")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxOutcomeLimit {
			writeErr(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	out, err := h.outcomes.ListRecent(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "list outcomes failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetOutcome godoc
// @Summary Outcome for one item
// @Tags outcomes
// @Produce json
// @Param id path string true "item id"
// @Success 200 {object} entity.Outcome
// @Failure 404 {object} apiError
// @Failure 503 {object} apiError
// @Router /outcomes/{id} [get]
func (h *Handler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeErr(w, http.StatusServiceUnavailable, "outcome ledger disabled")
		return
	}
	id := chi.URLParam(r, "id")
	o, err := h.outcomes.GetByItemID(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "outcome not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "get outcome failed")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Profile godoc
// @Summary Loaded preference profile
// @Tags profile
// @Produce json
// @Success 200 {object} entity.PreferenceProfile
// @Failure 404 {object} apiError
// @Router /profile [get]
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	var p *entity.PreferenceProfile
	if h.profile != nil {
		p = h.profile.Profile()
	}
	if p == nil {
		writeErr(w, http.StatusNotFound, "no profile loaded")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
