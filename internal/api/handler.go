package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/smartwallet/internal/domain"
	"github.com/opensource-finance/smartwallet/internal/recommend"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc     *recommend.Service
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new API handler. cache and bus may be nil.
func NewHandler(svc *recommend.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		svc:     svc,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// Health returns server health status. Failing dependencies degrade the
// status but the endpoint still answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventBus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListCards handles GET /api/cards.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.svc.Cards(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to load cards")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

// CreateCard handles POST /api/cards.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req domain.CardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON payload",
		})
		return
	}

	card, err := h.svc.AddCard(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "failed to add card")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"card": card})
}

// GetRules handles GET /api/rules.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.Rules(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to load rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// ReplaceRules handles PUT /api/rules.
func (h *Handler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	var rules domain.RuleSet
	if err := decodeJSON(r, &rules); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON payload",
		})
		return
	}

	if err := h.svc.SaveRules(r.Context(), &rules); err != nil {
		writeServiceError(w, err, "failed to save rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": &rules})
}

// ListApps handles GET /api/apps.
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.Apps(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to load apps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"apps":       apps,
		"categories": domain.Categories(),
	})
}

// SaveApp handles PUT /api/apps/{id}.
func (h *Handler) SaveApp(w http.ResponseWriter, r *http.Request) {
	var app domain.App
	if err := decodeJSON(r, &app); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON payload",
		})
		return
	}
	app.ID = chi.URLParam(r, "id")

	if err := h.svc.SaveApp(r.Context(), &app); err != nil {
		writeServiceError(w, err, "failed to save app")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"app": &app})
}

// Recommend handles POST /api/recommendation.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var input domain.TransactionInput
	if err := decodeJSON(r, &input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON payload",
		})
		return
	}

	result, err := h.svc.Recommend(r.Context(), input, GetTraceID(r.Context()))
	if err != nil {
		writeServiceError(w, err, "failed to build recommendation")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SubmitRecommendation handles POST /api/recommendations/async.
func (h *Handler) SubmitRecommendation(w http.ResponseWriter, r *http.Request) {
	var input domain.TransactionInput
	if err := decodeJSON(r, &input); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON payload",
		})
		return
	}

	record, err := h.svc.Submit(r.Context(), input, GetTraceID(r.Context()))
	if err != nil {
		writeServiceError(w, err, "failed to submit recommendation")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"recommendationId": record.ID,
		"status":           record.Status,
	})
}

// GetRecommendation handles GET /api/recommendations/{id}.
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "recommendation not found",
			})
			return
		}
		writeServiceError(w, err, "failed to load recommendation")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListAdvisories handles GET /api/advisories.
func (h *Handler) ListAdvisories(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.Advisories(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to load advisories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"advisories": rules,
		"count":      len(rules),
	})
}

// CreateAdvisoryRequest is the request body for POST /api/advisories.
type CreateAdvisoryRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Expression  string `json:"expression"`
	Message     string `json:"message"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// CreateAdvisory handles POST /api/advisories. Rules are enabled unless
// the request says otherwise.
func (h *Handler) CreateAdvisory(w http.ResponseWriter, r *http.Request) {
	var req CreateAdvisoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON payload",
		})
		return
	}

	rule := &domain.AdvisoryRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     req.Version,
		Expression:  req.Expression,
		Message:     req.Message,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}

	if err := h.svc.SaveAdvisory(r.Context(), rule); err != nil {
		writeServiceError(w, err, "failed to save advisory")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"advisory": rule})
}

// ReloadAdvisories handles POST /api/advisories/reload.
func (h *Handler) ReloadAdvisories(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.ReloadAdvisories(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to reload advisories")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "advisories reloaded successfully",
		"count":   count,
	})
}

// decodeJSON decodes the request body. An empty body decodes as {}.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeServiceError maps sentinel errors to status codes. Unexpected
// errors are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": "),
		})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, recommend.ErrAdvisoriesDisabled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": msg,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
