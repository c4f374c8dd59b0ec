package handlers

import (
	"context"
	"fmt"
	"itinerary-route-service/internal/api/dto"
	"itinerary-route-service/internal/domain"
	"itinerary-route-service/internal/services"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// RouteService is the subset of the itinerary service the HTTP layer uses.
type RouteService interface {
	ComputeRoute(ctx context.Context, req services.ComputeRequest) (*domain.Route, error)
	Regenerate(ctx context.Context, planID string, sourceVersion int, next services.Settings) (*domain.Route, error)
	ApplyPartialUpdate(ctx context.Context, planID string, version int, m domain.Mutation) (*domain.Route, error)
	GetRoute(ctx context.Context, planID string, version int) (*domain.Route, error)
	ListRoutes(ctx context.Context, planID string) ([]*domain.Route, error)
	Statistics(ctx context.Context, planID string) (services.RouteStatistics, error)
}

type RouteHandler struct {
	Service RouteService
	// MaxDays bounds the trip length accepted over HTTP; 0 disables the check.
	MaxDays int
}

// Compute scores the submitted candidates and materializes a new route
// version for the plan.
func (h *RouteHandler) Compute(w http.ResponseWriter, r *http.Request) {
	planID := strings.TrimSpace(chi.URLParam(r, "planID"))

	var req dto.ComputeRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.checkDays(w, r, req.Days) {
		return
	}

	svcReq, err := toComputeRequest(planID, req)
	if err != nil {
		writeServiceError(w, r, "compute route", err)
		return
	}

	route, err := h.Service.ComputeRoute(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, r, "compute route", err)
		return
	}

	w.Header().Set("Location", routeLocation(route))
	writeJSON(w, r, http.StatusCreated, toRouteRecord(route))
}

func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r)
	if !ok {
		return
	}

	route, err := h.Service.GetRoute(r.Context(), chi.URLParam(r, "planID"), version)
	if err != nil {
		writeServiceError(w, r, "get route", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toRouteRecord(route))
}

// List returns a summary of every stored version of the plan.
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")

	routes, err := h.Service.ListRoutes(r.Context(), planID)
	if err != nil {
		writeServiceError(w, r, "list routes", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.RouteVersionsRecord{
		PlanID: planID,
		Versions: lo.Map(routes, func(rt *domain.Route, _ int) dto.RouteSummary {
			return toRouteSummary(rt)
		}),
	})
}

func (h *RouteHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Statistics(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeServiceError(w, r, "route statistics", err)
		return
	}

	rec := dto.RouteStatisticsRecord{PlanID: stats.PlanID, TotalVersions: stats.TotalVersions}
	if stats.Latest != nil {
		summary := toRouteSummary(stats.Latest)
		rec.HasRoutes = true
		rec.LatestVersion = stats.Latest.Version
		rec.Latest = &summary
	}
	writeJSON(w, r, http.StatusOK, rec)
}

// Regenerate builds a new version from the stops of an existing one with
// new settings. Omitted settings inherit the source version's values.
func (h *RouteHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r)
	if !ok {
		return
	}

	var req dto.RegenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Days != 0 && !h.checkDays(w, r, req.Days) {
		return
	}

	settings, err := toSettings(req.SettingsRequest)
	if err != nil {
		writeServiceError(w, r, "regenerate route", err)
		return
	}

	route, err := h.Service.Regenerate(r.Context(), chi.URLParam(r, "planID"), version, settings)
	if err != nil {
		writeServiceError(w, r, "regenerate route", err)
		return
	}

	w.Header().Set("Location", routeLocation(route))
	writeJSON(w, r, http.StatusCreated, toRouteRecord(route))
}

// Update applies one partial update to a stored version in place.
func (h *RouteHandler) Update(w http.ResponseWriter, r *http.Request) {
	version, ok := versionParam(w, r)
	if !ok {
		return
	}

	var req dto.PartialUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := toMutation(req)
	if err != nil {
		writeServiceError(w, r, "partial update", err)
		return
	}

	route, err := h.Service.ApplyPartialUpdate(r.Context(), chi.URLParam(r, "planID"), version, m)
	if err != nil {
		writeServiceError(w, r, "partial update", err)
		return
	}
	writeJSON(w, r, http.StatusOK, toRouteRecord(route))
}

func (h *RouteHandler) checkDays(w http.ResponseWriter, r *http.Request, days int) bool {
	if h.MaxDays > 0 && (days < 1 || days > h.MaxDays) {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("days must be between 1 and %d", h.MaxDays))
		return false
	}
	return true
}

func routeLocation(r *domain.Route) string {
	return fmt.Sprintf("/plans/%s/routes/%d", r.PlanID, r.Version)
}
