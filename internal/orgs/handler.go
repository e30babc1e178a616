package orgs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
)

// Handler exposes organisation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers routes under /orgs.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/companies", h.listCompanies)
	r.Get("/departments", h.listDepartments)
	r.Get("/departments/{id}", h.getDepartment)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAction(rbac.ActionOrgManage))
		r.Post("/companies", h.createCompany)
		r.Put("/companies/{id}", h.updateCompany)
		r.Post("/departments", h.createDepartment)
		r.Put("/departments/{id}", h.updateDepartment)
	})
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Page:    httpx.QueryInt(r, "page", 1),
		Limit:   httpx.QueryInt(r, "limit", 50),
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	companies, total, err := h.service.ListCompanies(r.Context(), filters)
	if err != nil {
		h.fail(w, "list companies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": companies, "total": total})
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var in Company
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IsActive = true
	created, err := h.service.CreateCompany(r.Context(), in)
	if err != nil {
		h.fail(w, "create company", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Company
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UpdateCompany(r.Context(), id, in); err != nil {
		h.fail(w, "update company", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDepartments(w http.ResponseWriter, r *http.Request) {
	depts, err := h.service.ListDepartments(r.Context(), r.URL.Query().Get("all") == "")
	if err != nil {
		h.fail(w, "list departments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": depts})
}

func (h *Handler) getDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.GetDepartment(r.Context(), id)
	if err != nil {
		h.fail(w, "get department", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) createDepartment(w http.ResponseWriter, r *http.Request) {
	var in Department
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IsActive = true
	created, err := h.service.CreateDepartment(r.Context(), in)
	if err != nil {
		h.fail(w, "create department", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Department
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.UpdateDepartment(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update department", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
