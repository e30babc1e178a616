package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/me", h.updateProfile)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAction(rbac.ActionUserManage))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
		r.Put("/{id}", h.updateUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	q := r.URL.Query()
	filters := ListFilters{
		Page:       httpx.QueryInt(r, "page", 1),
		PerPage:    httpx.QueryInt(r, "per_page", shared.DefaultPerPage),
		Search:     q.Get("search"),
		ActiveOnly: q.Get("active") == "1",
	}
	if role, ok := rbac.ParseRole(q.Get("role")); ok {
		filters.Role = role
	}
	if raw := q.Get("department_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.DepartmentID = &id
		}
	}
	items, total, err := h.service.ListUsers(r.Context(), actor, filters)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.GetUser(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.CreateUser(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.UpdateUser(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var in ProfileInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.UpdateProfile(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "update profile", err)
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
