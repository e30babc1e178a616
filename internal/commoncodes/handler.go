package commoncodes

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
)

// Handler exposes common code endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers code routes. Choices are readable by every user.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/choices/{type}", h.choices)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAction(rbac.ActionCodeManage))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.detail)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	q := r.URL.Query()
	f := Filters{
		Type:    Type(strings.ToUpper(q.Get("code_type"))),
		Active:  q.Get("is_active"),
		Keyword: q.Get("keyword"),
	}
	items, err := h.service.List(r.Context(), actor, f)
	if err != nil {
		h.fail(w, "list codes", err)
		return
	}
	types := make([]map[string]string, 0, len(Types()))
	for _, t := range Types() {
		types = append(types, map[string]string{"value": string(t), "label": t.Label()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "code_types": types})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get code", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create code", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update code", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete code", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) choices(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Choices(r.Context(), Type(chi.URLParam(r, "type")))
	if err != nil {
		h.fail(w, "code choices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
