package notifications

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Handler exposes the inbox, settings and admin broadcast.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Post("/read-all", h.markAllRead)
	r.Get("/settings", h.settings)
	r.Put("/settings", h.updateSettings)
	r.Get("/{id}", h.detail)
	r.Post("/{id}/read", h.markRead)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAction(rbac.ActionNotifyBroadcast))
		r.Post("/", h.broadcast)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	page := httpx.QueryInt(r, "page", 1)
	items, total, unread, err := h.service.List(r.Context(), actor, page)
	if err != nil {
		h.fail(w, "list notifications", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":        items,
		"unread_count": unread,
		"pagination":   shared.NewPagination(page, shared.DefaultPerPage, total),
	})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	n, err := h.service.UnreadCount(r.Context(), actor)
	if err != nil {
		h.fail(w, "unread count", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.Detail(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "notification detail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, n)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.MarkRead(r.Context(), actor, id); err != nil {
		h.fail(w, "mark read", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	n, err := h.service.MarkAllRead(r.Context(), actor)
	if err != nil {
		h.fail(w, "mark all read", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	s, err := h.service.Settings(r.Context(), actor)
	if err != nil {
		h.fail(w, "notification settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var in SettingInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	s, err := h.service.UpdateSettings(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "update notification settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var in BroadcastInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.Broadcast(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "broadcast notification", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"recipients": n,
		"message":    strconv.Itoa(n) + "명에게 알림이 발송되었습니다.",
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
