package regulations

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Handler exposes catalog and ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	ledger   *Ledger
	rbac     rbac.Middleware
	maxBytes int64
}

// NewHandler constructs a regulations HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, ledger *Ledger, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, ledger: ledger, rbac: rbac, maxBytes: ledger.maxBytes}
}

// MountRoutes registers regulation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.With(h.rbac.RequireAction(rbac.ActionRegulationCreate)).Post("/", h.create)
	r.Get("/categories/counts", h.categoryCounts)
	r.Get("/favorites", h.favorites)
	r.Get("/tags", h.tags)
	r.Get("/tags/{name}", h.byTag)
	r.Post("/versions/{vid}/approve", h.approve)
	r.Get("/versions/{vid}/approvals", h.approvals)
	r.Get("/versions/{vid}/download", h.download)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.detail)
		r.Put("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/original", h.uploadOriginal)
		r.Post("/favorite", h.toggleFavorite)
		r.Post("/review-request", h.requestReview)
		r.Get("/versions", h.history)
		r.Post("/versions", h.appendVersion)
		r.Get("/versions/diff", h.diff)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	filters := ParseFilters(r)
	items, total, err := h.service.List(r.Context(), actor, filters)
	if err != nil {
		h.fail(w, "list regulations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

// ParseFilters reads catalog filters from the query string.
func ParseFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	f := ListFilters{
		Keyword:   strings.TrimSpace(q.Get("q")),
		Category:  Category(strings.ToUpper(q.Get("category"))),
		Status:    Status(strings.ToUpper(q.Get("status"))),
		Mandatory: q.Get("mandatory"),
		Group:     strings.TrimSpace(q.Get("group")),
		Manager:   strings.TrimSpace(q.Get("manager")),
		Publicity: q.Get("publicity"),
		Page:      httpx.QueryInt(r, "page", 1),
		PerPage:   httpx.QueryInt(r, "per_page", shared.DefaultPerPage),
	}
	if raw := q.Get("department"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.ResponsibleDeptID = &id
		}
	}
	return f
}

func (h *Handler) categoryCounts(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	counts, err := h.service.CategoryCounts(r.Context(), actor)
	if err != nil {
		h.fail(w, "category counts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, counts)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Detail(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "regulation detail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	var in RegulationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reg, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create regulation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reg)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in RegulationInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reg, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update regulation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete regulation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) uploadOriginal(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.formFile(w, r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if a == nil {
		httpx.RespondError(w, httpx.Invalid("file", "업로드할 파일을 선택하세요."))
		return
	}
	reg, err := h.service.UploadOriginal(r.Context(), actor, id, *a)
	if err != nil {
		h.fail(w, "upload original", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reg)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	on, err := h.service.ToggleFavorite(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "toggle favorite", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"favorite": on})
}

func (h *Handler) requestReview(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.RequestReview(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "request review", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]int{"recipients": n})
}

func (h *Handler) favorites(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	items, err := h.service.Favorites(r.Context(), actor)
	if err != nil {
		h.fail(w, "list favorites", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) tags(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	items, err := h.service.Tags(r.Context(), actor)
	if err != nil {
		h.fail(w, "list tags", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) byTag(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	name := chi.URLParam(r, "name")
	items, err := h.service.ByTag(r.Context(), actor, name)
	if err != nil {
		h.fail(w, "list by tag", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tag": name, "items": items})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	versions, err := h.ledger.History(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "version history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": versions})
}

func (h *Handler) appendVersion(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in AppendInput
	if isMultipart(r) {
		if in.Attachment, err = h.formFile(w, r); err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.VersionNumber = r.FormValue("version_number")
		in.ChangeType = r.FormValue("change_type")
		in.ChangeReason = r.FormValue("change_reason")
		in.ChangeSummary = r.FormValue("change_summary")
	} else if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.ledger.Append(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "append version", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	vid, err := httpx.ParseID(chi.URLParam(r, "vid"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var body struct {
		Note string `json:"note"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	v, err := h.ledger.Approve(r.Context(), actor, vid, body.Note)
	if err != nil {
		h.fail(w, "approve version", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	vid, err := httpx.ParseID(chi.URLParam(r, "vid"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.ledger.Approvals(r.Context(), actor, vid)
	if err != nil {
		h.fail(w, "version approvals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": logs})
}

func (h *Handler) diff(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		httpx.RespondError(w, httpx.NewValidationError(map[string]string{
			"from": "비교할 버전을 지정하세요.",
			"to":   "비교할 버전을 지정하세요.",
		}))
		return
	}
	res, err := h.ledger.Diff(r.Context(), actor, id, q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, "version diff", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	vid, err := httpx.ParseID(chi.URLParam(r, "vid"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dl, err := h.service.OpenAttachment(r.Context(), actor, vid, shared.ClientIP(r))
	if err != nil {
		h.fail(w, "download attachment", err)
		return
	}
	defer dl.Body.Close()
	httpx.Attachment(w, contentType(dl.Filename), dl.Filename)
	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("stream attachment", slog.Int64("version_id", vid), slog.Any("error", err))
	}
}

// formFile reads the optional "file" part of a multipart form.
func (h *Handler) formFile(w http.ResponseWriter, r *http.Request) (*Attachment, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, httpx.Invalid("file", "파일 크기는 10MB를 초과할 수 없습니다.")
		}
		return nil, httpx.Invalid("file", "multipart 형식이 올바르지 않습니다.")
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, httpx.Invalid("file", "파일을 읽을 수 없습니다.")
	}
	defer file.Close()
	a, err := ReadAttachment(header.Filename, file, h.maxBytes)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func contentType(filename string) string {
	if t := mime.TypeByExtension("." + (Attachment{Filename: filename}).Ext()); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
