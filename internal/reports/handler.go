package reports

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/regulations"
)

// Handler serves report tables as JSON, xlsx or csv.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type builder func(ctx context.Context, actor rbac.Actor, r *http.Request) (Table, error)

// MountRoutes registers report routes. Each report answers on its bare
// path with JSON and on .xlsx and .csv suffixes with a download.
func (h *Handler) MountRoutes(r chi.Router) {
	h.mount(r, "/status", "사규현황보고서", h.catalog)
	h.mount(r, "/history", "제개정이력보고서", h.history)
	h.mount(r, "/expiry", "만료예정보고서", h.expiry)

	r.Get("/department", h.departmentJSON)
	h.mountDownloads(r, "/department", "부서별보고서", h.departmentTable)
}

func (h *Handler) mount(r chi.Router, path, filename string, build builder) {
	r.Get(path, h.serve(build, "", filename))
	h.mountDownloads(r, path, filename, build)
}

func (h *Handler) mountDownloads(r chi.Router, path, filename string, build builder) {
	r.Get(path+".xlsx", h.serve(build, "xlsx", filename))
	r.Get(path+".csv", h.serve(build, "csv", filename))
}

func (h *Handler) serve(build builder, format, filename string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := rbac.ActorFromContext(r.Context())
		table, err := build(r.Context(), actor, r)
		if err != nil {
			h.fail(w, "build report", err)
			return
		}
		var buf bytes.Buffer
		var contentType string
		switch format {
		case "xlsx":
			contentType = ContentTypeXLSX
			err = WriteXLSX(&buf, table)
		case "csv":
			contentType = ContentTypeCSV
			err = WriteCSV(&buf, table)
		default:
			payload := map[string]any{
				"sheet":   table.Sheet,
				"headers": table.Headers,
				"rows":    table.Rows,
				"total":   len(table.Rows),
			}
			for name, stats := range table.Stats {
				payload[name] = stats
			}
			httpx.JSON(w, http.StatusOK, payload)
			return
		}
		if err != nil {
			h.fail(w, "render report", err)
			return
		}
		httpx.Attachment(w, contentType, h.service.Filename(filename, format))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		if _, err := buf.WriteTo(w); err != nil {
			h.logger.Warn("stream report", slog.String("report", filename), slog.Any("error", err))
		}
	}
}

func (h *Handler) catalog(ctx context.Context, actor rbac.Actor, r *http.Request) (Table, error) {
	q := r.URL.Query()
	f := CatalogFilters{
		Category: regulations.Category(strings.ToUpper(q.Get("category"))),
		Status:   regulations.Status(strings.ToUpper(q.Get("status"))),
	}
	id, err := departmentParam(r)
	if err != nil {
		return Table{}, err
	}
	f.DepartmentID = id
	return h.service.Catalog(ctx, actor, f)
}

func departmentParam(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("department")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, httpx.Invalid("department", "부서 ID가 올바르지 않습니다.")
	}
	return &id, nil
}

func (h *Handler) departmentJSON(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	id, err := departmentParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rep, err := h.service.Department(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "build department report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

// departmentTable downloads the ranking, or the selected department's
// regulations when ?department= is given.
func (h *Handler) departmentTable(ctx context.Context, actor rbac.Actor, r *http.Request) (Table, error) {
	id, err := departmentParam(r)
	if err != nil {
		return Table{}, err
	}
	rep, err := h.service.Department(ctx, actor, id)
	if err != nil {
		return Table{}, err
	}
	if rep.Regulations != nil {
		return *rep.Regulations, nil
	}
	return DepartmentTable(rep.Departments), nil
}

func (h *Handler) history(ctx context.Context, actor rbac.Actor, r *http.Request) (Table, error) {
	q := r.URL.Query()
	return h.service.History(ctx, actor, HistoryQuery{
		From:       q.Get("start_date"),
		To:         q.Get("end_date"),
		ChangeType: q.Get("change_type"),
	})
}

func (h *Handler) expiry(ctx context.Context, actor rbac.Actor, r *http.Request) (Table, error) {
	return h.service.Expiry(ctx, actor, httpx.QueryInt(r, "days", DefaultExpiryDays))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !httpx.IsClientError(err) {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
