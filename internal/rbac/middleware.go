package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/shared"
)

// Directory resolves a session user id into an Actor.
type Directory interface {
	LoadActor(ctx context.Context, userID int64) (Actor, error)
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Directory Directory
	Logger    *slog.Logger
}

// Authenticate resolves the session user into an Actor and rejects anonymous
// or deactivated users with 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.currentUserID(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		actor, err := m.Directory.LoadActor(r.Context(), userID)
		if err != nil {
			if errors.Is(err, httpx.ErrNotFound) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			m.logger().Error("rbac load actor", slog.Int64("user_id", userID), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if !actor.IsActive {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "account disabled")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
	})
}

// RequireAction ensures the current actor may perform a resource-less action.
func (m Middleware) RequireAction(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			if d := Decide(actor, action, nil); !d.Allowed {
				m.logger().Warn("rbac denied",
					slog.Int64("user_id", actor.ID),
					slog.String("action", string(action)),
					slog.String("reason", d.Reason),
				)
				httpx.Problem(w, http.StatusForbidden, "Forbidden", d.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger().Error("rbac parse user id", slog.String("value", raw))
		return 0, false
	}
	return id, true
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
