package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
	"github.com/ncompliance/ncompliance/internal/rbac"
	"github.com/ncompliance/ncompliance/internal/shared"
	_ "github.com/ncompliance/ncompliance/testing"
)

type stubDirectory map[int64]rbac.Actor

func (d stubDirectory) LoadActor(ctx context.Context, id int64) (rbac.Actor, error) {
	a, ok := d[id]
	if !ok {
		return rbac.Actor{}, httpx.ErrNotFound
	}
	return a, nil
}

func requestAs(t *testing.T, userID string) *http.Request {
	t.Helper()
	sm := shared.NewSessionManager(nil, "nc", "s", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	if userID != "" {
		sess.SetUser(userID)
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestAuthenticateAndRequireAction(t *testing.T) {
	dir := stubDirectory{
		1: {ID: 1, Role: rbac.RoleAdmin, IsActive: true},
		2: {ID: 2, Role: rbac.RoleGeneral, IsActive: true},
		3: {ID: 3, Role: rbac.RoleGeneral, IsActive: false},
	}
	mw := rbac.Middleware{Directory: dir}
	var seen rbac.Actor
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = rbac.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := mw.Authenticate(mw.RequireAction(rbac.ActionCodeManage)(final))

	cases := []struct {
		user string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"abc", http.StatusUnauthorized},
		{"99", http.StatusUnauthorized},
		{"3", http.StatusUnauthorized},
		{"2", http.StatusForbidden},
		{"1", http.StatusNoContent},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestAs(t, tc.user))
		require.Equal(t, tc.want, rec.Code, "user %q", tc.user)
	}
	require.Equal(t, int64(1), seen.ID)
}
