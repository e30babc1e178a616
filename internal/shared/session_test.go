package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ncompliance/ncompliance/internal/shared"
	_ "github.com/ncompliance/ncompliance/testing"
)

func newManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "nc_session", "secret", time.Hour, false), mr, client
}

func TestSessionRoundTrip(t *testing.T) {
	sm, _, _ := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetUser("42")
	sess.Set("k", "v")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	require.Equal(t, sess.ID, loaded.ID)
	require.Equal(t, "42", loaded.User())
	require.Equal(t, "v", loaded.Get("k"))
}

func TestSessionUnknownCookieGetsFreshID(t *testing.T) {
	sm, _, _ := newManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, "attacker-chosen", sess.ID)
	require.Empty(t, sess.User())
}

func TestSessionRotateDropsPreviousKey(t *testing.T) {
	sm, mr, _ := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))
	oldID := sess.ID

	next := httptest.NewRequest(http.MethodPost, "/", nil)
	next.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: oldID})
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	sm.Rotate(loaded)
	loaded.SetUser("7")
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), next, loaded))

	require.NotEqual(t, oldID, loaded.ID)
	require.False(t, mr.Exists("ncompliance:session:"+oldID))
	require.True(t, mr.Exists("ncompliance:session:"+loaded.ID))
}

func TestSessionDestroyClearsCookie(t *testing.T) {
	sm, mr, _ := newManager(t)
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), req, sess))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, req, sess))
	require.False(t, mr.Exists("ncompliance:session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func TestCSRFVerify(t *testing.T) {
	sm, _, _ := newManager(t)
	ctx := context.Background()
	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	csrf := shared.NewCSRFManager("csrf")
	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, token, again)

	require.NoError(t, csrf.VerifyToken(ctx, sess, token))
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, "nope"), shared.ErrCSRFTokenMismatch)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), shared.ErrCSRFTokenMissing)

	csrf.Reset(sess)
	require.ErrorIs(t, csrf.VerifyToken(ctx, sess, token), shared.ErrCSRFTokenMissing)
}
