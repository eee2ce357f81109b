package bilibili

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrespondPathIsHex(t *testing.T) {
	p, err := CorrespondPath(1700000000000)
	require.NoError(t, err)
	// 1024-bit ciphertext
	assert.Len(t, p, 256)
	assert.Regexp(t, "^[0-9a-f]+$", p)
}

func TestTryRefreshCredentialNotNeeded(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"refresh":false,"timestamp":1}}`))
	}))

	cred, changed, err := c.TryRefreshCredential(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "s", cred.SessData)
}

func TestTryRefreshCredentialFullHandshake(t *testing.T) {
	var confirmToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/x/passport-login/web/cookie/info", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "jct", r.URL.Query().Get("csrf"))
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"refresh":true,"timestamp":1}}`))
	})
	mux.HandleFunc("/correspond/1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><div id="1-name">fresh-csrf</div></html>`))
	})
	mux.HandleFunc("/x/passport-login/web/cookie/refresh", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "jct", r.PostForm.Get("csrf"))
		assert.Equal(t, "fresh-csrf", r.PostForm.Get("refresh_csrf"))
		assert.Equal(t, "main_web", r.PostForm.Get("source"))
		assert.Equal(t, "old-token", r.PostForm.Get("refresh_token"))
		http.SetCookie(w, &http.Cookie{Name: "SESSDATA", Value: "s2"})
		http.SetCookie(w, &http.Cookie{Name: "bili_jct", Value: "jct2"})
		http.SetCookie(w, &http.Cookie{Name: "DedeUserID", Value: "2"})
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"refresh_token":"new-token"}}`))
	})
	mux.HandleFunc("/x/passport-login/web/confirm/refresh", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "jct2", r.PostForm.Get("csrf"))
		confirmToken = r.PostForm.Get("refresh_token")
		_, _ = w.Write([]byte(`{"code":0,"message":"0"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(&Credential{SessData: "s", BiliJct: "jct", AcTimeValue: "old-token", Buvid3: "b3"},
		RateLimit{}, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	cred, changed, err := c.TryRefreshCredential(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "s2", cred.SessData)
	assert.Equal(t, "jct2", cred.BiliJct)
	assert.Equal(t, "2", cred.DedeUserID)
	assert.Equal(t, "new-token", cred.AcTimeValue)
	assert.Equal(t, "b3", cred.Buvid3)
	// old token retired during confirm
	assert.Equal(t, "old-token", confirmToken)
	assert.Same(t, cred, c.Credential())
}

func TestTryRefreshCredentialKeepsOldOnFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/x/passport-login/web/cookie/info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"refresh":true}}`))
	})
	mux.HandleFunc("/correspond/1/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><div id="1-name">fresh-csrf</div></html>`))
	})
	mux.HandleFunc("/x/passport-login/web/cookie/refresh", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":-111,"message":"csrf invalid"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(&Credential{SessData: "s", BiliJct: "jct", AcTimeValue: "old-token"},
		RateLimit{}, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	cred, changed, err := c.TryRefreshCredential(context.Background())
	require.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, "s", cred.SessData)
	assert.Equal(t, "s", c.Credential().SessData)
}

func TestTryRefreshCredentialAnonymous(t *testing.T) {
	c := New(nil, RateLimit{})
	_, _, err := c.TryRefreshCredential(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
