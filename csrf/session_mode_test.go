package csrf_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeanGrijp/csrfguard/csrf"
	"github.com/JeanGrijp/csrfguard/session"
	"github.com/JeanGrijp/csrfguard/storage/memory"
)

type client struct {
	cookies map[string]*http.Cookie
}

func (c *client) do(h http.Handler, req *http.Request) *http.Response {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	res := rec.Result()
	for _, ck := range res.Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return res
}

func (c *client) token(t *testing.T, h http.Handler) string {
	t.Helper()
	res := c.do(h, httptest.NewRequest(http.MethodGet, "/csrf-token", nil))
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	b, _ := io.ReadAll(res.Body)
	return strings.TrimSpace(string(b))
}

func (c *client) post(h http.Handler, path, token string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set(csrf.DefaultHeaderName, token)
	res := c.do(h, req)
	res.Body.Close()
	return res.StatusCode
}

func newSessionApp(t *testing.T) (http.Handler, *errorSink) {
	t.Helper()
	st, err := memory.New(memory.Config{MaxEntries: 256})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sessions := session.New(st, session.Config{})
	sink := &errorSink{}
	p, err := csrf.New(csrf.Config{
		Session:      sessions,
		ErrorHandler: sink.handle,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/csrf-token", p.TokenHandler())
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		h, ok := csrf.HandlerFromContext(r.Context())
		require.True(t, ok)
		require.NoError(t, h.DeleteToken(w, r))
		require.NoError(t, sessions.Renew(w, r, h.Session()))
	})
	return p.Protect(mux), sink
}

type errorSink struct {
	err error
}

func (s *errorSink) handle(w http.ResponseWriter, r *http.Request, err error) {
	s.err = err
	csrf.DefaultErrorHandler(w, r, err)
}

func TestSessionMode_RoundTrip(t *testing.T) {
	app, _ := newSessionApp(t)
	c := &client{cookies: map[string]*http.Cookie{}}

	tok := c.token(t, app)
	require.NotEmpty(t, tok)
	require.Contains(t, c.cookies, session.DefaultCookieName)

	assert.Equal(t, http.StatusOK, c.post(app, "/submit", tok))
	assert.Equal(t, tok, c.token(t, app), "token is stable within the session")
}

func TestSessionMode_SurvivesLostCsrfCookie(t *testing.T) {
	app, _ := newSessionApp(t)
	c := &client{cookies: map[string]*http.Cookie{}}

	tok := c.token(t, app)
	delete(c.cookies, csrf.DefaultCookieName)

	assert.Equal(t, tok, c.token(t, app), "session still holds the token")
}

func TestSessionMode_TokenFromOtherSessionRejected(t *testing.T) {
	app, sink := newSessionApp(t)
	victim := &client{cookies: map[string]*http.Cookie{}}
	attacker := &client{cookies: map[string]*http.Cookie{}}

	victim.token(t, app)
	attackerTok := attacker.token(t, app)

	// attacker manages to plant its csrf cookie next to the victim's session
	victim.cookies[csrf.DefaultCookieName] = &http.Cookie{Name: csrf.DefaultCookieName, Value: attackerTok}
	assert.Equal(t, http.StatusForbidden, victim.post(app, "/submit", attackerTok))
	assert.ErrorIs(t, sink.err, csrf.ErrTokenInvalid)
}

func TestSessionMode_NoSessionToken(t *testing.T) {
	app, sink := newSessionApp(t)
	c := &client{cookies: map[string]*http.Cookie{}}

	c.cookies[csrf.DefaultCookieName] = &http.Cookie{Name: csrf.DefaultCookieName, Value: "x"}
	assert.Equal(t, http.StatusForbidden, c.post(app, "/submit", "x"))
	assert.ErrorIs(t, sink.err, csrf.ErrTokenNotFound)
}

func TestSessionMode_LoginRotatesTokenAndSession(t *testing.T) {
	app, _ := newSessionApp(t)
	c := &client{cookies: map[string]*http.Cookie{}}

	tok := c.token(t, app)
	oldSession := c.cookies[session.DefaultCookieName].Value

	require.Equal(t, http.StatusOK, c.post(app, "/login", tok))
	assert.NotEqual(t, oldSession, c.cookies[session.DefaultCookieName].Value)
	assert.NotContains(t, c.cookies, csrf.DefaultCookieName)

	fresh := c.token(t, app)
	assert.NotEqual(t, tok, fresh)
	assert.Equal(t, http.StatusOK, c.post(app, "/submit", fresh))
}
