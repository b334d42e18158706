package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cosmoesg/cosmo/pkg/binder"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthTestContext(t *testing.T, method, payload string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	req := httptest.NewRequest(method, "/auth/login", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr), rr
}

func TestHandlerLogin_SetsSessionCookie(t *testing.T) {
	t.Parallel()

	b := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"backend-token","user":{"id":"u-1","email":"ana@example.com"}}`))
	})
	h := &handler{authService: NewService("test-secret", b), cookieName: testCookie}

	c, rr := newAuthTestContext(t, http.MethodPost, `{"email":"ana@example.com","password":"secret123"}`)
	require.NoError(t, h.login(c))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"user_id":"u-1"`)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	claims, err := h.authService.ValidateToken(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
}

func TestHandlerLogin_RequiresPassword(t *testing.T) {
	t.Parallel()

	h := &handler{authService: NewService("test-secret", nil), cookieName: testCookie}

	c, _ := newAuthTestContext(t, http.MethodPost, `{"email":"ana@example.com"}`)
	err := h.login(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"password" is required`)
}

func TestHandlerLogout_ClearsCookie(t *testing.T) {
	t.Parallel()

	h := &handler{authService: NewService("test-secret", nil), cookieName: testCookie}

	c, rr := newAuthTestContext(t, http.MethodPost, "")
	require.NoError(t, h.logout(c))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
