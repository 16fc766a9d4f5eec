package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFormattedLoggerWritesOneLinePerRequest(t *testing.T) {
	var out bytes.Buffer
	gin.DefaultWriter = &out

	r := gin.New()
	r.Use(FormattedLogger())
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, out.String(), "GET")
	require.Contains(t, out.String(), "/ping")
	require.Contains(t, out.String(), "200")
}

func TestRequestBlockerRejectsBlockedUserAgent(t *testing.T) {
	r := gin.New()
	r.Use(RequestBlocker(nil, []string{"bad-bot"}))
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("User-Agent", "bad-bot/1.0")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestBlockerAllowsUnblockedRequest(t *testing.T) {
	r := gin.New()
	r.Use(RequestBlocker([]string{"10.0.0.1"}, []string{"bad-bot"}))
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorHandlerWritesLastAttachedError(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler)
	r.GET("/fail", func(ctx *gin.Context) {
		ctx.AbortWithError(http.StatusBadRequest, errors.New("bad request"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fail", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "bad request")
}

func TestRequestIDGeneratesAndEchoesID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(ctx *gin.Context) {
		id, ok := ctx.Get("request_id")
		require.True(t, ok)
		require.NotEmpty(t, id)
		ctx.String(http.StatusOK, "pong")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestIDPreservesIncomingHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "caller-supplied-id")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, "caller-supplied-id", rec.Header().Get("X-Request-Id"))
}

func TestErrorHandlerLeavesSuccessfulResponseUntouched(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler)
	r.GET("/ok", func(ctx *gin.Context) { ctx.String(http.StatusOK, "fine") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "fine", rec.Body.String())
}
