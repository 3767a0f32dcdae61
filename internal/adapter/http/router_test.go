package http

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRouter(token string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(&ApplicationHandler{}, &AppModelHandler{}, &MountHandler{}, &DeployHandler{}, &DomainHandler{}, token, logger)
}

func TestRouter_HealthAndMetricsSkipAuth(t *testing.T) {
	router := newTestRouter("secret")

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bkapps/applications/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_InvalidEnvRejected(t *testing.T) {
	router := newTestRouter("")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bkapps/applications/demo/modules/default/envs/dev/deploys/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_EnvScopedOperationsRegistered(t *testing.T) {
	router := newTestRouter("")
	base := "/api/bkapps/applications/demo/modules/default/envs/dev"
	cases := []struct{ method, path string }{
		{http.MethodGet, "/deploys/any_succeeded/"},
		{http.MethodPost, "/offline/"},
		{http.MethodPut, "/domains/target/"},
		{http.MethodGet, "/ingresses/"},
		{http.MethodPost, "/custom_domains/sync/"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(c.method, base+c.path, nil))
		// 路由存在时先校验环境名
		assert.Equal(t, http.StatusBadRequest, rec.Code, c.method+" "+c.path)
	}
}
