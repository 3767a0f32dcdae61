package http

import (
	"net/http"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/go-chi/chi/v5"
)

func moduleParams(r *http.Request) (code, module string) {
	return chi.URLParam(r, "code"), chi.URLParam(r, "module")
}

func envParam(r *http.Request) (domain.EnvName, error) {
	return domain.ParseEnvName(chi.URLParam(r, "env"))
}

// managerParam 读取 ?manager=，缺省视为 api 调用。
func managerParam(r *http.Request) (domain.FieldMgrName, error) {
	v := r.URL.Query().Get("manager")
	if v == "" {
		return domain.FieldMgrAPI, nil
	}
	return domain.ParseFieldMgrName(v)
}
