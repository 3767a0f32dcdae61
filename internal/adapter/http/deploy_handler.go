package http

import (
	"net/http"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/service"
	"github.com/go-chi/chi/v5"
)

type DeployHandler struct {
	svc *service.DeployService
}

func NewDeployHandler(svc *service.DeployService) *DeployHandler {
	return &DeployHandler{svc: svc}
}

func (h *DeployHandler) Create(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Operator string `json:"operator"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.Deploy(r.Context(), code, module, env, req.Operator)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DeployHandler) List(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.ListDeploys(r.Context(), code, module, env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DeployHandler) LatestSucceeded(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.LatestSucceeded(r.Context(), code, module, env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// IngestCondition 供无法接入 Informer 的场景手动上报状态条件。
func (h *DeployHandler) IngestCondition(w http.ResponseWriter, r *http.Request) {
	var cond domain.Condition
	if err := decodeJSON(r, &cond); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.IngestCondition(r.Context(), chi.URLParam(r, "id"), cond)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *DeployHandler) AnySucceeded(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := h.svc.AnySuccessful(r.Context(), code, module, env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"any_succeeded": ok})
}

// Offline 删除集群中的 BkApp。
func (h *DeployHandler) Offline(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Offline(r.Context(), code, module, env); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "offline"})
}
