package http

import (
	"net/http"

	"github.com/chiwei-platform/bkapp-engine/internal/service"
	"github.com/go-chi/chi/v5"
)

type DomainHandler struct {
	svc *service.DomainService
}

func NewDomainHandler(svc *service.DomainService) *DomainHandler {
	return &DomainHandler{svc: svc}
}

type assignHostsRequest struct {
	Hosts              []service.AutoGenDomain `json:"hosts"`
	DefaultServiceName string                  `json:"default_service_name"`
	RaiseOnNoCert      bool                    `json:"raise_on_no_cert"`
}

func (h *DomainHandler) ListAppDomains(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.ListAppDomains(r.Context(), code, module, env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AssignHosts 以请求中的域名集合整体替换该环境的可分配域名。
func (h *DomainHandler) AssignHosts(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req assignHostsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.AssignCustomHosts(r.Context(), code, module, env, req.Hosts, req.DefaultServiceName, req.RaiseOnNoCert)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DomainHandler) SyncAutoGen(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		ServiceName string `json:"service_name"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	list, err := h.svc.SyncAutoGenDomains(r.Context(), code, module, env, req.ServiceName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DomainHandler) CreateCustom(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req service.CreateDomainRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.CreateCustomDomain(r.Context(), code, module, env, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DomainHandler) ListCustom(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.ListCustomDomains(r.Context(), code, module, env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *DomainHandler) DeleteCustom(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteCustomDomain(r.Context(), code, module, env, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *DomainHandler) SwitchTarget(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		ServiceName string `json:"service_name"`
		PortName    string `json:"port_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ing, err := h.svc.SwitchSubdomainTarget(r.Context(), code, module, env, req.ServiceName, req.PortName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ing)
}

func (h *DomainHandler) ListIngresses(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.svc.ListIngresses(r.Context(), code, module, env)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SyncCustom 重建该环境全部独立域名的 Ingress。
func (h *DomainHandler) SyncCustom(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	env, err := envParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.SyncCustomDomains(r.Context(), code, module, env); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
