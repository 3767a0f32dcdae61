package http

import (
	"io"
	"net/http"

	"github.com/chiwei-platform/bkapp-engine/internal/domain"
	"github.com/chiwei-platform/bkapp-engine/internal/service"
	"github.com/go-chi/chi/v5"
)

// AppModelHandler 暴露模型、版本、进程配置与声明文件相关接口。
type AppModelHandler struct {
	models  *service.AppModelService
	specs   *service.ProcessSpecService
	appDesc *service.AppDescService
}

func NewAppModelHandler(models *service.AppModelService, specs *service.ProcessSpecService, appDesc *service.AppDescService) *AppModelHandler {
	return &AppModelHandler{models: models, specs: specs, appDesc: appDesc}
}

func (h *AppModelHandler) Init(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	var req service.InitAppModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.models.InitAppModel(r.Context(), code, module, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *AppModelHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	res, err := h.models.GetCurrent(r.Context(), code, module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateCurrent 请求体是完整的 BkApp 清单。
func (h *AppModelHandler) UpdateCurrent(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	manager, err := managerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	rev, err := h.models.UpdateAppModel(r.Context(), code, module, payload, manager)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (h *AppModelHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	revs, err := h.models.ListRevisions(r.Context(), code, module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

func (h *AppModelHandler) GetRevision(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	rev, err := h.models.GetRevision(r.Context(), code, module, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (h *AppModelHandler) ListProcessSpecs(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	views, err := h.specs.ListProcessSpecs(r.Context(), code, module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *AppModelHandler) ApplyProcessSpecs(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	manager, err := managerParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch service.ModelPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.specs.Apply(r.Context(), code, module, manager, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AppModelHandler) GetManualScaling(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	scaled, err := h.specs.CheckReplicasManuallyScaled(r.Context(), code, module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"manually_scaled": scaled})
}

func (h *AppModelHandler) ResetManualScaling(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	released, err := h.specs.ResetManualScaling(r.Context(), code, module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if released == nil {
		released = []domain.Field{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Field{"released": released})
}

// ApplyAppDesc 请求体是原始的 app_desc.yaml 内容。
func (h *AppModelHandler) ApplyAppDesc(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.appDesc.Apply(r.Context(), code, module, content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
