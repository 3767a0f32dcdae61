package http

import (
	"net/http"

	"github.com/chiwei-platform/bkapp-engine/internal/service"
	"github.com/go-chi/chi/v5"
)

type MountHandler struct {
	svc *service.MountService
}

func NewMountHandler(svc *service.MountService) *MountHandler {
	return &MountHandler{svc: svc}
}

func (h *MountHandler) List(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	mounts, err := h.svc.List(r.Context(), code, module)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mounts)
}

func (h *MountHandler) Create(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	var req service.CreateMountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := h.svc.Create(r.Context(), code, module, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), code, module, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *MountHandler) UpsertSource(w http.ResponseWriter, r *http.Request) {
	code, module := moduleParams(r)
	var req service.UpsertSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	src, err := h.svc.UpsertConfigMapSource(r.Context(), code, module, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}
