package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/rahul/lexigpt/internal/docgen"
)

func (h *handlers) handleDocGen(w http.ResponseWriter, r *http.Request) {
	if h.Docs == nil {
		writeUnavailable(w, "document generation")
		return
	}
	var req docgen.Request
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if req.Type == "" {
		req.Type = "pdf"
	}

	path, err := h.Docs.Render(r.Context(), req)
	switch {
	case errors.Is(err, docgen.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.Logger.Warn("document generation failed", "type", req.Type, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"filename":     filepath.Base(path),
		"download_url": h.Docs.DownloadURL(path),
	})
}

func (h *handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	if h.Docs == nil {
		writeUnavailable(w, "document generation")
		return
	}
	filename := r.PathValue("filename")
	path, err := h.Docs.Path(filename)
	switch {
	case errors.Is(err, docgen.ErrInvalidFilename):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	http.ServeFile(w, r, path)
}
