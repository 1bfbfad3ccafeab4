package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
)

// maxBlobSize caps uploads at 32 MiB.
const maxBlobSize = 32 << 20

// handleUploadBlob handles POST /v1/blobs. The request body is the raw file;
// the name comes from the X-Blob-Name header and the type from Content-Type.
func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	name := r.Header.Get("X-Blob-Name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "X-Blob-Name header is required")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxBlobSize)
	info, err := s.blobs.Put(r.Context(), acct, name, r.Header.Get("Content-Type"), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "blob exceeds size limit")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// handleDownloadBlob handles GET /v1/blobs/{id}.
func (s *Server) handleDownloadBlob(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	info, rc, err := s.blobs.Get(r.Context(), acct, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// handleDeleteBlob handles DELETE /v1/blobs/{id}.
func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	acct := accountID(w, r)
	if acct == "" {
		return
	}

	if err := s.blobs.Delete(r.Context(), acct, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
