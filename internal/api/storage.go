package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/harper/dispatch/internal/storage"
)

// avatarUploadResponse is the JSON response for an avatar upload.
type avatarUploadResponse struct {
	AvatarURL string `json:"avatar_url"`
	Size      int64  `json:"size"`
	SHA256    string `json:"sha256"`
}

// handleAvatarUpload handles POST /v1/teams/{team}/storage/avatars/{user}.
// The raw image is the request body; Content-Type carries its MIME type.
func (s *Server) handleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")
	userID := r.PathValue("user")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "empty body")
		return
	}

	meta, err := s.avatars.Put(teamID, userID, data, r.Header.Get("Content-Type"))
	if err != nil {
		logFor(r.Context()).Error("store avatar", "user", userID, "err", err)
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	logFor(r.Context()).Info("avatar uploaded", "user", userID, "size", meta.Size)
	writeJSON(w, http.StatusOK, avatarUploadResponse{
		AvatarURL: s.avatars.URL(teamID, userID, meta),
		Size:      meta.Size,
		SHA256:    meta.SHA256,
	})
}

// handleAvatarGet handles GET /v1/teams/{team}/storage/avatars/{user}.
func (s *Server) handleAvatarGet(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")
	userID := r.PathValue("user")

	data, meta, err := s.avatars.Get(teamID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "avatar not found")
			return
		}
		logFor(r.Context()).Error("read avatar", "user", userID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read avatar")
		return
	}

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if meta.Key != "" {
		// The key changes on every upload, so keyed URLs can cache forever.
		w.Header().Set("ETag", `"`+meta.Key+`"`)
		w.Header().Set("Cache-Control", "public, max-age=86400")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
