package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vantavault/vanta/internal/models"
	"github.com/vantavault/vanta/internal/tags"
)

type passwordRequest struct {
	Password string `json:"password"`
}

type tagRequest struct {
	Tag string `json:"tag"`
}

type renameTagRequest struct {
	OldTag string `json:"old_tag"`
	NewTag string `json:"new_tag"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", models.ErrInvalidInput)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	initialized, unlocked, err := s.vault.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}

	authenticated := unlocked && s.vault.Gate(s.sessionToken(r)) == nil

	writeJSON(w, http.StatusOK, map[string]bool{
		"initialized":   initialized,
		"unlocked":      unlocked,
		"authenticated": authenticated,
	})
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Password == "" {
		s.writeError(w, fmt.Errorf("empty password: %w", models.ErrInvalidInput))
		return
	}

	token, err := s.vault.Initialize(req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.setSession(w, token)
	writeJSON(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	token, err := s.vault.Unlock(req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.setSession(w, token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.vault.Lock()
	s.clearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	query, err := tags.ParseQuery(r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries, err := s.vault.Search(query)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// readUpload pulls the "file" part out of a multipart request, bounded
// by the configured upload cap.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadSize+4096)

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, "", fmt.Errorf("multipart required: %w", models.ErrInvalidInput)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("read multipart: %w", models.ErrInvalidInput)
		}

		if part.FormName() != "file" {
			continue
		}

		data, err := io.ReadAll(part)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, "", fmt.Errorf("upload too large: %w", models.ErrInvalidInput)
			}
			return nil, "", fmt.Errorf("read upload: %w", models.ErrInvalidInput)
		}

		return data, part.Header.Get("Content-Type"), nil
	}

	return nil, "", fmt.Errorf("no file provided: %w", models.ErrInvalidInput)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, mime, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entry, err := s.vault.Upload(r.Context(), data, mime)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// writeVariantBytes serves decrypted image bytes. Stored images are
// immutable, so clients may cache them indefinitely.
func writeVariantBytes(w http.ResponseWriter, data []byte, mime string) {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	variant, ok := models.VariantFromName(vars["variant"])
	if !ok {
		s.writeError(w, fmt.Errorf("unknown variant: %w", models.ErrNotFound))
		return
	}

	data, mime, err := s.vault.Retrieve(vars["id"], variant)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeVariantBytes(w, data, mime)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Delete(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	entry, err := s.vault.AddTag(mux.Vars(r)["id"], req.Tag)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	entry, err := s.vault.RemoveTag(mux.Vars(r)["id"], r.URL.Query().Get("tag"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	list, err := s.vault.Tags()
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRenameTag(w http.ResponseWriter, r *http.Request) {
	var req renameTagRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	count, err := s.vault.RenameTag(req.OldTag, req.NewTag)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"renamed": count})
}

func (s *Server) handleAttachLinked(w http.ResponseWriter, r *http.Request) {
	data, mime, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entry, err := s.vault.AttachLinked(r.Context(), mux.Vars(r)["cover"], data, mime)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDetachLinked(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	entry, err := s.vault.DetachLinked(vars["cover"], vars["sub"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleGetLinked(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	variant, ok := models.VariantFromName(vars["variant"])
	if !ok {
		s.writeError(w, fmt.Errorf("unknown variant: %w", models.ErrNotFound))
		return
	}

	data, mime, err := s.vault.RetrieveLinked(vars["cover"], vars["sub"], variant)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeVariantBytes(w, data, mime)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, contentType, err := s.vault.DownloadArchive(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if contentType == "application/zip" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", id+".zip"))
	} else {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", id+"."+models.MimeToExt(contentType)))
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
