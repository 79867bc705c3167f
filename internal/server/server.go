package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vantavault/vanta/internal/config"
	"github.com/vantavault/vanta/internal/events"
	"github.com/vantavault/vanta/internal/models"
	"github.com/vantavault/vanta/internal/vault"
)

// sessionCookie carries the opaque session token.
const sessionCookie = "vanta_session"

// Server exposes the vault over the HTTP API.
type Server struct {
	vault  *vault.Vault
	cfg    *config.Config
	logger *events.Logger
	http   *http.Server
}

// New creates a server for the given vault.
func New(v *vault.Vault, cfg *config.Config, logger *events.Logger) *Server {
	s := &Server{
		vault:  v,
		cfg:    cfg,
		logger: logger.WithField("component", "server"),
	}

	s.http = &http.Server{
		Addr:              cfg.Server.BindAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Router builds the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	// Only status, setup, and unlock bypass the gate.
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/setup", s.handleSetup).Methods(http.MethodPost)
	api.HandleFunc("/unlock", s.handleUnlock).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(s.gate)

	protected.HandleFunc("/lock", s.handleLock).Methods(http.MethodPost)
	protected.HandleFunc("/logout", s.handleLock).Methods(http.MethodPost)
	protected.HandleFunc("/images", s.handleListImages).Methods(http.MethodGet)
	protected.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	protected.HandleFunc("/images/{id}", s.handleDeleteImage).Methods(http.MethodDelete)
	protected.HandleFunc("/images/{id}/tags", s.handleAddTag).Methods(http.MethodPost)
	protected.HandleFunc("/images/{id}/tags", s.handleRemoveTag).Methods(http.MethodDelete)
	protected.HandleFunc("/images/{id}/download", s.handleDownload).Methods(http.MethodGet)
	protected.HandleFunc("/images/{cover}/linked", s.handleAttachLinked).Methods(http.MethodPost)
	protected.HandleFunc("/images/{cover}/linked/{sub}", s.handleDetachLinked).Methods(http.MethodDelete)
	protected.HandleFunc("/images/{cover}/linked/{sub}/{variant}", s.handleGetLinked).Methods(http.MethodGet)
	protected.HandleFunc("/images/{id}/{variant}", s.handleGetImage).Methods(http.MethodGet)
	protected.HandleFunc("/tags", s.handleListTags).Methods(http.MethodGet)
	protected.HandleFunc("/tags/rename", s.handleRenameTag).Methods(http.MethodPost)

	return r
}

// ListenAndServe starts the HTTP listener and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.cfg.Server.BindAddr).Info("Listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and locks the vault.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.vault.Lock()
	return s.http.Shutdown(ctx)
}

// gate enforces (unlocked AND authenticated) on every protected route.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.vault.Gate(s.sessionToken(r)); err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// writeError maps the error taxonomy to status codes with generic
// bodies. Only io and corruption failures are logged with context.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, models.ErrWrongPassword):
		status, msg = http.StatusUnauthorized, "invalid password"
	case errors.Is(err, models.ErrLocked):
		status, msg = http.StatusForbidden, "vault is locked"
	case errors.Is(err, models.ErrNotInitialized):
		status, msg = http.StatusForbidden, "vault not initialized"
	case errors.Is(err, models.ErrAlreadyInitialized):
		status, msg = http.StatusConflict, "vault already initialized"
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrInvalidInput):
		status, msg = http.StatusBadRequest, "invalid input"
	case errors.Is(err, models.ErrCorruptBlob), errors.Is(err, models.ErrManifestCorrupt):
		s.logger.WithError(err).Error("Integrity failure")
	default:
		if models.IsIoFailure(err) {
			s.logger.WithError(err).Error("Filesystem failure")
		}
	}

	writeJSON(w, status, map[string]string{"error": msg})
}
