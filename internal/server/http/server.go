// Package httpserver exposes the notes REST API handlers.
package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/and161185/notes-service/internal/errs"
	"github.com/and161185/notes-service/internal/model"
	"github.com/and161185/notes-service/internal/service"
	"github.com/and161185/notes-service/internal/token"
)

// Handler wires services into HTTP handlers.
type Handler struct {
	auth   service.AuthService
	notes  service.NoteService
	tokens *token.Service
	log    *zap.Logger
}

// New constructs a Handler with injected services.
func New(auth service.AuthService, notes service.NoteService, tokens *token.Service, log *zap.Logger) *Handler {
	return &Handler{auth: auth, notes: notes, tokens: tokens, log: log}
}

// Routes returns the API http.Handler with middleware applied.
// Recovery sits innermost so panics are caught before logging.
func Routes(h *Handler, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)

	mux.HandleFunc("POST /notes", h.requireAuth(h.createNote))
	mux.HandleFunc("GET /notes", h.requireAuth(h.listNotes))
	mux.HandleFunc("GET /notes/{id}", h.requireAuth(h.getNote))
	mux.HandleFunc("PUT /notes/{id}", h.requireAuth(h.updateNote))
	mux.HandleFunc("DELETE /notes/{id}", h.requireAuth(h.deleteNote))

	wrapped := Recovery(log, mux)
	wrapped = Logging(log, wrapped)
	return wrapped
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// --- Auth ---

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrValidation):
			writeError(w, http.StatusBadRequest, "username and password are required")
		case errors.Is(err, errs.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "username already taken")
		default:
			h.log.Error("register failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID.String(), Username: u.Username})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tok, err := h.auth.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "incorrect username or password")
		case errors.Is(err, errs.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		default:
			h.log.Error("login failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "bearer",
		ExpiresAt:   tok.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// clientIP strips the ephemeral port from RemoteAddr so rate limiting keys on
// the host alone.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- Notes ---

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	var in model.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.notes.Create(r.Context(), in)
	if err != nil {
		h.writeNoteError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	skip, take := 0, 0
	var err error
	if v := r.URL.Query().Get("skip"); v != "" {
		if skip, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid skip parameter")
			return
		}
	}
	if v := r.URL.Query().Get("take"); v != "" {
		if take, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid take parameter")
			return
		}
	}
	ns, err := h.notes.List(r.Context(), skip, take)
	if err != nil {
		h.writeNoteError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (h *Handler) getNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.noteID(w, r)
	if !ok {
		return
	}
	n, err := h.notes.Get(r.Context(), id)
	if err != nil {
		h.writeNoteError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) updateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.noteID(w, r)
	if !ok {
		return
	}
	var in model.NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.notes.Update(r.Context(), id, in)
	if err != nil {
		h.writeNoteError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.noteID(w, r)
	if !ok {
		return
	}
	if err := h.notes.Delete(r.Context(), id); err != nil {
		h.writeNoteError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("note with id %d deleted", id)})
}

func (h *Handler) noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return 0, false
	}
	return id, true
}

// writeNoteError maps service errors to HTTP statuses. Internal error text is
// logged, never returned to the client.
func (h *Handler) writeNoteError(w http.ResponseWriter, err error, id int64) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("no data found for id %d", id))
	default:
		h.log.Error("note operation failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
