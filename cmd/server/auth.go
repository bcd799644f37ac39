package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/paperstudio/platform/internal/auth"
	"github.com/paperstudio/platform/internal/store"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *apiServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.identity.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error().Err(err).Msg("sign-up failed")
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred during registration")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "Please check your email and click the confirmation link to complete your registration.",
	})
}

func (s *apiServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, auth.ErrEmailNotConfirmed):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			s.logger.Error().Err(err).Msg("sign-in failed")
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred during sign in")
		}
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *apiServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := s.identity.SignOut(r.Context(), token); err != nil {
		s.logger.Error().Err(err).Msg("sign-out failed")
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred during sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := s.identity.SessionUser(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// handleConfirmQuery is the query-parameter confirmation transport: the
// emailed token_hash is exchanged for a session via explicit verification.
func (s *apiServer) handleConfirmQuery(w http.ResponseWriter, r *http.Request) {
	tokenHash := r.URL.Query().Get("token_hash")
	tokenType := r.URL.Query().Get("type")
	if tokenHash == "" {
		writeError(w, http.StatusBadRequest, "Invalid confirmation link.")
		return
	}
	session, err := s.identity.ConfirmByToken(r.Context(), tokenHash, tokenType)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("confirmation failed")
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred during email confirmation.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"message": "Your email has been confirmed successfully!",
	})
}

// handleConfirmTokens is the URL-fragment confirmation transport: the SPA
// posts the access/refresh pair from the fragment and the session is
// established directly.
func (s *apiServer) handleConfirmTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "access_token and refresh_token are required")
		return
	}
	session, err := s.identity.ConfirmBySessionTokens(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidSession) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("confirmation failed")
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred during email confirmation.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": session,
		"message": "Your email has been confirmed successfully!",
	})
}

// handleSessionEvents streams session-change notifications for the
// authenticated user over SSE.
func (s *apiServer) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("access_token") // EventSource cannot set headers
	}
	user, err := s.identity.SessionUser(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	events := s.identity.Events().Subscribe()
	defer s.identity.Events().Unsubscribe(events)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.UserID != user.ID {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}
